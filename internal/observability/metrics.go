package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CatalogCollector bundles Prometheus metrics for catalog construction,
// queries and exports. The CLI dumps them to a textfile at exit.
type CatalogCollector struct {
	gatherer prometheus.Gatherer

	NEOs       prometheus.Gauge
	NamedNEOs  prometheus.Gauge
	Approaches prometheus.Gauge

	Queries       prometheus.Counter
	QueryMatches  prometheus.Counter
	QueryDuration prometheus.Histogram

	ExportRows *prometheus.CounterVec
}

// NewCatalogCollector registers catalog metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
func NewCatalogCollector(reg prometheus.Registerer) (*CatalogCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	neos, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_neos",
		Help: "Number of near-Earth objects in the catalog.",
	}), "catalog_neos")
	if err != nil {
		return nil, err
	}
	named, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_named_neos",
		Help: "Number of near-Earth objects with an IAU name.",
	}), "catalog_named_neos")
	if err != nil {
		return nil, err
	}
	approaches, err := register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_approaches",
		Help: "Number of close approaches in the catalog.",
	}), "catalog_approaches")
	if err != nil {
		return nil, err
	}

	queries, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_queries_total",
		Help: "Total number of completed catalog queries.",
	}), "catalog_queries_total")
	if err != nil {
		return nil, err
	}
	matches, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "catalog_query_matches_total",
		Help: "Total number of close approaches yielded by catalog queries.",
	}), "catalog_query_matches_total")
	if err != nil {
		return nil, err
	}
	duration, err := register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_query_duration_seconds",
		Help:    "Wall time spent iterating a catalog query.",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "catalog_query_duration_seconds")
	if err != nil {
		return nil, err
	}

	rows, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "export_rows_total",
		Help: "Total number of close approaches written by exporters, labeled by format.",
	}, []string{"format"}), "export_rows_total")
	if err != nil {
		return nil, err
	}

	return &CatalogCollector{
		gatherer:      gatherer,
		NEOs:          neos,
		NamedNEOs:     named,
		Approaches:    approaches,
		Queries:       queries,
		QueryMatches:  matches,
		QueryDuration: duration,
		ExportRows:    rows,
	}, nil
}

// SetCatalogCounts satisfies kb.MetricsRecorder.
func (c *CatalogCollector) SetCatalogCounts(neos, named, approaches int) {
	if c == nil {
		return
	}
	c.NEOs.Set(float64(neos))
	c.NamedNEOs.Set(float64(named))
	c.Approaches.Set(float64(approaches))
}

// ObserveQuery satisfies kb.MetricsRecorder.
func (c *CatalogCollector) ObserveQuery(matched int, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.Queries.Inc()
	c.QueryMatches.Add(float64(matched))
	c.QueryDuration.Observe(elapsed.Seconds())
}

// ObserveExport satisfies export.Recorder.
func (c *CatalogCollector) ObserveExport(format string, rows int) {
	if c == nil {
		return
	}
	c.ExportRows.WithLabelValues(format).Add(float64(rows))
}

// WriteTextfile writes the current metric values in the Prometheus text
// format, suitable for the node_exporter textfile collector.
func (c *CatalogCollector) WriteTextfile(path string) error {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if err := prometheus.WriteToTextfile(path, gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// register adds col to reg, returning the already-registered collector of the
// same type when one exists under name.
func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			var zero T
			return zero, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		var zero T
		return zero, err
	}
	return col, nil
}
