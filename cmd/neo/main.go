package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/neo-explorer/extract"
	"github.com/signalsfoundry/neo-explorer/internal/config"
	"github.com/signalsfoundry/neo-explorer/internal/logging"
	"github.com/signalsfoundry/neo-explorer/internal/observability"
	"github.com/signalsfoundry/neo-explorer/kb"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	a := &app{log: logging.NewFromEnv()}
	err := a.execute(ctx, newRootCmd(a))
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries the state shared by subcommands once the catalog is loaded.
type app struct {
	log logging.Logger

	configPath  string
	neoFile     string
	cadFile     string
	metricsFile string

	ctx       context.Context
	cfg       *config.Config
	collector *observability.CatalogCollector
	catalog   *kb.Catalog
	tracing   *observability.Tracing
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "neo",
		Short: "Explore near-Earth objects and their close approaches to Earth",
		Long: `neo loads the NASA/JPL near-Earth object catalog and close-approach data,
links them together, and answers lookups and filtered queries.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "YAML config file")
	flags.StringVar(&a.neoFile, "neofile", "", "path to the NEO CSV file (.gz and .zst accepted)")
	flags.StringVar(&a.cadFile, "cadfile", "", "path to the close-approach JSON file (.gz and .zst accepted)")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile at exit")

	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newInspectCmd(a))
	root.AddCommand(newQueryCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.neoFile != "" {
		cfg.Data.NEOFile = a.neoFile
	}
	if a.cadFile != "" {
		cfg.Data.CADFile = a.cadFile
	}
	if a.metricsFile != "" {
		cfg.Metrics.File = a.metricsFile
	}
	a.cfg = cfg

	ctx, log := logging.WithRunLogger(cmd.Context(), a.log)
	ctx = logging.ContextWithLogger(ctx, log)
	cmd.SetContext(ctx)
	a.ctx = ctx

	collector, err := observability.NewCatalogCollector(prometheus.NewRegistry())
	if err != nil {
		return err
	}
	a.collector = collector

	tracing, err := observability.StartTracing(ctx, observability.TracingOptions{
		Enabled:     cfg.Tracing.Enabled,
		Exporter:    cfg.Tracing.Exporter,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		SampleRatio: cfg.Tracing.SampleRatio,
		Output:      cmd.ErrOrStderr(),
	}, log)
	if err != nil {
		return err
	}
	a.tracing = tracing

	ds, err := extract.LoadAll(ctx, cfg.Data.NEOFile, cfg.Data.CADFile, log)
	if err != nil {
		return err
	}

	_, span := observability.StartSpan(ctx, "catalog.Open",
		attribute.Int("neo.count", len(ds.NEOs)),
		attribute.Int("approach.count", len(ds.Approaches)),
	)
	catalog, err := kb.Open(ds.NEOs, ds.Approaches,
		kb.WithLogger(log),
		kb.WithMetricsRecorder(collector),
	)
	if err != nil {
		span.RecordError(err)
		span.End()
		return err
	}
	span.End()
	a.catalog = catalog
	return nil
}

// execute runs root and then finish, whether or not the command failed.
func (a *app) execute(ctx context.Context, root *cobra.Command) error {
	err := root.ExecuteContext(ctx)
	if ferr := a.finish(ctx); ferr != nil {
		err = errors.Join(err, ferr)
	}
	return err
}

// finish flushes buffered spans and writes the metrics textfile. It must see
// failed runs too: their spans carry the recorded errors.
func (a *app) finish(ctx context.Context) error {
	if a.ctx != nil {
		ctx = a.ctx
	}
	ctx = context.WithoutCancel(ctx)
	log := logging.FromContext(ctx)
	defer a.tracing.Shutdown(ctx)

	if a.cfg == nil || a.cfg.Metrics.File == "" || a.collector == nil {
		return nil
	}
	if err := a.collector.WriteTextfile(a.cfg.Metrics.File); err != nil {
		return err
	}
	log.Debug(ctx, "wrote metrics textfile", logging.String("path", a.cfg.Metrics.File))
	return nil
}
