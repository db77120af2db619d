package kb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/signalsfoundry/neo-explorer/filter"
	"github.com/signalsfoundry/neo-explorer/internal/logging"
	"github.com/signalsfoundry/neo-explorer/model"
	"github.com/signalsfoundry/neo-explorer/timectrl"
)

var (
	// ErrAlreadyLinked is returned when Link is called a second time.
	ErrAlreadyLinked = errors.New("catalog already linked")
	// ErrUnknownDesignation is returned by Link for an approach whose key
	// matches no NEO in the catalog.
	ErrUnknownDesignation = errors.New("approach references unknown designation")
)

// MetricsRecorder receives catalog size and query statistics.
type MetricsRecorder interface {
	SetCatalogCounts(neos, named, approaches int)
	ObserveQuery(matched int, elapsed time.Duration)
}

// CatalogOption configures a Catalog.
type CatalogOption func(*Catalog)

// WithLogger attaches a logger; the default drops everything.
func WithLogger(log logging.Logger) CatalogOption {
	return func(c *Catalog) {
		if log != nil {
			c.log = log
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) CatalogOption {
	return func(c *Catalog) {
		c.metrics = m
	}
}

// WithClock overrides the clock used to time queries.
func WithClock(clock timectrl.Clock) CatalogOption {
	return func(c *Catalog) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithLookupCacheSize bounds each of the designation and name lookup caches
// to n entries. n <= 0 selects DefaultLookupCacheSize.
func WithLookupCacheSize(n int) CatalogOption {
	return func(c *Catalog) {
		c.cacheSize = n
	}
}

// Catalog joins NEOs and their close approaches and answers lookups and
// filtered queries over them.
//
// A Catalog is built in two phases: NewCatalog indexes the unlinked records,
// then Link resolves every approach to its NEO. After Link the catalog is
// never mutated and may be read from multiple goroutines.
type Catalog struct {
	neos       []*model.NearEarthObject
	approaches []*model.CloseApproach

	byDesignation map[string]*model.NearEarthObject
	byName        map[string]*model.NearEarthObject

	designationCache *memo[string, *model.NearEarthObject]
	nameCache        *memo[string, *model.NearEarthObject]
	cacheSize        int

	linkOnce sync.Once
	linked   bool

	warnOnce sync.Once

	log     logging.Logger
	metrics MetricsRecorder
	clock   timectrl.Clock
}

// NewCatalog indexes neos by designation and by name. The records must be
// unlinked: every NEO has no approaches and every approach has a nil NEO.
// The catalog takes ownership of both slices.
func NewCatalog(neos []*model.NearEarthObject, approaches []*model.CloseApproach, opts ...CatalogOption) *Catalog {
	c := &Catalog{
		neos:          neos,
		approaches:    approaches,
		byDesignation: make(map[string]*model.NearEarthObject, len(neos)),
		byName:        make(map[string]*model.NearEarthObject),
		log:           logging.Noop(),
		clock:         timectrl.Wall,
	}
	for _, opt := range opts {
		opt(c)
	}

	for _, neo := range neos {
		c.byDesignation[neo.Designation] = neo
		if neo.HasName() {
			c.byName[*neo.Name] = neo
		}
	}

	c.designationCache = newMemo(c.cacheSize, func(designation string) *model.NearEarthObject {
		return c.byDesignation[designation]
	})
	c.nameCache = newMemo(c.cacheSize, func(name string) *model.NearEarthObject {
		if name == "" {
			return nil
		}
		return c.byName[name]
	})

	if c.metrics != nil {
		c.metrics.SetCatalogCounts(len(c.neos), len(c.byName), len(c.approaches))
	}
	return c
}

// Open builds a catalog and links it.
func Open(neos []*model.NearEarthObject, approaches []*model.CloseApproach, opts ...CatalogOption) (*Catalog, error) {
	c := NewCatalog(neos, approaches, opts...)
	if err := c.Link(); err != nil {
		return nil, err
	}
	return c, nil
}

// Link connects every approach to its NEO and appends it to the NEO's
// approaches, in catalog order. It must be called exactly once, before Query.
func (c *Catalog) Link() error {
	err := ErrAlreadyLinked
	c.linkOnce.Do(func() {
		err = c.link()
	})
	return err
}

func (c *Catalog) link() error {
	for i, ca := range c.approaches {
		neo := c.GetByDesignation(ca.Designation())
		if neo == nil {
			return fmt.Errorf("%w: %q (approach %d)", ErrUnknownDesignation, ca.Designation(), i)
		}
		ca.NEO = neo
		neo.Approaches = append(neo.Approaches, ca)
	}
	c.linked = true
	c.log.Debug(context.Background(), "catalog linked",
		logging.Int("neos", len(c.neos)),
		logging.Int("approaches", len(c.approaches)),
	)
	return nil
}

// Linked reports whether Link has completed successfully.
func (c *Catalog) Linked() bool {
	return c.linked
}

// GetByDesignation returns the NEO with the exact primary designation, or nil.
func (c *Catalog) GetByDesignation(designation string) *model.NearEarthObject {
	return c.designationCache.get(designation)
}

// GetByName returns the NEO with the exact IAU name, or nil. The empty string
// never matches.
func (c *Catalog) GetByName(name string) *model.NearEarthObject {
	return c.nameCache.get(name)
}

// Query returns a lazy sequence of the approaches matching every filter, in
// catalog order. With no filters it yields every approach. Each call returns
// an independent sequence, and ranging over the same sequence twice restarts
// it from the beginning.
func (c *Catalog) Query(filters ...filter.Predicate) iter.Seq[*model.CloseApproach] {
	if !c.linked {
		c.warnOnce.Do(func() {
			c.log.Warn(context.Background(), "query issued before catalog was linked")
		})
	}
	preds := append([]filter.Predicate(nil), filters...)

	return func(yield func(*model.CloseApproach) bool) {
		start := c.clock.Now()
		matched := 0
		defer func() {
			if c.metrics != nil {
				c.metrics.ObserveQuery(matched, c.clock.Since(start))
			}
		}()

		for _, ca := range c.approaches {
			if !filter.All(ca, preds) {
				continue
			}
			matched++
			if !yield(ca) {
				return
			}
		}
	}
}

// NEOs yields every NEO in catalog order.
func (c *Catalog) NEOs() iter.Seq[*model.NearEarthObject] {
	return func(yield func(*model.NearEarthObject) bool) {
		for _, neo := range c.neos {
			if !yield(neo) {
				return
			}
		}
	}
}

// Approaches yields every close approach in catalog order. Unlike Query it
// records no query metrics.
func (c *Catalog) Approaches() iter.Seq[*model.CloseApproach] {
	return func(yield func(*model.CloseApproach) bool) {
		for _, ca := range c.approaches {
			if !yield(ca) {
				return
			}
		}
	}
}

// Len returns the number of NEOs and close approaches.
func (c *Catalog) Len() (neos, approaches int) {
	return len(c.neos), len(c.approaches)
}
