// Package extract loads NEO and close-approach records from the NASA/JPL data
// files into unlinked model records.
package extract

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/neo-explorer/internal/logging"
	"github.com/signalsfoundry/neo-explorer/internal/observability"
	"github.com/signalsfoundry/neo-explorer/model"
)

var (
	// ErrMissingField is returned when an input file lacks a required column.
	ErrMissingField = errors.New("missing required field")
	// ErrMalformedInput is returned when an input file cannot be decoded at all.
	ErrMalformedInput = errors.New("malformed input")
)

// Column names in the SBDB neos.csv export.
const (
	colDesignation = "pdes"
	colName        = "name"
	colDiameter    = "diameter"
	colHazardous   = "pha"
)

// Field names in the close-approach API response.
const (
	fieldDesignation = "des"
	fieldTime        = "cd"
	fieldDistance    = "dist"
	fieldVelocity    = "v_rel"
	fieldJulian      = "jd"
)

// maxJulianSkew is how far, in days, the optional jd field may drift from the
// calendar time before the row is reported. cd is rounded to the minute.
const maxJulianSkew = 1.0 / (24 * 60)

// LoadNEOs reads NEOs from CSV with a header row. Rows that cannot be turned
// into a record are skipped with a warning.
func LoadNEOs(r io.Reader, log logging.Logger) ([]*model.NearEarthObject, error) {
	if log == nil {
		log = logging.Noop()
	}
	ctx := context.Background()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: reading NEO header: %v", ErrMalformedInput, err)
	}
	cols, err := columnIndex(header, colDesignation, colName, colDiameter, colHazardous)
	if err != nil {
		return nil, err
	}

	var neos []*model.NearEarthObject
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading NEO row %d: %w", line, err)
		}

		get := func(name string) string {
			if i := cols[name]; i < len(row) {
				return row[i]
			}
			return ""
		}
		designation := get(colDesignation)
		if strings.TrimSpace(designation) == "" {
			log.Warn(ctx, "skipping NEO row without designation", logging.Int("line", line))
			continue
		}
		neo, err := model.NewNearEarthObject(designation, get(colName), get(colDiameter), get(colHazardous))
		if err != nil {
			log.Warn(ctx, "skipping malformed NEO row", logging.Int("line", line), logging.Err(err))
			continue
		}
		neos = append(neos, neo)
	}
	return neos, nil
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	for _, name := range required {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
		}
	}
	return idx, nil
}

// LoadApproaches reads close approaches from a JPL close-approach API JSON
// document, whose "fields" array names the positions of the values in each
// "data" row. The optional "jd" field stands in for an empty "cd" and is
// otherwise checked against it. Rows that cannot be turned into a record are
// skipped with a warning.
func LoadApproaches(r io.Reader, log logging.Logger) ([]*model.CloseApproach, error) {
	if log == nil {
		log = logging.Noop()
	}
	ctx := context.Background()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading close-approach data: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: close-approach data is not valid JSON", ErrMalformedInput)
	}
	doc := gjson.ParseBytes(data)

	idx := make(map[string]int)
	for i, f := range doc.Get("fields").Array() {
		idx[f.String()] = i
	}
	for _, name := range []string{fieldDesignation, fieldTime, fieldDistance, fieldVelocity} {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingField, name)
		}
	}

	rows := doc.Get("data")
	if !rows.IsArray() {
		return nil, fmt.Errorf("%w: close-approach data has no data array", ErrMalformedInput)
	}

	approaches := make([]*model.CloseApproach, 0, len(rows.Array()))
	i := -1
	rows.ForEach(func(_, row gjson.Result) bool {
		i++
		values := row.Array()
		get := func(name string) string {
			if j, ok := idx[name]; ok && j < len(values) {
				return values[j].String()
			}
			return ""
		}
		ca, err := approachFromRow(ctx, log, i, get)
		if err != nil {
			log.Warn(ctx, "skipping malformed close-approach row", logging.Int("row", i), logging.Err(err))
			return true
		}
		if ca.Designation() == "" {
			log.Warn(ctx, "skipping close-approach row without designation", logging.Int("row", i))
			return true
		}
		approaches = append(approaches, ca)
		return true
	})
	return approaches, nil
}

// approachFromRow builds an approach from the calendar time, falling back to
// the Julian date when cd is empty. When both are present they must agree
// within maxJulianSkew; a disagreement is logged and cd wins.
func approachFromRow(ctx context.Context, log logging.Logger, row int, get func(string) string) (*model.CloseApproach, error) {
	designation, distance, velocity := get(fieldDesignation), get(fieldDistance), get(fieldVelocity)

	rawJD := strings.TrimSpace(get(fieldJulian))
	var jd float64
	if rawJD != "" {
		v, err := strconv.ParseFloat(rawJD, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: jd %q", model.ErrInvalidTime, rawJD)
		}
		jd = v
	}

	if strings.TrimSpace(get(fieldTime)) == "" && rawJD != "" {
		t, err := model.TimeFromJulian(jd)
		if err != nil {
			return nil, err
		}
		return model.NewCloseApproachAt(designation, t, distance, velocity)
	}

	ca, err := model.NewCloseApproach(designation, get(fieldTime), distance, velocity)
	if err != nil {
		return nil, err
	}
	if rawJD != "" {
		if skew := math.Abs(ca.JulianDate() - jd); skew > maxJulianSkew {
			log.Warn(ctx, "close-approach calendar time disagrees with julian date",
				logging.Int("row", row),
				logging.String("cd", ca.TimeString()),
				logging.String("jd", rawJD),
				logging.Any("skew_minutes", skew*24*60),
			)
		}
	}
	return ca, nil
}

// Open opens path for reading, decompressing ".gz" and ".zst" files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening gzip stream %s: %w", path, err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("opening zstd stream %s: %w", path, err)
		}
		zr := dec.IOReadCloser()
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	default:
		return f, nil
	}
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dataset is the unlinked result of loading both data files.
type Dataset struct {
	NEOs       []*model.NearEarthObject
	Approaches []*model.CloseApproach
}

// LoadAll loads the NEO and close-approach files concurrently.
func LoadAll(ctx context.Context, neoPath, cadPath string, log logging.Logger) (*Dataset, error) {
	if log == nil {
		log = logging.Noop()
	}
	ctx, span := observability.StartSpan(ctx, "extract.LoadAll",
		attribute.String("neo.file", neoPath),
		attribute.String("cad.file", cadPath),
	)
	defer span.End()

	var ds Dataset
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		neos, err := loadFile(ctx, neoPath, func(r io.Reader) ([]*model.NearEarthObject, error) {
			return LoadNEOs(r, log.With(logging.String("file", neoPath)))
		})
		ds.NEOs = neos
		return err
	})
	g.Go(func() error {
		approaches, err := loadFile(ctx, cadPath, func(r io.Reader) ([]*model.CloseApproach, error) {
			return LoadApproaches(r, log.With(logging.String("file", cadPath)))
		})
		ds.Approaches = approaches
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("neo.count", len(ds.NEOs)),
		attribute.Int("approach.count", len(ds.Approaches)),
	)
	log.Info(ctx, "loaded data files",
		logging.Int("neos", len(ds.NEOs)),
		logging.Int("approaches", len(ds.Approaches)),
	)
	return &ds, nil
}

func loadFile[T any](ctx context.Context, path string, load func(io.Reader) ([]T, error)) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rc, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	out, err := load(rc)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return out, nil
}
