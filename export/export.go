// Package export writes query results as CSV or JSON.
package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/signalsfoundry/neo-explorer/internal/observability"
	"github.com/signalsfoundry/neo-explorer/model"
)

// ErrUnsupportedFormat is returned by WriteFile for an unknown extension.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Format names used for file extensions and metric labels.
const (
	FormatCSV  = "csv"
	FormatJSON = "json"
)

// Recorder counts exported rows.
type Recorder interface {
	ObserveExport(format string, rows int)
}

// WriteCSV writes a header row and one row per approach. Approaches must be
// linked. It returns the number of data rows written.
func WriteCSV(w io.Writer, results iter.Seq[*model.CloseApproach]) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(model.CSVFieldNames); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}

	n := 0
	row := make([]string, len(model.CSVFieldNames))
	for ca := range results {
		rec := ca.Serialize()
		for i, key := range model.CSVFieldNames {
			v, _ := rec.Get(key)
			row[i] = formatCSVValue(v)
		}
		if err := cw.Write(row); err != nil {
			return n, fmt.Errorf("write csv row %d: %w", n+1, err)
		}
		n++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return n, fmt.Errorf("flush csv: %w", err)
	}
	return n, nil
}

func formatCSVValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return formatFloat(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

// formatFloat renders the shortest decimal that round-trips, and the literal
// NaN token for unknown values.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// WriteJSON writes a pretty-printed JSON array with one object per approach,
// keys in their canonical order and the NEO fields nested under "neo".
// Unknown measurements are written as the bare NaN token, which most JSON
// readers outside strict mode accept. Approaches must be linked. It returns
// the number of objects written.
func WriteJSON(w io.Writer, results iter.Seq[*model.CloseApproach]) (int, error) {
	bw := bufio.NewWriter(w)
	enc := &jsonWriter{w: bw, indent: "    "}

	n := 0
	enc.raw("[")
	for ca := range results {
		if n > 0 {
			enc.raw(",")
		}
		enc.newline(1)
		enc.record(ca.SerializeNested(), 1)
		n++
		if enc.err != nil {
			return n, fmt.Errorf("write json: %w", enc.err)
		}
	}
	if n > 0 {
		enc.newline(0)
	}
	enc.raw("]\n")

	if enc.err != nil {
		return n, fmt.Errorf("write json: %w", enc.err)
	}
	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("flush json: %w", err)
	}
	return n, nil
}

// jsonWriter emits records with a fixed key order. encoding/json cannot be
// used for whole values: maps lose the order and NaN is rejected.
type jsonWriter struct {
	w      *bufio.Writer
	indent string
	err    error
}

func (j *jsonWriter) raw(s string) {
	if j.err != nil {
		return
	}
	_, j.err = j.w.WriteString(s)
}

func (j *jsonWriter) newline(depth int) {
	j.raw("\n")
	j.raw(strings.Repeat(j.indent, depth))
}

func (j *jsonWriter) record(rec model.Record, depth int) {
	j.raw("{")
	for i, f := range rec {
		if i > 0 {
			j.raw(",")
		}
		j.newline(depth + 1)
		j.str(f.Key)
		j.raw(": ")
		j.value(f.Value, depth+1)
	}
	if len(rec) > 0 {
		j.newline(depth)
	}
	j.raw("}")
}

func (j *jsonWriter) value(v any, depth int) {
	switch x := v.(type) {
	case model.Record:
		j.record(x, depth)
	case string:
		j.str(x)
	case float64:
		j.raw(formatFloat(x))
	case bool:
		j.raw(strconv.FormatBool(x))
	case nil:
		j.raw("null")
	default:
		j.str(fmt.Sprint(x))
	}
}

func (j *jsonWriter) str(s string) {
	b, err := json.Marshal(s)
	if err != nil {
		j.err = err
		return
	}
	j.raw(string(b))
}

// FormatForPath picks the output format from a file extension.
func FormatForPath(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// WriteFile writes results to path in the format implied by its extension.
// rec may be nil.
func WriteFile(ctx context.Context, path string, results iter.Seq[*model.CloseApproach], rec Recorder) (int, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return 0, err
	}

	_, span := observability.StartSpan(ctx, "export.WriteFile",
		attribute.String("export.path", path),
		attribute.String("export.format", format),
	)
	defer span.End()

	f, err := os.Create(path)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("create %s: %w", path, err)
	}

	var n int
	switch format {
	case FormatCSV:
		n, err = WriteCSV(f, results)
	case FormatJSON:
		n, err = WriteJSON(f, results)
	}
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", path, cerr)
	}
	if rec != nil {
		rec.ObserveExport(format, n)
	}
	span.SetAttributes(attribute.Int("export.rows", n))
	if err != nil {
		span.RecordError(err)
		return n, err
	}
	return n, nil
}
