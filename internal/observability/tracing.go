package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/neo-explorer/internal/logging"
)

const (
	tracerName      = "github.com/signalsfoundry/neo-explorer"
	shutdownTimeout = 5 * time.Second
)

// ErrUnknownExporter is returned by StartTracing for an exporter name it
// does not recognise.
var ErrUnknownExporter = errors.New("unknown span exporter")

// TracingOptions selects and configures the span exporter for one CLI run.
type TracingOptions struct {
	Enabled     bool
	Exporter    string // stdout or otlp
	Endpoint    string // otlp collector host:port
	ServiceName string
	SampleRatio float64

	// Output receives stdout exporter spans. Nil means os.Stderr, which keeps
	// spans apart from query results.
	Output io.Writer
}

type exporterFunc func(context.Context, TracingOptions) (sdktrace.SpanExporter, error)

var exporters = map[string]exporterFunc{
	"stdout": func(_ context.Context, opts TracingOptions) (sdktrace.SpanExporter, error) {
		out := opts.Output
		if out == nil {
			out = os.Stderr
		}
		return stdouttrace.New(stdouttrace.WithWriter(out), stdouttrace.WithPrettyPrint())
	},
	"otlp": func(ctx context.Context, opts TracingOptions) (sdktrace.SpanExporter, error) {
		endpoint := opts.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	},
}

// Tracing owns the process-wide tracer provider for one CLI run.
type Tracing struct {
	provider *sdktrace.TracerProvider // nil when tracing is disabled
	log      logging.Logger
}

// StartTracing installs the global tracer provider described by opts. When
// tracing is disabled a no-op provider is installed and Shutdown does nothing.
func StartTracing(ctx context.Context, opts TracingOptions, log logging.Logger) (*Tracing, error) {
	if log == nil {
		log = logging.Noop()
	}
	t := &Tracing{log: log}

	if !opts.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return t, nil
	}

	newExporter, ok := exporters[strings.ToLower(opts.Exporter)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExporter, opts.Exporter)
	}
	exp, err := newExporter(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("start %s span exporter: %w", opts.Exporter, err)
	}

	service := opts.ServiceName
	if service == "" {
		service = "neo"
	}
	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", service))),
	)
	otel.SetTracerProvider(t.provider)

	log.Debug(ctx, "tracing enabled",
		logging.String("exporter", opts.Exporter),
		logging.String("service_name", service),
		logging.Any("sample_ratio", opts.SampleRatio),
	)
	return t, nil
}

// Shutdown flushes buffered spans, giving up after shutdownTimeout. It is a
// no-op on a nil or disabled Tracing.
func (t *Tracing) Shutdown(ctx context.Context) {
	if t == nil || t.provider == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	if err := t.provider.Shutdown(ctx); err != nil {
		t.log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}

// StartSpan starts an internal span on the package tracer, tagging it with the
// run id when one is present on ctx.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if runID := logging.RunIDFromContext(ctx); runID != "" {
		attrs = append(attrs, attribute.String("run_id", runID))
	}
	return otel.Tracer(tracerName).Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}
