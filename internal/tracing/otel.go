package tracing

import (
	"context"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// OTelConfig holds OpenTelemetry configuration
type OTelConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	Enabled        bool
}

// Global tracer
var globalTracer trace.Tracer

// InitOTel initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on application exit.
func InitOTel(cfg OTelConfig) (func(context.Context) error, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(os.Stderr),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}

	return initProvider(cfg, sdktrace.WithBatcher(exporter))
}

func initProvider(cfg OTelConfig, opts ...sdktrace.TracerProviderOption) (func(context.Context) error, error) {
	res, err := resource.Merge(
		resource.Default(),
		// Schemaless so the merge never conflicts with the SDK's own schema version.
		resource.NewSchemaless(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	opts = append(opts,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	tp := sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(tp)
	globalTracer = tp.Tracer(cfg.ServiceName)

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return tp.Shutdown(ctx)
	}, nil
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	if globalTracer == nil {
		return otel.Tracer("noop")
	}
	return globalTracer
}

// SpanKind represents the role of a span
type SpanKind string

// Span kinds for categorizing trace spans
const (
	SpanKindRun    SpanKind = "run"
	SpanKindMetric SpanKind = "metric"
	SpanKindAPI    SpanKind = "api"
)

// RunSpan starts the root span of one reconciliation run
func RunSpan(ctx context.Context, namespace, metricName string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "stddev.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("metric.namespace", namespace),
			attribute.String("metric.name", metricName),
			attribute.String("stddev.span.kind", string(SpanKindRun)),
		),
	)
}

// MetricSpan starts a span covering fetch, compute and reconcile of one metric
func MetricSpan(ctx context.Context, metricKey string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "stddev.metric",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("metric.key", metricKey),
			attribute.String("stddev.span.kind", string(SpanKindMetric)),
		),
	)
}

// APISpan starts a new span for a monitoring backend call
func APISpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return GetTracer().Start(ctx, "cloudwatch."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "aws-api"),
			attribute.String("rpc.service", "CloudWatch"),
			attribute.String("rpc.method", operation),
			attribute.String("stddev.span.kind", string(SpanKindAPI)),
		),
	)
}

// SetThresholds records computed control limits on a metric span
func SetThresholds(span trace.Span, mean, stddev, high, low float64) {
	span.SetAttributes(
		attribute.Float64("stddev.mean", mean),
		attribute.Float64("stddev.stddev", stddev),
		attribute.Float64("stddev.high", high),
		attribute.Float64("stddev.low", low),
	)
}

// RecordError records an error on the span
func RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("error", true))
	}
}

// SetSuccess marks the span as successful
func SetSuccess(span trace.Span) {
	span.SetAttributes(attribute.Bool("stddev.success", true))
}
