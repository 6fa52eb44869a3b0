package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerProvider manages the lifecycle of the OpenTelemetry tracer
type TracerProvider struct {
	tp *sdktrace.TracerProvider
}

// PipelineTracer provides distributed tracing for the ingest and
// remediation pipelines
type PipelineTracer struct {
	tracer trace.Tracer
}

// NewTracerProvider creates a new OpenTelemetry tracer provider
func NewTracerProvider(serviceName, serviceVersion, otlpEndpoint string) (*TracerProvider, error) {
	// Create OTLP exporter
	exporter, err := otlptracegrpc.New(
		context.Background(),
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(), // TODO: Add TLS configuration
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
			semconv.ServiceNamespaceKey.String("mirador-remedy"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create tracer provider
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()), // TODO: Configure sampling
	)

	otel.SetTracerProvider(tp)

	return &TracerProvider{tp: tp}, nil
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.tp.Shutdown(ctx)
}

// NewPipelineTracer creates a new pipeline tracer
func NewPipelineTracer(serviceName string) *PipelineTracer {
	tracer := otel.Tracer(serviceName)
	return &PipelineTracer{tracer: tracer}
}

// StartIngestSpan starts a span for one metric-sample ingest
func (pt *PipelineTracer) StartIngestSpan(ctx context.Context, metricKey string) (context.Context, trace.Span) {
	ctx, span := pt.tracer.Start(ctx, "metric_ingest",
		trace.WithAttributes(
			attribute.String("metric.key", metricKey),
			attribute.String("component", "anomaly-engine"),
		),
	)
	return ctx, span
}

// StartAlertSpan starts a span for one pass through the alert pipeline
func (pt *PipelineTracer) StartAlertSpan(ctx context.Context, fingerprint, status string) (context.Context, trace.Span) {
	ctx, span := pt.tracer.Start(ctx, "alert_pipeline",
		trace.WithAttributes(
			attribute.String("alert.fingerprint", fingerprint),
			attribute.String("alert.status", status),
			attribute.String("component", "alert-manager"),
		),
	)
	return ctx, span
}

// StartRemediationSpan starts a span for a remediation action run
func (pt *PipelineTracer) StartRemediationSpan(ctx context.Context, actionID, actionName string) (context.Context, trace.Span) {
	ctx, span := pt.tracer.Start(ctx, "remediation_action",
		trace.WithAttributes(
			attribute.String("action.id", actionID),
			attribute.String("action.name", actionName),
			attribute.String("component", "remediation-orchestrator"),
		),
	)
	return ctx, span
}

// RecordError records an error on a span
func (pt *PipelineTracer) RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attrs...)
	span.RecordError(err)
}
