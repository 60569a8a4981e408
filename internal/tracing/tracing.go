// Package tracing emits one OTel span per pipeline stage, so a task's
// classify/plan/execute/audit/deliver run can be followed end to end in
// any OTLP-compatible backend.
package tracing

import (
	"context"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/taskrunner/gateway/internal/pipeline"

// Init wires the global OTel tracer provider against an OTLP endpoint
// (TASKRUNNER_OTLP_ENDPOINT, TASKRUNNER_OTLP_PROTOCOL=grpc|http) when one
// is configured; with no endpoint, it installs a provider with no
// exporter so every StartStageSpan call still returns a span (recorded
// but never exported)
// rather than requiring every call site to nil-check tracing.
func Init(ctx context.Context) (shutdown func(context.Context) error, err error) {
	endpoint := os.Getenv("TASKRUNNER_OTLP_ENDPOINT")
	if endpoint == "" {
		tp := sdktrace.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp.Shutdown, nil
	}

	var exporter sdktrace.SpanExporter
	if os.Getenv("TASKRUNNER_OTLP_PROTOCOL") == "http" {
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	} else {
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	}
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// StartStageSpan starts a span named after one pipeline stage, tagged
// with the task id so every stage of one run shares a trace.
func StartStageSpan(ctx context.Context, taskID, stageName string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, stageName)
	span.SetAttributes(attribute.String("task.id", taskID))
	return ctx, span
}
