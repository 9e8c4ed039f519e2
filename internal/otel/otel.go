// Package otel configures OpenTelemetry tracing exported to an OTLP collector in X-Ray format.
package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/detectors/aws/ecs"
	otelxray "go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
)

// SetupTracer installs a global tracer provider that exports to the collector sidecar. The
// returned func flushes and stops the provider.
func SetupTracer(ctx context.Context, svcName string) (func(context.Context) error, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithInsecure(), otlptracegrpc.WithDialOption(grpc.WithBlock()))
	if err != nil {
		return nil, fmt.Errorf("create otel trace exporter: %w", err)
	}

	r, err := Resource(ctx, svcName)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithResource(r),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithIDGenerator(otelxray.NewIDGenerator()),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(otelxray.Propagator{})
	return tp.Shutdown, nil
}

// Resource describes the service, plus its ECS task when running on ECS.
func Resource(ctx context.Context, svcName string) (*resource.Resource, error) {
	svc := resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(svcName))

	task, err := ecs.NewResourceDetector().Detect(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect ecs resource: %w", err)
	}

	r, err := resource.Merge(svc, task)
	if err != nil {
		// schema urls differ; the service name is what matters
		return svc, nil
	}
	return r, nil
}

// XRayTraceID formats span's trace id the way X-Ray displays it.
func XRayTraceID(span trace.Span) string {
	id := span.SpanContext().TraceID().String()
	if len(id) < 9 {
		return id
	}

	return fmt.Sprintf("1-%s-%s", id[:8], id[8:])
}
