package telemetry

import (
	"context"
	"fmt"

	"rag-chat/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
TRACING LAYOUT

	HTTP request span (middleware)
	  └─ ContextService.Retrieve
	       ├─ Embedder.Embed
	       ├─ VectorIndex.Query
	       └─ Authorization.FilterMatches (one event per denied match)
	  └─ Generator.Stream

Ingestion runs produce the same shape rooted at IngestService.Ingest.
*/

// InitJaeger installs a global tracer provider exporting to the Jaeger collector.
// The returned function flushes pending spans and must be called on shutdown.
func InitJaeger(serviceName, version, jaegerEndpoint string) (func(context.Context) error, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	logger.Default().Info("jaeger tracing initialized", "endpoint", jaegerEndpoint, "service", serviceName)
	return tp.Shutdown, nil
}
