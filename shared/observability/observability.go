// Package observability wires OpenTelemetry metrics and tracing. Metrics
// export through the Prometheus reader and are scraped from the router's
// /metrics endpoint.
package observability

import (
	"context"
	"net/http"

	"advisor-marketplace/backend/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// SetupTracing initializes tracing with a stdout exporter. Returns a
// shutdown function for graceful termination.
func SetupTracing(serviceName string, log *logger.Logger) func(context.Context) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		log.Error("failed to initialize trace exporter", "error", err.Error())
		return func(context.Context) {}
	}

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		),
	)

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exp),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)

	return func(ctx context.Context) {
		if err := provider.Shutdown(ctx); err != nil {
			log.Warn("trace provider shutdown failed", "error", err.Error())
		}
	}
}

// SetupMetrics registers the Prometheus reader as the global meter
// provider and returns the scrape handler for the router to mount.
func SetupMetrics(log *logger.Logger) (http.Handler, func(context.Context)) {
	exp, err := prometheus.New()
	if err != nil {
		log.Error("failed to initialize prometheus exporter", "error", err.Error())
		return promhttp.Handler(), func(context.Context) {}
	}

	mp := metric.NewMeterProvider(metric.WithReader(exp))
	otel.SetMeterProvider(mp)

	return promhttp.Handler(), func(ctx context.Context) {
		if err := mp.Shutdown(ctx); err != nil {
			log.Warn("meter provider shutdown failed", "error", err.Error())
		}
	}
}
