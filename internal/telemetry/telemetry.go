// Package telemetry installs the OpenTelemetry tracer provider used by the
// queue service spans and the otelhttp server wrapper.
package telemetry

import (
	"context"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	// Endpoint is the OTLP gRPC collector address. Tracing is off when empty.
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// Setup installs an OTLP gRPC tracer provider and returns its shutdown
// function. Without an endpoint it is a no-op.
func Setup(cfg Config, logger *logrus.Logger) func(context.Context) error {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(context.Background(), opts...)
	if err != nil {
		logger.WithError(err).Warn("otel exporter setup failed")
		return func(context.Context) error { return nil }
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(newResource(cfg)),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	logger.WithFields(logrus.Fields{
		"endpoint":     cfg.Endpoint,
		"sample_ratio": sampleRatio(cfg.SampleRatio),
	}).Info("tracing enabled")
	return provider.Shutdown
}

func newResource(cfg Config) *resource.Resource {
	attrs := resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceNamespace("qms"),
	)
	if cfg.ServiceVersion != "" {
		attrs, _ = resource.Merge(attrs, resource.NewSchemaless(semconv.ServiceVersion(cfg.ServiceVersion)))
	}
	if cfg.Environment != "" {
		attrs, _ = resource.Merge(attrs, resource.NewSchemaless(semconv.DeploymentEnvironment(cfg.Environment)))
	}
	return attrs
}

// sampleRatio clamps to (0, 1]; zero or negative means sample everything.
func sampleRatio(ratio float64) float64 {
	if ratio <= 0 || ratio > 1 {
		return 1
	}
	return ratio
}
