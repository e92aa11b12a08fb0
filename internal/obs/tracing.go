package obs

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracingConfig configures the OpenTelemetry tracer provider.
type TracingConfig struct {
	ServiceName string
	// Exporter is optional; when nil, spans are recorded but not
	// exported, which is convenient for local development and tests.
	Exporter sdktrace.SpanExporter
	// Enabled gates whether a real tracer provider is installed at all;
	// when false, InitTracing installs nothing and OTel's default no-op
	// global provider stays in place.
	Enabled bool
}

// InitTracing installs a global TracerProvider per cfg and returns a
// shutdown function to call during graceful shutdown. Metrics are handled
// separately via prometheus/client_golang directly (see internal/gwmetrics)
// rather than an OTel MeterProvider.
func InitTracing(_ context.Context, cfg TracingConfig) (shutdown func(context.Context) error, err error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []sdktrace.TracerProviderOption{}
	if cfg.Exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(cfg.Exporter))
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
