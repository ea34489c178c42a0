package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// InitProviders installs an SDK-backed TracerProvider and MeterProvider as
// the global OTEL providers, tagged with serviceName. Neither provider is
// wired to an exporter: cmd/enforcer is a short-lived, per-invocation
// process with no opinion on where telemetry ultimately lands, so this
// just gives ClueTracer/ClueMetrics real span/metric recording machinery
// (sampling, resource attributes, aggregation) instead of the no-op global
// default. A future revision that wants the data to leave the process would
// attach an exporter to the same providers built here.
func InitProviders(ctx context.Context, serviceName string) (shutdown func(context.Context) error) {
	res, err := resource.New(ctx, resource.WithAttributes(attribute.String("service.name", serviceName)))
	if err != nil {
		res = resource.Default()
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))
	otel.SetMeterProvider(mp)

	return func(shutdownCtx context.Context) error {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return mp.Shutdown(shutdownCtx)
	}
}
