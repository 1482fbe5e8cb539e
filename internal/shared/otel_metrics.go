package shared

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"google.golang.org/grpc/credentials"

	"github.com/ssherwood/venueservice/internal/config"
)

func grpcMetricOptions() []otlpmetricgrpc.Option {
	options := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(config.OTELCollectorURL),
		otlpmetricgrpc.WithCompressor(config.OTELCompressor),
	}

	if config.OTELExporterInsecure {
		options = append(options, otlpmetricgrpc.WithInsecure())
	} else {
		options = append(options, otlpmetricgrpc.WithTLSCredentials(
			credentials.NewClientTLSFromCert(nil, ""),
		))
	}

	return options
}

// InitializeMetricProvider
// https://opentelemetry.io/docs/languages/go/instrumentation/#metrics
func InitializeMetricProvider(ctx context.Context) (*metric.MeterProvider, error) {
	metricExporter, err := otlpmetricgrpc.New(ctx, grpcMetricOptions()...)
	if err != nil {
		slog.Warn("Unable to initialize OTEL metric exporter", config.ErrAttr(err))
		return nil, err
	}

	meterProvider := metric.NewMeterProvider(
		metric.WithReader(
			metric.NewPeriodicReader(metricExporter, metric.WithInterval(config.OTELMeterInterval)),
		),
		metric.WithResource(serviceResource()),
	)

	// set the global meter provider; instruments created earlier through
	// otel.Meter are delegated to it
	otel.SetMeterProvider(meterProvider)

	return meterProvider, nil
}
