package workflow

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/ssherwood/venueservice/internal/workflow"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	resolutionCounter, _ = meter.Int64Counter("venueform.resolutions",
		metric.WithDescription("Address resolutions by outcome"),
		metric.WithUnit("{resolution}"))
	lookupCounter, _ = meter.Int64Counter("venueform.lookups",
		metric.WithDescription("Region and reverse-geocode lookups by outcome"),
		metric.WithUnit("{lookup}"))
	submissionCounter, _ = meter.Int64Counter("venueform.submissions",
		metric.WithDescription("Record submissions by outcome"),
		metric.WithUnit("{submission}"))
)

func count(ctx context.Context, counter metric.Int64Counter, attrs ...attribute.KeyValue) {
	if counter == nil {
		return
	}
	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}
