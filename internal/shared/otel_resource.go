package shared

import (
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"

	"github.com/ssherwood/venueservice/internal/config"
)

func serviceResource() *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.TelemetrySDKLanguageGo,
		semconv.ServiceName(config.ServiceName),
		semconv.ServiceVersion(config.ServiceVersion),
		semconv.HostNameKey.String(config.Hostname),
		semconv.ProcessPIDKey.Int64(int64(os.Getpid())),
	)
}
