package shared

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"google.golang.org/grpc/credentials"

	"github.com/ssherwood/venueservice/internal/config"
)

func grpcLogOptions() []otlploggrpc.Option {
	options := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(config.OTELCollectorURL),
		otlploggrpc.WithCompressor(config.OTELCompressor),
	}

	if config.OTELExporterInsecure {
		options = append(options, otlploggrpc.WithInsecure())
	} else {
		options = append(options, otlploggrpc.WithTLSCredentials(
			credentials.NewClientTLSFromCert(nil, ""),
		))
	}

	return options
}

// InitializeLoggingProvider builds the OTEL logger provider for the configured
// exporter ("otlp" batches to the collector, "stdout" writes records as JSON)
// and installs it globally.
func InitializeLoggingProvider(ctx context.Context) (*sdklog.LoggerProvider, error) {
	var processor sdklog.Processor
	switch config.OTELExporter {
	case "stdout":
		exporter, err := stdoutlog.New()
		if err != nil {
			slog.Error("Unable to initialize OTEL stdout log exporter", config.ErrAttr(err))
			return nil, err
		}
		processor = sdklog.NewSimpleProcessor(exporter)
	default:
		exporter, err := otlploggrpc.New(ctx, grpcLogOptions()...)
		if err != nil {
			slog.Error("Unable to initialize OTEL log grpcExporter", config.ErrAttr(err))
			return nil, err
		}
		processor = sdklog.NewBatchProcessor(exporter)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(serviceResource()),
	)

	global.SetLoggerProvider(provider)

	return provider, nil
}

// FanoutHandler writes every record to the console handler and to the OTEL
// slog bridge, which carries the trace context of the call.
type FanoutHandler struct {
	console slog.Handler
	otel    slog.Handler
}

func NewFanoutHandler(console slog.Handler, provider otellog.LoggerProvider) *FanoutHandler {
	return &FanoutHandler{
		console: console,
		otel:    otelslog.NewHandler(config.ServiceName, otelslog.WithLoggerProvider(provider)),
	}
}

// Enabled follows the console level so both sinks see the same records.
func (h *FanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.console.Enabled(ctx, level)
}

func (h *FanoutHandler) Handle(ctx context.Context, rec slog.Record) error {
	return errors.Join(h.console.Handle(ctx, rec.Clone()), h.otel.Handle(ctx, rec))
}

func (h *FanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &FanoutHandler{console: h.console.WithAttrs(attrs), otel: h.otel.WithAttrs(attrs)}
}

func (h *FanoutHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &FanoutHandler{console: h.console.WithGroup(name), otel: h.otel.WithGroup(name)}
}

// ParseLevel maps LOG_LEVEL values onto slog levels, defaulting to info.
func ParseLevel(value string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return slog.LevelInfo
	}
	return level
}
