package config

import (
	"log/slog"
	"os"
	"time"
)

var (
	Hostname, _    = os.Hostname()
	ServiceName    = GetEnv("SERVICE_NAME", "VenueService")
	ServiceVersion = "1.0"

	ServerAddress      = GetEnv("SERVER_ADDRESS", ":8080")
	ServerWriteTimeout = GetEnvAsDuration("WRITE_TIMEOUT", 15*time.Second)
	ServerReadTimeout  = GetEnvAsDuration("READ_TIMEOUT", 10*time.Second)
)

// OpenTelemetry exporter settings
var (
	OTELExporter              = GetEnv("OTEL_EXPORTER", "otlp") // otlp | stdout | none
	OTELCollectorURL          = GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	OTELCompressor            = GetEnv("OTEL_EXPORTER_OTLP_COMPRESSION", "gzip")
	OTELExporterInsecure      = GetEnvAsBool("OTEL_EXPORTER_OTLP_INSECURE", true)
	OTELMeterInterval         = GetEnvAsDuration("OTEL_METER_INTERVAL", 10*time.Second)
	OTELTracerEnabled         = GetEnvAsBool("OTEL_TRACER_ENABLED", true)
	OTELTraceSampleRatio      = GetEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 1.0)
	OTELLogLevel              = GetEnv("LOG_LEVEL", "info")
	OTELPrefixQuerySpanName   = GetEnvAsBool("OTEL_TRACER_PREFIX_QUERY_SPAN_NAME", true)
	OTELTracerLogSQLStatement = GetEnvAsBool("OTEL_TRACER_LOG_SQL_STATEMENT", true)
	OTELTracerIncludeParams   = GetEnvAsBool("OTEL_TRACER_INCLUDE_PARAMS", false)
)

// Database (pgx pool) settings
var (
	DBUserName              = GetEnv("DB_USERNAME", "yugabyte")
	DBPassword              = GetEnv("DB_PASSWORD", "")
	DBHostname              = GetEnv("DB_HOSTNAME", "127.0.0.1:5433")
	DBDatabase              = GetEnv("DB_DATABASE", "yugabyte")
	DBSSLMode               = GetEnv("DB_SSLMODE", "disable")
	DBStatementTimeout      = GetEnvAsDuration("DB_STATEMENT_TIMEOUT", 5*time.Second)
	DBYSQLLoadBalance       = GetEnv("DB_YSQL_LOAD_BALANCE", "true")
	DBYSQLTopologyKeys      = GetEnv("DB_YSQL_TOPOLOGY_KEYS", "")
	DBMaxConns              = GetEnvAsInt32("DB_MAX_CONNS", 10)
	DBMinConns              = GetEnvAsInt32("DB_MIN_CONNS", 2)
	DBMaxConnLifetime       = GetEnvAsDuration("DB_MAX_CONN_LIFETIME", 4*time.Hour)
	DBMaxConnLifetimeJitter = GetEnvAsDuration("DB_MAX_CONN_LIFETIME_JITTER", 15*time.Minute)
	DBHealthCheckPeriod     = GetEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 10*time.Minute)
	DBConnectTimeout        = GetEnvAsDuration("DB_CONNECT_TIMEOUT", 5*time.Second)
	DBReadTimeout           = GetEnvAsDuration("DB_READ_TIMEOUT", 5*time.Second)
	DBRegionSearchRadiusKm  = GetEnvAsFloat("DB_REGION_SEARCH_RADIUS_KM", 50)
	DBApplySchema           = GetEnvAsBool("DB_APPLY_SCHEMA", false)
)

// Form workflow policy
var (
	LocationFixWait        = GetEnvAsDuration("LOCATION_FIX_WAIT", 30*time.Second)
	LocationMinTime        = GetEnvAsDuration("LOCATION_MIN_TIME", 0)
	LocationMinDistance    = GetEnvAsFloat("LOCATION_MIN_DISTANCE", 0)
	AddressAccuracyMeters  = GetEnvAsFloat("ADDRESS_ACCURACY_METERS", 100)
	MapboxBaseURL          = GetEnv("MAPBOX_BASE_URL", "https://api.mapbox.com")
	MapboxToken            = GetEnv("MAPBOX_TOKEN", "")
	GeocoderTimeout        = GetEnvAsDuration("GEOCODER_TIMEOUT", 10*time.Second)
	DefaultRegionID        = GetEnv("DEFAULT_REGION_ID", "")
	DefaultRegionName      = GetEnv("DEFAULT_REGION_NAME", "")
	WorkflowShutdownPeriod = GetEnvAsDuration("WORKFLOW_SHUTDOWN_PERIOD", 15*time.Second)
)

var (
	SlogServiceName    = slog.String("service.name", ServiceName)
	SlogServiceAddress = slog.String("service.address", ServerAddress)
)

func ErrAttr(err error) slog.Attr {
	return slog.Any("error", err)
}
