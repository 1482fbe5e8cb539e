package shared

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/yugabyte/pgx/v5"
	"github.com/yugabyte/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.25.0"

	"github.com/ssherwood/venueservice/internal/config"
)

var passwordPattern = regexp.MustCompile(`(postgres://[^:]+:)([^@]+)(@.+)`)

func InitializeDB(ctx context.Context) (*pgxpool.Pool, error) {
	poolConfig, configErr := pgxPoolConfig()
	if configErr != nil {
		return nil, configErr
	}

	dbPool, poolErr := pgxpool.NewWithConfig(ctx, poolConfig)
	if poolErr != nil {
		slog.Error("Unable to create pgx connection pool", config.ErrAttr(poolErr))
		return nil, poolErr
	}

	if err := InitPgxPoolMeter(dbPool); err != nil {
		slog.Warn("Database pool metrics unavailable", config.ErrAttr(err))
	}
	return dbPool, nil
}

// PingDB forces at least one connection to be established.
func PingDB(ctx context.Context, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(ctx, config.DBConnectTimeout)
	defer cancel()

	if err := db.Ping(ctx); err != nil {
		slog.Error("Unable to reach the database", slog.String("db.host", config.DBHostname), config.ErrAttr(err))
		return err
	}
	return nil
}

func connectionURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s/%s?%s",
		config.DBUserName, config.DBPassword, config.DBHostname, config.DBDatabase,
		mapToOptions(
			map[string]string{
				"sslmode":           config.DBSSLMode,
				"statement_timeout": fmt.Sprint(config.DBStatementTimeout.Milliseconds()),
				"load_balance":      config.DBYSQLLoadBalance,
				"topology_keys":     config.DBYSQLTopologyKeys,
			},
		),
	)
}

func pgxPoolConfig() (*pgxpool.Config, error) {
	url := connectionURL()

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		slog.Warn("Failed to parse pgxpool url", slog.String("url", maskPostgresPassword(url)), config.ErrAttr(err))
		return nil, err
	}

	poolConfig.MaxConns = config.DBMaxConns
	poolConfig.MinConns = config.DBMinConns
	poolConfig.MaxConnLifetime = config.DBMaxConnLifetime
	poolConfig.MaxConnLifetimeJitter = config.DBMaxConnLifetimeJitter
	poolConfig.HealthCheckPeriod = config.DBHealthCheckPeriod
	poolConfig.ConnConfig.ConnectTimeout = config.DBConnectTimeout

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		slog.Debug("Opened database connection", slog.String("host", conn.Config().Host))
		return nil
	}
	poolConfig.BeforeAcquire = defaultBeforeAcquireFn()
	poolConfig.AfterRelease = defaultAfterReleaseFn()
	poolConfig.BeforeClose = defaultBeforeCloseFn()

	if config.OTELTracerEnabled {
		poolConfig.ConnConfig.Tracer = NewQueryTracer([]attribute.KeyValue{
			semconv.DBSystemKey.String("yugabytedb"),
			semconv.DBConnectionStringKey.String(maskPostgresPassword(url)),
			semconv.ServerAddress(config.Hostname),
		})
	}

	return poolConfig, nil
}

// follower reads are switched on per read; a connection must never go back
// to the pool with them enabled
func defaultBeforeAcquireFn() func(ctx context.Context, c *pgx.Conn) bool {
	return func(ctx context.Context, c *pgx.Conn) bool {
		if slog.Default().Enabled(ctx, slog.LevelDebug) {
			var value string
			_ = c.QueryRow(ctx, "select current_setting('yb_read_from_followers')").Scan(&value)
			slog.Debug("Acquiring database connection", slog.String("yb_read_from_followers", value))
		}
		return true
	}
}

func defaultAfterReleaseFn() func(c *pgx.Conn) bool {
	return func(c *pgx.Conn) bool {
		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			var value string
			_ = c.QueryRow(context.Background(), "select current_setting('yb_read_from_followers')").Scan(&value)
			slog.Debug("Released database connection", slog.String("yb_read_from_followers", value))
		}
		return true
	}
}

func defaultBeforeCloseFn() func(c *pgx.Conn) {
	return func(c *pgx.Conn) {
		slog.Debug("Closed database connection", slog.String("host", c.Config().Host))
	}
}

// mapToOptions renders connection parameters in key order, skipping empty values.
func mapToOptions(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	return strings.Join(pairs, "&")
}

func maskPostgresPassword(connURL string) string {
	return passwordPattern.ReplaceAllString(connURL, `${1}*****${3}`)
}
