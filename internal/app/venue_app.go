package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/yugabyte/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/sdk/log"
	metricsdk "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"

	"github.com/ssherwood/venueservice/internal/api"
	"github.com/ssherwood/venueservice/internal/config"
	"github.com/ssherwood/venueservice/internal/geocode"
	"github.com/ssherwood/venueservice/internal/location"
	"github.com/ssherwood/venueservice/internal/session"
	"github.com/ssherwood/venueservice/internal/shared"
	"github.com/ssherwood/venueservice/internal/venue"
	"github.com/ssherwood/venueservice/internal/workflow"
)

type Application interface {
	Initialize(ctx context.Context) error
	Run()
	Shutdown(ctx context.Context) error
}

type VenueApplication struct {
	Server          *http.Server
	Router          *mux.Router
	TracerProvider  *trace.TracerProvider
	MetricsProvider *metricsdk.MeterProvider
	LoggerProvider  *log.LoggerProvider
	DB              *pgxpool.Pool
	Registry        *api.Registry
	Session         *session.Bus

	stopWorkflows context.CancelFunc
}

func (app *VenueApplication) Initialize(ctx context.Context) error {
	if err := app.initTelemetry(ctx); err != nil {
		return err
	}

	if db, err := shared.InitializeDB(ctx); err != nil {
		return err
	} else {
		app.DB = db

		// force establishing at least one valid connection
		if err = shared.PingDB(ctx, db); err != nil {
			return err
		}
	}

	venueRepository := venue.NewRepository(app.DB)
	if config.DBApplySchema {
		if err := venueRepository.ApplySchema(ctx); err != nil {
			slog.Error("Unable to apply venue schema", config.ErrAttr(err))
			return err
		}
	}
	venueService := venue.NewService(venueRepository)

	app.Router = mux.NewRouter()
	app.Router.Use(otelmux.Middleware(config.ServiceName))
	app.Router.HandleFunc("/healthz", app.health).Methods(http.MethodGet)

	_ = venue.NewHandler(app.Router, venueService)

	gps := location.NewFeedProvider(location.ProviderGPS)
	network := location.NewFeedProvider(location.ProviderNetwork)
	app.Session = session.NewBus()

	workflowCtx, stop := context.WithCancel(context.Background())
	app.stopWorkflows = stop
	app.Registry = api.NewRegistry(workflowCtx, api.Dependencies{
		Regions:       venueService,
		Geocoder:      geocode.NewMapbox(nil, config.MapboxBaseURL, config.MapboxToken),
		Creator:       venueService,
		Providers:     []location.Provider{gps, network},
		Session:       app.Session,
		DefaultRegion: defaultRegion(),
		Policy:        location.UpdatePolicy{MinTime: config.LocationMinTime, MinDistance: config.LocationMinDistance},
		FixWait:       config.LocationFixWait,
		Accuracy:      config.AddressAccuracyMeters,
	})
	_ = api.NewHandler(app.Router, app.Registry, []*location.FeedProvider{gps, network}, app.Session)

	app.Server = &http.Server{
		Handler:      app.Router,
		Addr:         config.ServerAddress,
		WriteTimeout: config.ServerWriteTimeout,
		ReadTimeout:  config.ServerReadTimeout,
		ErrorLog:     slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	return nil
}

// initTelemetry installs the OTEL providers for the configured exporter and
// routes slog through them.
func (app *VenueApplication) initTelemetry(ctx context.Context) error {
	switch config.OTELExporter {
	case "none":
	case "stdout":
		lp, err := shared.InitializeLoggingProvider(ctx)
		if err != nil {
			return err
		}
		app.LoggerProvider = lp
	default:
		lp, err := shared.InitializeLoggingProvider(ctx)
		if err != nil {
			return err
		}
		app.LoggerProvider = lp

		if tp, err := shared.InitTracerProvider(ctx); err != nil {
			return err
		} else {
			app.TracerProvider = tp
		}

		if mp, err := shared.InitializeMetricProvider(ctx); err != nil {
			return err
		} else {
			app.MetricsProvider = mp
		}
	}

	var provider otellog.LoggerProvider
	if app.LoggerProvider != nil {
		provider = app.LoggerProvider
	}
	slog.SetDefault(newLogger(os.Stdout, shared.ParseLevel(config.OTELLogLevel), provider))
	return nil
}

func newLogger(w io.Writer, level slog.Level, provider otellog.LoggerProvider) *slog.Logger {
	consoleHandler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	if provider == nil {
		return slog.New(consoleHandler)
	}
	return slog.New(shared.NewFanoutHandler(consoleHandler, provider))
}

// defaultRegion stands in for the user's saved home region.
func defaultRegion() *workflow.Region {
	if config.DefaultRegionID == "" {
		return nil
	}
	return &workflow.Region{ID: config.DefaultRegionID, Name: config.DefaultRegionName}
}

func (app *VenueApplication) health(w http.ResponseWriter, r *http.Request) {
	if err := app.DB.Ping(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"UP"}`))
}

func (app *VenueApplication) Run() {
	go func() {
		slog.Info("Starting application", config.SlogServiceName, config.SlogServiceAddress)
		if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Warn("Failed to start application", config.SlogServiceName, config.ErrAttr(err))
		}
	}()

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// create a context with timeout for the shutdown process
	cancelContext, cancelFn := context.WithTimeout(context.Background(), config.WorkflowShutdownPeriod)
	defer cancelFn()

	if err := app.Shutdown(cancelContext); err != nil {
		slog.Info("Failed to gracefully shutdown", config.SlogServiceName, config.ErrAttr(err))
	}

	slog.Info("Application stopped.", config.SlogServiceName)
}

// Shutdown - invokes the global shutdown on the app to remove/close open resources
func (app *VenueApplication) Shutdown(ctx context.Context) error {
	slog.Info("Application shutting down...", config.SlogServiceName)

	var errs []error
	if app.Server != nil {
		if err := app.Server.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown HTTP server", config.SlogServiceName, config.ErrAttr(err))
			errs = append(errs, err)
		}
	}

	// in-flight submissions are abandoned; their results are discarded
	if app.Registry != nil {
		if err := app.Registry.Shutdown(ctx); err != nil {
			slog.Warn("Workflows did not stop in time", config.SlogServiceName, config.ErrAttr(err))
			errs = append(errs, err)
		}
	}
	if app.stopWorkflows != nil {
		app.stopWorkflows()
	}

	if app.MetricsProvider != nil {
		if err := app.MetricsProvider.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown OTEL metrics provider", config.SlogServiceName, config.ErrAttr(err))
		}
	}

	if app.TracerProvider != nil {
		if err := app.TracerProvider.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown OTEL tracer provider", config.ErrAttr(err))
		}
	}

	if app.DB != nil {
		app.DB.Close()
	}

	// last, so the messages above still reach the collector
	if app.LoggerProvider != nil {
		if err := app.LoggerProvider.Shutdown(ctx); err != nil {
			slog.Warn("Unable to shutdown OTEL logger provider", config.ErrAttr(err))
		}
	}

	return errors.Join(errs...)
}
