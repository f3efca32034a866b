// file: internal/gateway/app.go

package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fedgate/config"
	"fedgate/internal/broker"
	"fedgate/internal/federation"
	"fedgate/internal/logger"
	"fedgate/internal/metrics"
	"fedgate/internal/resolver"
)

// App represents the fedgate application with all its components
type App struct {
	config           *config.Config
	logger           *logger.Logger
	metrics          *metrics.Metrics
	broker           *broker.NATSBroker
	cache            *resolver.Cache
	tombstones       *resolver.Tombstones
	sweeper          *resolver.TombstoneSweeper
	resolver         *resolver.HTTPResolver
	authenticator    *federation.Authenticator
	inboundServer    *InboundServer
	metricsServer    *http.Server
	metricsCollector *metrics.MetricsCollector

	// cancels background work owned by the app (cache cleanup)
	cancel context.CancelFunc
}

// NewApp creates a new fedgate application instance
func NewApp(cfg *config.Config) (*App, error) {
	app := &App{config: cfg}

	// Initialize components in dependency order
	if err := app.setupLogger(); err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	if err := app.setupMetrics(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	// Broker first, the actor store and stream check depend on it
	if err := app.setupNATSBroker(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup NATS broker: %w", err)
	}

	if err := app.setupResolver(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup actor resolver: %w", err)
	}

	app.setupAuthenticator()
	app.setupInboundServer()
	app.startMetricsCollector()

	return app, nil
}

// Run starts the application and blocks until ctx is cancelled
func (app *App) Run(ctx context.Context) error {
	app.logger.Info("starting fedgate",
		"environment", app.config.Environment,
		"natsUrls", app.config.NATS.URLs,
		"httpAddress", app.config.HTTP.Server.Address,
		"inboxPaths", app.config.Federation.InboxPaths,
		"gateEnabled", app.config.Federation.GateEnabled,
		"publishMode", app.config.Federation.PublishMode,
		"metricsEnabled", app.config.Metrics.Enabled,
		"kvEnabled", app.config.Resolver.KVEnabled)

	app.sweeper.Start()

	if err := app.inboundServer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start inbound server: %w", err)
	}

	app.logger.Info("fedgate started successfully")

	<-ctx.Done()
	app.logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.config.HTTP.Server.ShutdownGracePeriod)
	defer shutdownCancel()

	if err := app.inboundServer.Stop(shutdownCtx); err != nil {
		app.logger.Error("failed to stop inbound server", "error", err)
	}

	app.logger.Info("shutdown complete")
	return nil
}

// Close gracefully shuts down all application components
func (app *App) Close() error {
	if app.logger == nil {
		return nil
	}
	app.logger.Info("closing application components")

	var errors []error

	if app.metricsCollector != nil {
		app.metricsCollector.Stop()
		app.metricsCollector = nil
	}

	if app.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.metricsServer.Shutdown(shutdownCtx); err != nil {
			errors = append(errors, fmt.Errorf("failed to shutdown metrics server: %w", err))
		}
		app.metricsServer = nil
	}

	if app.sweeper != nil {
		if err := app.sweeper.Stop(); err != nil {
			errors = append(errors, fmt.Errorf("failed to stop tombstone sweeper: %w", err))
		}
		app.sweeper = nil
	}

	if app.cache != nil {
		if err := app.cache.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close actor cache: %w", err))
		}
		app.cache = nil
	}

	if app.cancel != nil {
		app.cancel()
	}

	if app.broker != nil {
		if err := app.broker.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close NATS broker: %w", err))
		}
		app.broker = nil
	}

	if err := app.logger.Sync(); err != nil {
		app.logger.Debug("logger sync completed", "error", err)
	}

	if len(errors) > 0 {
		return fmt.Errorf("cleanup errors: %v", errors)
	}

	return nil
}

// setupLogger initializes the logger
func (app *App) setupLogger() error {
	var err error
	app.logger, err = logger.NewLogger(&app.config.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// setupMetrics initializes metrics collection
func (app *App) setupMetrics() error {
	if !app.config.Metrics.Enabled {
		app.logger.Info("metrics disabled")
		return nil
	}

	reg := prometheus.NewRegistry()
	var err error
	app.metrics, err = metrics.NewMetrics(reg)
	if err != nil {
		return fmt.Errorf("failed to create metrics service: %w", err)
	}

	updateInterval, err := time.ParseDuration(app.config.Metrics.UpdateInterval)
	if err != nil {
		return fmt.Errorf("invalid metrics update interval: %w", err)
	}

	app.metricsCollector = metrics.NewMetricsCollector(app.metrics, updateInterval)

	if err := app.setupMetricsServer(reg); err != nil {
		return fmt.Errorf("failed to setup metrics server: %w", err)
	}

	app.logger.Info("metrics initialized successfully",
		"address", app.config.Metrics.Address,
		"path", app.config.Metrics.Path,
		"updateInterval", updateInterval)

	return nil
}

// setupMetricsServer creates the Prometheus metrics HTTP server
func (app *App) setupMetricsServer(reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle(app.config.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		Registry:          reg,
		EnableOpenMetrics: true,
	}))

	app.metricsServer = &http.Server{
		Addr:    app.config.Metrics.Address,
		Handler: mux,
	}

	go func() {
		app.logger.Info("starting metrics server",
			"address", app.config.Metrics.Address,
			"path", app.config.Metrics.Path)
		if err := app.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("metrics server error", "error", err)
		}
	}()

	return nil
}

// startMetricsCollector registers the resolver gauges and starts collection
func (app *App) startMetricsCollector() {
	if app.metricsCollector == nil {
		return
	}
	cache, tombstones := app.cache, app.tombstones
	app.metricsCollector.AddProbe(func() {
		app.metrics.SetActorCacheEntries(float64(cache.Len()))
		app.metrics.SetTombstonesTracked(float64(tombstones.Len()))
	})
	app.metricsCollector.Start()
}

// setupNATSBroker connects to NATS and, when publishing through JetStream,
// checks that a stream captures the delivery subjects
func (app *App) setupNATSBroker() error {
	app.logger.Info("connecting to NATS server", "urls", app.config.NATS.URLs)

	var err error
	app.broker, err = broker.NewNATSBroker(&app.config.NATS, app.logger, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create NATS broker: %w", err)
	}

	if app.config.Federation.PublishMode != broker.PublishModeJetStream {
		app.logger.Info("publishing deliveries with core NATS", "subjectPrefix", app.config.Federation.SubjectPrefix)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	streams := broker.NewStreamResolver(app.broker.JetStream(), app.logger)
	if err := streams.Discover(ctx); err != nil {
		return err
	}

	subject := app.config.Federation.SubjectPrefix + ".>"
	streamName, err := streams.FindStreamForSubject(subject)
	if err != nil {
		return fmt.Errorf("deliveries would not be persisted: %w", err)
	}

	app.logger.Info("NATS JetStream connected",
		"stream", streamName,
		"subjects", subject)
	return nil
}

// setupResolver builds the actor cache, store, tombstone registry and the
// HTTP resolver that ties them together
func (app *App) setupResolver() error {
	cfg := app.config.Resolver

	ctx, cancel := context.WithCancel(context.Background())
	app.cancel = cancel

	if cfg.CacheTTL > 0 {
		cache, err := resolver.NewCache(ctx, cfg.CacheTTL, cfg.CacheMaxEntrySize, app.logger)
		if err != nil {
			return err
		}
		app.cache = cache
	} else {
		app.logger.Info("actor cache disabled")
	}

	var store resolver.Store
	if cfg.KVEnabled {
		kvCtx, kvCancel := context.WithTimeout(ctx, 30*time.Second)
		defer kvCancel()

		kv, err := app.broker.KeyValue(kvCtx, cfg.KVBucket, cfg.KVTTL)
		if err != nil {
			return err
		}
		store = resolver.NewKVStore(kv, app.logger)
		app.logger.Info("actor store backed by NATS KV", "bucket", cfg.KVBucket, "ttl", cfg.KVTTL)
	} else {
		store = resolver.NewMemoryStore()
		app.logger.Info("actor store held in memory")
	}

	app.tombstones = resolver.NewTombstones(cfg.TombstoneRetention)
	sweeper, err := resolver.NewTombstoneSweeper(app.tombstones, cfg.TombstoneSweepSchedule, app.logger, app.metrics)
	if err != nil {
		return err
	}
	app.sweeper = sweeper

	app.resolver = resolver.NewHTTPResolver(resolver.Options{
		Client:     newHTTPClient(&app.config.HTTP.Client),
		UserAgent:  app.config.HTTP.Client.UserAgent,
		Cache:      app.cache,
		Store:      store,
		Tombstones: app.tombstones,
		Metrics:    app.metrics,
	}, app.logger)

	return nil
}

// setupAuthenticator creates the inbound signature authenticator
func (app *App) setupAuthenticator() {
	mode := federation.NewMode(app.config.Environment)
	app.authenticator = federation.NewAuthenticator(app.resolver, mode, app.logger,
		federation.WithStore(app.resolver.Store()),
		federation.WithMetrics(app.metrics),
	)
	app.logger.Info("signature authenticator configured",
		"mode", mode.String(),
		"open", mode.IsOpen())
}

// setupInboundServer creates the HTTP inbox server (HTTP → NATS)
func (app *App) setupInboundServer() {
	srv := app.config.HTTP.Server
	fed := app.config.Federation

	app.inboundServer = NewInboundServer(
		app.logger,
		app.metrics,
		app.authenticator,
		app.broker.NewPublisher(fed.PublishMode, fed.AckTimeout),
		&ServerConfig{
			Address:             srv.Address,
			ReadTimeout:         srv.ReadTimeout,
			WriteTimeout:        srv.WriteTimeout,
			IdleTimeout:         srv.IdleTimeout,
			MaxHeaderBytes:      srv.MaxHeaderBytes,
			MaxBodyBytes:        srv.MaxBodyBytes,
			ShutdownGracePeriod: srv.ShutdownGracePeriod,
			InboundWorkerCount:  srv.InboundWorkerCount,
			InboundQueueSize:    srv.InboundQueueSize,
		},
		&InboxConfig{
			Paths:         fed.InboxPaths,
			SubjectPrefix: fed.SubjectPrefix,
			GateEnabled:   fed.GateEnabled,
			Mode:          federation.NewMode(app.config.Environment),
		},
	)

	app.logger.Info("inbound server configured",
		"address", srv.Address,
		"paths", len(fed.InboxPaths))
}

// newHTTPClient builds the client used to dereference actor documents
func newHTTPClient(cfg *config.HTTPClientConfig) *http.Client {
	return &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			IdleConnTimeout:     cfg.IdleConnTimeout,
		},
	}
}
