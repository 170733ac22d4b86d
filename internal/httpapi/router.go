package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"unified_gateway/internal/auth"
	"unified_gateway/internal/completion"
	"unified_gateway/internal/config"
	"unified_gateway/internal/logging"
	"unified_gateway/internal/metrics"
	"unified_gateway/internal/middleware"
	"unified_gateway/internal/providers"
	"unified_gateway/internal/queue"
	"unified_gateway/internal/upstream"
	"unified_gateway/internal/utils"
)

// Dependencies aggregates all services the HTTP layer needs.
type Dependencies struct {
	Registry       *providers.Registry
	Dispatcher     *completion.Dispatcher
	APIKeys        auth.APIKeyStore // nil when client authentication is disabled
	Metrics        metrics.Recorder
	MetricsHandler http.Handler
	RequestLogger  *logging.RequestLogger
	Sink           logging.Sink

	upstream *upstream.Client
	logger   *utils.Logger
}

// NewDependencies builds the registry from the process environment and wires
// the dispatcher, its sink, metrics, the request logger and client auth.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	logger := utils.NewLogger("httpapi")

	registry := providers.NewRegistryFromEnv()
	logger.Info("Provider registry initialized", "configured", registry.ListActivatedProviders())

	// Dispatch records
	var sink logging.Sink = logging.NewNoopSink()
	if cfg.LoggingSink.Enabled {
		s, err := newDispatchSink(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logging sink: %w", err)
		}
		sink = s
	}

	// Metrics
	var recorder metrics.Recorder = metrics.Noop{}
	metricsHandler := metrics.NoopHandler()
	if cfg.MetricsEnabled {
		m := metrics.New()
		recorder = m
		metricsHandler = m.Handler()
	}

	// Request logger
	var requestLogger *logging.RequestLogger
	if cfg.RequestLogger.Enabled {
		rl, err := logging.NewRequestLogger(
			cfg.RequestLogger.FilePathTemplate,
			cfg.RequestLogger.MaxSize,
			cfg.RequestLogger.MaxFiles,
			cfg.RequestLogger.BufferSize,
			cfg.RequestLogger.FlushInterval,
		)
		if err != nil {
			_ = sink.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize request logger: %w", err)
		}
		requestLogger = rl
	}

	client := upstream.NewClient(cfg.Provider.RequestTimeout)

	deps := &Dependencies{
		Registry: registry,
		Dispatcher: completion.New(registry, client,
			completion.WithSink(sink),
			completion.WithMetrics(recorder),
		),
		Metrics:        recorder,
		MetricsHandler: metricsHandler,
		RequestLogger:  requestLogger,
		Sink:           sink,
		upstream:       client,
		logger:         logger,
	}

	if cfg.ClientAuth.Enabled() {
		store := auth.NewInMemoryAPIKeyStore(cfg.ClientAuth.APIKeys, cfg.ClientAuth.APIKeyHashes)
		deps.APIKeys = store
		logger.Info("Client authentication enabled", "keys", store.Len())
	} else {
		logger.Warn("No gateway API keys configured, client authentication disabled")
	}

	return deps, nil
}

// newDispatchSink buffers dispatch records in a queue and ships them to S3.
func newDispatchSink(ctx context.Context, cfg *config.Config) (*logging.BufferedSink, error) {
	qcfg := queue.DefaultConfig("gateway:dispatch-log")
	qcfg.Capacity = cfg.LoggingSink.BufferSize
	qcfg.BatchSize = cfg.LoggingSink.FlushSize
	qcfg.BatchTimeout = cfg.LoggingSink.FlushInterval
	qcfg.MaxRetries = cfg.LoggingSink.MaxRetries
	qcfg.UseRedis = cfg.LoggingSink.UseRedis && cfg.Redis.Address != ""
	qcfg.RedisAddr = cfg.Redis.Address
	qcfg.RedisPassword = cfg.Redis.Password
	qcfg.RedisDB = cfg.Redis.DB

	writer, err := logging.NewS3Writer(ctx,
		cfg.LoggingSink.S3Bucket,
		cfg.LoggingSink.S3Region,
		cfg.LoggingSink.S3Prefix,
		cfg.LoggingSink.PodName,
	)
	if err != nil {
		return nil, err
	}

	q, dlq, err := queue.New(qcfg)
	if err != nil {
		return nil, err
	}
	return logging.NewBufferedSink(q, dlq, writer, qcfg), nil
}

// Close flushes the request log and dispatch records and releases upstream
// connections.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if d.RequestLogger != nil {
		d.RequestLogger.Shutdown()
	}
	if d.Sink != nil {
		if err := d.Sink.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("logging sink: %w", err))
		}
	}
	if d.upstream != nil {
		if err := d.upstream.Close(); err != nil {
			errs = append(errs, fmt.Errorf("upstream client: %w", err))
		}
	}
	return errors.Join(errs...)
}

// NewRouter creates the HTTP handler with all routes and middleware.
func NewRouter(deps *Dependencies, cfg *config.Config) http.Handler {
	mux := http.NewServeMux()
	registerRoutes(mux, deps, cfg)

	var handler http.Handler = mux
	if deps.RequestLogger != nil {
		handler = deps.RequestLogger.Middleware(handler)
	}
	if deps.Metrics != nil {
		handler = metrics.Middleware(deps.Metrics, handler)
	}
	return handler
}

func registerRoutes(mux *http.ServeMux, deps *Dependencies, cfg *config.Config) {
	// Client routes, protected when gateway API keys are configured
	apiKeyMiddleware := middleware.APIKeyMiddleware(deps.APIKeys, cfg.JWTSecret)
	mux.Handle("GET /providers", apiKeyMiddleware(http.HandlerFunc(deps.handleListProviders)))
	mux.Handle("GET /providers/{provider}/models", apiKeyMiddleware(http.HandlerFunc(deps.handleListModels)))
	mux.Handle("POST /chat/completions", apiKeyMiddleware(http.HandlerFunc(deps.handleChat)))

	// Token exchange - public, only meaningful with keys configured
	if deps.APIKeys != nil {
		mux.HandleFunc("POST /auth/token", auth.AuthHandler(deps.APIKeys, cfg))
	}

	// Health check endpoint - public
	mux.HandleFunc("GET /health", deps.handleHealth)

	// Metrics endpoint - public
	metricsHandler := deps.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = metrics.NoopHandler()
	}
	mux.Handle("GET /metrics", metricsHandler)
}
