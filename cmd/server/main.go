package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DukeRupert/marquee/internal"
	"github.com/DukeRupert/marquee/internal/api"
	"github.com/DukeRupert/marquee/internal/csrf"
	"github.com/DukeRupert/marquee/internal/handler"
	"github.com/DukeRupert/marquee/internal/imageproxy"
	"github.com/DukeRupert/marquee/internal/jobs"
	"github.com/DukeRupert/marquee/internal/metrics"
	"github.com/DukeRupert/marquee/internal/middleware"
	"github.com/DukeRupert/marquee/internal/querycache"
	"github.com/DukeRupert/marquee/internal/service"
	"github.com/DukeRupert/marquee/internal/session"
	"github.com/DukeRupert/marquee/internal/storage"
	"github.com/DukeRupert/marquee/internal/worker"
)

// Schedules of the background jobs
const (
	refreshUpcomingInterval = 6 * time.Hour
	warmTrendingInterval    = 15 * time.Minute
	purgeSessionsInterval   = time.Hour
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// ==========================================================================
	// Sessions
	// ==========================================================================

	store, closeStore, err := openSessionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sealer, err := newSealer(cfg, logger)
	if err != nil {
		return err
	}
	sessions := session.NewManager(store, sealer, cfg.SessionDuration, logger)

	// ==========================================================================
	// Movie API and services
	// ==========================================================================

	apiClient, err := api.New(api.Config{
		BaseURL:        cfg.APIBaseURL,
		Timeout:        cfg.APITimeout,
		RateLimit:      cfg.APIRateLimit,
		RateBurst:      cfg.APIRateBurst,
		BreakerTimeout: cfg.APIBreakerTimeout,
		UserAgent:      "marquee/1.0",
	}, nil, logger)
	if err != nil {
		return fmt.Errorf("api client initialization failed: %w", err)
	}

	cache := querycache.New(cfg.CacheTTL)
	scope := querycache.NewScope()
	paging := service.PagingConfig{PageSize: cfg.SearchPageSize, WindowSize: cfg.PaginationWindow}

	catalogService := service.NewCatalogService(apiClient, cache, logger)
	searchService := service.NewSearchService(apiClient, cache, scope, paging, logger)
	recommendationService := service.NewRecommendationService(apiClient, cache, scope, paging, logger)
	collectionService := service.NewCollectionService(apiClient, cache, logger)
	authService := service.NewAuthService(apiClient, sessions, logger)

	// ==========================================================================
	// Image proxy
	// ==========================================================================

	imageStore, err := storage.New(cfg.StorageProvider,
		storage.LocalConfig{BasePath: cfg.LocalStoragePath},
		storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	images := imageproxy.New(imageStore, cfg.ImageBaseURL, &http.Client{Timeout: cfg.APITimeout}, logger)

	// ==========================================================================
	// Background worker
	// ==========================================================================

	var w *worker.Worker
	if cfg.WorkerEnabled {
		workerCfg := worker.DefaultConfig()
		workerCfg.PollInterval = cfg.WorkerPollInterval
		workerCfg.JobTimeout = cfg.WorkerJobTimeout

		w, err = worker.New(workerCfg, logger.With("component", "worker"))
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		w.Register(jobs.NewRefreshUpcomingHandler(catalogService, logger))
		w.Register(jobs.NewWarmTrendingHandler(catalogService, logger))
		w.Register(jobs.NewPurgeSessionsHandler(sessions, cache, logger))

		w.Every(worker.JobTypeRefreshUpcoming, refreshUpcomingInterval, true)
		w.Every(worker.JobTypeWarmTrending, warmTrendingInterval, true)
		w.Every(worker.JobTypePurgeSessions, purgeSessionsInterval, false)
	}

	// Initialize template renderer
	renderer, err := handler.NewRenderer(handler.RendererConfig{
		TemplatesDir: "web/templates",
		Logger:       logger,
		IsDev:        cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))

	// Initialize middleware
	isSecure := cfg.SecureCookies()
	authMw := middleware.NewAuthMiddleware(authService, logger, isSecure)
	authLimiter := middleware.NewAuthRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, logger)
	defer authLimiter.Close()
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	if !metricsAuth.Enabled() {
		logger.Warn("metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService, authLimiter, renderer, logger, isSecure)
	catalogHandler := handler.NewCatalogHandler(catalogService, searchService, collectionService, renderer, logger)
	searchHandler := handler.NewSearchHandler(searchService, catalogService, renderer, logger)
	collectionHandler := handler.NewCollectionHandler(collectionService, recommendationService, renderer, logger)
	healthHandler := handler.NewHealthHandler(apiClient)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Static files
	staticFS := http.FileServer(http.Dir("web/static"))
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticFS))

	// Proxied artwork
	mux.Handle("GET /img/{size}/{file}", images)

	// Health check and metrics
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Public pages
	catalogHandler.RegisterRoutes(mux)
	searchHandler.RegisterRoutes(mux)
	authHandler.RegisterRoutes(mux, handler.AuthRoutes{
		LimitLogin:    authLimiter.LimitLogin,
		LimitRegister: authLimiter.LimitRegister,
		LimitVerify:   authLimiter.LimitVerify,
	})

	// Signed-in pages and mutations
	collectionHandler.RegisterRoutes(mux, authMw.RequireUser)

	// Outermost first: every request gets security headers, metrics and a log
	// line; CSRF and the session apply to everything below.
	app := middleware.Stack(
		middleware.NewSecurityHeadersMiddleware(isSecure, nil).Handler,
		metrics.Middleware,
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		csrf.NewProtect(isSecure, logger).Handler,
		authMw.WithUser,
	)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           app,
		ReadHeaderTimeout: 10 * time.Second,
	}

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()
	if w != nil {
		w.Start(workerCtx)
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env, "api", cfg.APIBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	if w != nil {
		w.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// openSessionStore returns the configured session store and a function that
// releases it.
func openSessionStore(ctx context.Context, cfg *internal.Config, logger *slog.Logger) (session.Store, func(), error) {
	if cfg.SessionStore != "postgres" {
		logger.Info("Using in-memory session store")
		return session.NewMemoryStore(), func() {}, nil
	}

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	return session.NewPostgresStore(db), func() { db.Close() }, nil
}

// newSealer builds the key that encrypts API tokens at rest. Development
// falls back to a random key, which signs everyone out on restart.
func newSealer(cfg *internal.Config, logger *slog.Logger) (*session.Sealer, error) {
	if cfg.SessionSecret != "" {
		sealer, err := session.NewSealerFromHex(cfg.SessionSecret)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_SECRET: %w", err)
		}
		return sealer, nil
	}

	logger.Warn("SESSION_SECRET not set; using a random key")
	sealer, err := session.NewRandomSealer()
	if err != nil {
		return nil, fmt.Errorf("session key generation failed: %w", err)
	}
	return sealer, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
