package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/HeadlineTester/backend/internal/api/http"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/api/middleware"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/api/ws"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/domain/store"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/HeadlineTester/backend/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	handler http.Handler
	http    *http.Server
	repo    store.Repository
	hub     *ws.Hub
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer creates a new server instance. A nil logger is built from
// cfg.Logging.
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		l, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger = l
	}

	logger.Info("Initializing Headline Tester server",
		zap.String("port", cfg.Server.Port),
		zap.String("public_url", cfg.Server.PublicURL),
		zap.Bool("sqlite", cfg.Store.DSN != ""),
	)

	// Initialize metrics first (needed by other components)
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("headlinetester", logger.Logger)

	repo, err := openRepository(ctx, cfg.Store)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	seeder := store.NewSeeder(repo, logger)
	if cfg.Store.WidgetsFile != "" {
		n, err := seeder.SeedFromFile(ctx, cfg.Store.WidgetsFile)
		if err != nil {
			logger.Warn("Failed to seed widgets", zap.String("file", cfg.Store.WidgetsFile), zap.Error(err))
		} else {
			logger.Info("Seeded widgets", zap.Int("count", n))
		}
	}
	if err := seeder.SeedDefaults(ctx); err != nil {
		logger.Warn("Failed to seed default widget", zap.Error(err))
	}

	svc := store.NewService(repo, store.Options{Logger: logger, Observer: metrics})

	demo, err := apihttp.NewDemoPages(cfg.Server.DemoDir, cfg.Server.PublicURL, cfg.Widget.DefaultToken)
	if err != nil {
		repo.Close()
		tracer.Close()
		return nil, err
	}

	var hub *ws.Hub
	if cfg.Bridge.Enabled {
		hub = ws.NewHub(ws.Options{
			MaxMessageBytes: cfg.Bridge.MaxMessageBytes,
			PingInterval:    cfg.Bridge.PingInterval,
			AllowedOrigins:  cfg.Widget.AllowedOrigins,
			Logger:          logger,
			Metrics:         metrics,
		})
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.Widget.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}
	router.Use(middleware.ControlToken())

	var stats apihttp.BridgeStats
	if hub != nil {
		stats = hub
	}
	handlers := apihttp.NewHandlers(svc, metrics, stats, logger)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Widget API
	api := router.Group("/api/widget")
	api.POST("/experiments", handlers.UpsertExperiment)
	api.GET("/config", handlers.WidgetConfig)
	api.POST("/logs", handlers.StreamLogs)

	// Frame bridge
	if hub != nil {
		router.POST("/bridge/sessions", hub.CreateSession)
		router.GET("/bridge/:session/:role", hub.HandleConnection)
	}

	// Demo host pages
	router.GET("/demo", demo.Index)
	router.GET("/demo/*page", demo.Page)

	logger.Info("Server initialized successfully", zap.Int("demo_pages", len(demo.Names())))

	return &Server{
		router:  router,
		handler: compress(router),
		repo:    repo,
		hub:     hub,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

func openRepository(ctx context.Context, cfg config.StoreConfig) (store.Repository, error) {
	if cfg.DSN == "" {
		return store.NewMemoryRepository(), nil
	}
	repo, err := store.OpenSQLite(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return repo, nil
}

// compress gzips responses except websocket upgrades, which need the
// hijackable writer
func compress(next http.Handler) http.Handler {
	gz := gzhttp.GzipHandler(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			next.ServeHTTP(w, r)
			return
		}
		gz.ServeHTTP(w, r)
	})
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Metrics returns the server's metric set
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Run starts the HTTP server and blocks until it stops. It returns nil
// after Close.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.hub != nil {
		s.hub.Close()
	}
	if s.http != nil {
		if err := s.http.Shutdown(ctx); err != nil {
			s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("failed to shut down http server: %w", err))
		}
	}
	if err := s.repo.Close(); err != nil {
		s.logger.Error("Failed to close store", zap.Error(err))
		errs = append(errs, fmt.Errorf("failed to close store: %w", err))
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
