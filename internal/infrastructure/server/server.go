package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/routeproxy/internal/api/http"
	"github.com/GriffinCanCode/routeproxy/internal/api/middleware"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/config"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/logging"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/routeproxy/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/routeproxy/internal/rewrite"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	http    *http.Server
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return New(cfg, logger)
}

// New creates a server logging to logger.
func New(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c, generated, err := cfg.Route.NewCodec()
	if err != nil {
		return nil, fmt.Errorf("failed to build route codec: %w", err)
	}
	logger.Info("Route codec ready",
		zap.String("kind", string(c.Kind())),
		zap.Bool("generated_key", generated),
		zap.String("base", cfg.Route.Base),
	)
	if generated {
		logger.Warn("No route key configured; routes will not survive a restart")
	}

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("routeproxy", logger.Component("tracing"))

	engine := rewrite.New(
		rewrite.WithLogger(logger.Component("rewrite")),
		rewrite.WithHook(cfg.Route.Hook),
		rewrite.WithObserver(metrics),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestID(logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))

	corsCfg := middleware.DefaultCORSConfig()
	if len(cfg.CORS.Origins) > 0 {
		corsCfg.AllowOrigins = cfg.CORS.Origins
	}
	router.Use(middleware.CORS(corsCfg))

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

	handlers := apihttp.NewHandlers(apihttp.Options{
		Engine:       engine,
		Codec:        c,
		Base:         cfg.Route.Base,
		Metrics:      metrics,
		Tracer:       tracer,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	handlers.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router: router,
		http: &http.Server{
			Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger:  logger,
		config:  cfg,
		metrics: metrics,
		tracer:  tracer,
	}, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run starts the HTTP server and blocks until it stops. A clean shutdown
// returns nil.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to drain connections", zap.Error(err))
	}
	s.tracer.Close()

	// Sync logger before exit
	_ = s.logger.Sync()

	return err
}
