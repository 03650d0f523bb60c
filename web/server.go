package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"hrm-reasoner/agent"
	"hrm-reasoner/config"
	"hrm-reasoner/web/handlers"
	"hrm-reasoner/web/middleware"
)

type Server struct {
	router  *gin.Engine
	engine  *agent.Engine
	limiter *middleware.ClientRateLimiter
	locks   *middleware.SessionLocks
	logger  *zap.Logger
	config  *config.Config
}

func NewServer(engine *agent.Engine, logger *zap.Logger, config *config.Config) *Server {
	// Set Gin mode based on environment
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(logger))

	server := &Server{
		router: router,
		engine: engine,
		limiter: middleware.NewClientRateLimiter(middleware.RateLimiterConfig{
			RequestsPerMinute: config.RateLimitRequestsPerMin,
			BurstSize:         config.RateLimitBurstSize,
		}, logger),
		locks:  middleware.NewSessionLocks(),
		logger: logger,
		config: config,
	}

	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	reasonHandler := handlers.NewReasonHandler(s.engine, s.locks, s.logger)
	sessionsHandler := handlers.NewSessionsHandler(s.engine.Sessions(), s.logger)

	s.router.GET("/healthz", sessionsHandler.Health)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1", middleware.RateLimitMiddleware(s.limiter))
	v1.POST("/reason", reasonHandler.Reason)

	sessions := v1.Group("/sessions/:id", middleware.SerializeSession(s.locks))
	sessions.GET("", sessionsHandler.Get)
	sessions.DELETE("", sessionsHandler.Delete)
	sessions.GET("/report", sessionsHandler.Report)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases background resources of the server.
func (s *Server) Close() {
	s.limiter.Stop()
}

func (s *Server) Start(ctx context.Context, addr string) error {
	defer s.Close()
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	// Start server in a goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	return srv.Shutdown(context.Background())
}
