package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"firewatch-worker-go/internal/api/handlers"
	"firewatch-worker-go/internal/api/middleware"
	"firewatch-worker-go/internal/config"
	"firewatch-worker-go/internal/services"
)

type Server struct {
	config    *config.Config
	container *services.ServiceContainer
	router    *gin.Engine
	server    *http.Server

	// baseCtx parents every request so open MJPEG and websocket streams
	// end when Shutdown is called.
	baseCtx    context.Context
	cancelBase context.CancelFunc

	healthHandler    *handlers.HealthHandler
	systemHandler    *handlers.SystemHandler
	streamHandler    *handlers.StreamHandler
	sensorHandler    *handlers.SensorHandler
	dashboardHandler *handlers.DashboardHandler
	statsHandler     *handlers.StatsHandler
}

// NewServer builds the service container, then the router around it.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	container, err := services.NewServiceContainer(ctx, cfg)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	baseCtx, cancel := context.WithCancel(context.Background())

	s := &Server{
		config:     cfg,
		container:  container,
		router:     gin.New(),
		baseCtx:    baseCtx,
		cancelBase: cancel,

		healthHandler: handlers.NewHealthHandler(cfg.WorkerID, cfg.Version, container.Device, container.Pipeline),
		systemHandler: handlers.NewSystemHandler(cfg.WorkerID),
		streamHandler: handlers.NewStreamHandler(container.Pipeline, container.Publisher),
		sensorHandler: handlers.NewSensorHandler(container.Telemetry),
		dashboardHandler: handlers.NewDashboardHandler(handlers.DashboardData{
			WorkerID:              cfg.WorkerID,
			Device:                container.Device,
			Channels:              container.Telemetry.Channels(),
			StreamFPS:             cfg.StreamFPS,
			EffectiveInferenceFPS: cfg.EffectiveInferenceFPS(),
		}, cfg.StaticDir),
		statsHandler: handlers.NewStatsHandler(
			func() interface{} { return container.Pipeline.Stats() },
			func() interface{} { return container.Publisher.Stats() },
			cfg.StatsInterval,
		),
	}

	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return s.baseCtx },
	}
	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.RequestContext())
	s.router.Use(middleware.Logger())
	s.router.Use(middleware.CORS())
}

// Start launches the pipeline and blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	if err := s.container.Start(); err != nil {
		return err
	}
	log.Info().Int("port", s.config.Port).Msg("Starting Firewatch worker API")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections, ends open streams and stops the pipeline.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Stopping Firewatch worker API")
	s.cancelBase()
	httpErr := s.server.Shutdown(ctx)
	if err := s.container.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Service shutdown failed")
	}
	return httpErr
}

func (s *Server) Router() *gin.Engine {
	return s.router
}
