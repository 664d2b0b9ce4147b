package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/marketpulse/internal/adapter/metrics"
	"github.com/pscheid92/marketpulse/internal/broadcast"
	"github.com/pscheid92/marketpulse/internal/domain"
	"github.com/pscheid92/marketpulse/internal/platform/config"
)

type marketReader interface {
	Get(symbols []string) []domain.Quote
	GetBySymbol(symbol string) (domain.Quote, bool)
	TopByChangePercent(limit int, ascending bool) []domain.Quote
	TopByVolume(limit int) []domain.Quote
}

type viewerRegistry interface {
	Register(conn broadcast.Conn) error
	Unregister(conn broadcast.Conn)
	ViewerCount() int
}

type rejectionRecorder interface {
	ViewerRejected(reason string)
}

// Dependencies are the collaborators the HTTP layer serves from.
// Registry, Rejections and Clock are optional.
type Dependencies struct {
	Market       marketReader
	Viewers      viewerRegistry
	Scripts      domain.ScriptStore
	Alerts       domain.AlertStore
	Registry     *prometheus.Registry
	Rejections   rejectionRecorder
	HealthChecks []HealthCheck
	Clock        clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	market  marketReader
	viewers viewerRegistry
	scripts domain.ScriptStore
	alerts  domain.AlertStore

	upgrader    websocket.Upgrader
	limits      *ConnectionLimits
	rejections  rejectionRecorder
	registry    *prometheus.Registry
	httpMetrics *metrics.HTTPMetrics

	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:         e,
		config:       cfg,
		clock:        clock,
		market:       deps.Market,
		viewers:      deps.Viewers,
		scripts:      deps.Scripts,
		alerts:       deps.Alerts,
		limits:       NewConnectionLimits(int64(cfg.MaxViewers), cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst, clock),
		rejections:   deps.Rejections,
		registry:     deps.Registry,
		healthChecks: deps.HealthChecks,
		startTime:    clock.Now(),
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
	}
	if srv.rejections == nil {
		srv.rejections = noopRejections{}
	}
	if srv.registry != nil {
		srv.httpMetrics = metrics.NewHTTPMetrics(srv.registry)
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

type noopRejections struct{}

func (noopRejections) ViewerRejected(string) {}
