package httpserver

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/marketpulse/internal/adapter/memory"
	"github.com/pscheid92/marketpulse/internal/broadcast"
	"github.com/pscheid92/marketpulse/internal/domain"
	"github.com/pscheid92/marketpulse/internal/market"
	"github.com/pscheid92/marketpulse/internal/platform/config"
)

// --- Mock implementations ---

type mockViewers struct {
	registerFn func(conn broadcast.Conn) error
	count      int
}

func (m *mockViewers) Register(conn broadcast.Conn) error {
	if m.registerFn != nil {
		return m.registerFn(conn)
	}
	return nil
}

func (m *mockViewers) Unregister(conn broadcast.Conn) {
	_ = conn.Close()
}

func (m *mockViewers) ViewerCount() int {
	return m.count
}

type mockScriptStore struct {
	listFn   func(ctx context.Context, userID string) ([]domain.PineScript, error)
	createFn func(ctx context.Context, in domain.NewPineScript) (*domain.PineScript, error)
}

func (m *mockScriptStore) List(ctx context.Context, userID string) ([]domain.PineScript, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockScriptStore) Search(context.Context, string, *domain.ScriptCategory) ([]domain.PineScript, error) {
	return nil, errors.New("not implemented")
}

func (m *mockScriptStore) Get(context.Context, uuid.UUID) (*domain.PineScript, error) {
	return nil, domain.ErrScriptNotFound
}

func (m *mockScriptStore) Create(ctx context.Context, in domain.NewPineScript) (*domain.PineScript, error) {
	if m.createFn != nil {
		return m.createFn(ctx, in)
	}
	return nil, errors.New("not implemented")
}

func (m *mockScriptStore) Update(context.Context, uuid.UUID, domain.PineScriptPatch) (*domain.PineScript, error) {
	return nil, errors.New("not implemented")
}

func (m *mockScriptStore) Delete(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

func (m *mockScriptStore) IncrementViews(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

type mockAlertStore struct {
	listFn func(ctx context.Context, userID string) ([]domain.PriceAlert, error)
}

func (m *mockAlertStore) List(ctx context.Context, userID string) ([]domain.PriceAlert, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAlertStore) Create(context.Context, domain.NewPriceAlert) (*domain.PriceAlert, error) {
	return nil, errors.New("not implemented")
}

func (m *mockAlertStore) Delete(context.Context, uuid.UUID) error {
	return errors.New("not implemented")
}

type recordingRejections struct {
	mu      sync.Mutex
	reasons []string
}

func (r *recordingRejections) ViewerRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reasons = append(r.reasons, reason)
}

func (r *recordingRejections) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.reasons...)
}

// --- Test helpers ---

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "production",
		Port:                "0",
		AppURL:              "http://markets.test",
		MaxViewers:          100,
		MaxConnectionsPerIP: 100,
		ConnectionRate:      1000,
		ConnectionBurst:     1000,
		APIRateLimit:        1000,
		APIRateBurst:        1000,
	}
}

// newTestServer wires a seeded price table and in-memory stores unless overridden.
func newTestServer(t *testing.T, opts ...func(*Server)) *Server {
	t.Helper()

	clock := clockwork.NewFakeClock()
	table := market.NewPriceTable(clock)
	table.Seed(market.DefaultSeed())
	cfg := testConfig()

	srv := &Server{
		echo:       echo.New(),
		config:     cfg,
		clock:      clock,
		market:     table,
		viewers:    &mockViewers{},
		scripts:    memory.NewScriptStore(clock),
		alerts:     memory.NewAlertStore(clock),
		rejections: noopRejections{},
		startTime:  clock.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	if srv.limits == nil {
		srv.limits = NewConnectionLimits(int64(srv.config.MaxViewers), srv.config.MaxConnectionsPerIP, srv.config.ConnectionRate, srv.config.ConnectionBurst, srv.clock)
	}
	srv.upgrader = websocket.Upgrader{CheckOrigin: NewCheckOrigin(srv.config.AppURL, srv.config.IsDevelopment())}

	srv.registerRoutes()
	return srv
}

func withHealthChecks(checks ...HealthCheck) func(*Server) {
	return func(s *Server) {
		s.healthChecks = checks
	}
}

func withMarket(m marketReader) func(*Server) {
	return func(s *Server) {
		s.market = m
	}
}

func withViewers(v viewerRegistry) func(*Server) {
	return func(s *Server) {
		s.viewers = v
	}
}

func withScripts(store domain.ScriptStore) func(*Server) {
	return func(s *Server) {
		s.scripts = store
	}
}

func withAlerts(store domain.AlertStore) func(*Server) {
	return func(s *Server) {
		s.alerts = store
	}
}

func withConfig(mutate func(*config.Config)) func(*Server) {
	return func(s *Server) {
		mutate(s.config)
	}
}

func withRealClock() func(*Server) {
	return func(s *Server) {
		s.clock = clockwork.NewRealClock()
	}
}

func withRejections(r rejectionRecorder) func(*Server) {
	return func(s *Server) {
		s.rejections = r
	}
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware(nil)(handler)(c)
}

// serve runs a request through the full router and middleware stack.
func serve(srv *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}
