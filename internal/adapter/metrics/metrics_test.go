package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_ExposesBuildInfo(t *testing.T) {
	reg := NewRegistry()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "marketpulse_build_info")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHTTPMetrics_Middleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/api/market-data", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/health/live", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	for _, path := range []string{"/api/market-data", "/api/market-data", "/health/live"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/api/market-data", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health/live", "200")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.InFlightGauge))
}

func TestHTTPMetrics_RecordError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)

	m.RecordError("validation")
	m.RecordError("validation")
	m.RecordError("not_found")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("validation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("not_found")))

	var nilMetrics *HTTPMetrics
	assert.NotPanics(t, func() { nilMetrics.RecordError("internal") })
}

func TestBroadcastMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBroadcastMetrics(reg)

	m.ViewerConnected()
	m.ViewerConnected()
	m.ViewerDisconnected()
	m.ViewerRejected("max_viewers")
	m.Delivery("sent", 2*time.Millisecond)
	m.Delivery("skipped", 0)
	m.PingFailed()
	m.QueueDepth(7)
	m.Panicked()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Viewers))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ViewersTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Rejected.WithLabelValues("max_viewers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PingFailures))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CommandQueue))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Panics))

	// Skipped deliveries carry no duration.
	assert.Equal(t, 1, testutil.CollectAndCount(m.DeliveryDuration))
	expected := `
# HELP marketpulse_broadcast_viewers Number of live viewer subscriptions.
# TYPE marketpulse_broadcast_viewers gauge
marketpulse_broadcast_viewers 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "marketpulse_broadcast_viewers"))
}

func TestSimulatorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSimulatorMetrics(reg)

	m.ObserveTick(time.Millisecond)
	m.ObserveTick(time.Millisecond)
	m.SinkPublished("redis", nil)
	m.SinkPublished("kafka", errors.New("broker down"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ticks))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkPublishes.WithLabelValues("redis", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkPublishes.WithLabelValues("kafka", "error")))
}

func TestRedisMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRedisMetrics(reg)

	m.Operation("set", nil, time.Millisecond)
	m.Operation("pipeline", errors.New("timeout"), time.Millisecond)
	m.DialFailed()
	m.BreakerChanged("open", 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("set", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OpsTotal.WithLabelValues("pipeline", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConnectionErrors))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BreakerState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BreakerStateChanges.WithLabelValues("open")))
}

func TestCoordinationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCoordinationMetrics(reg)

	m.LeadershipChanged(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IsLeader))

	m.LeadershipChanged(false)
	m.FollowerMessage("applied")
	m.FollowerMessage("applied")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.IsLeader))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LeadershipChanges))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FollowerMessages.WithLabelValues("applied")))
}
