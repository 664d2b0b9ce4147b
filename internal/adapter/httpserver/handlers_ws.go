package httpserver

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/marketpulse/internal/domain"
	apperrors "github.com/pscheid92/marketpulse/internal/platform/errors"
)

const (
	maxInboundMessageSize = 512
	closeWriteTimeout     = time.Second
)

// handleWebSocket upgrades to a viewer connection and holds it until the client leaves.
// Viewers only receive; inbound frames are read to process control frames and discarded.
func (s *Server) handleWebSocket(c echo.Context) error {
	ip := c.RealIP()
	if ok, reason := s.limits.Acquire(ip); !ok {
		s.rejections.ViewerRejected(string(reason))
		return apperrors.RateLimitedError("too many connections").WithField("reason", string(reason))
	}
	defer s.limits.Release(ip)

	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// The upgrader already wrote the HTTP error.
		slog.DebugContext(c.Request().Context(), "WebSocket upgrade failed", "error", err)
		return nil
	}

	if err := s.viewers.Register(conn); err != nil {
		s.closeRejected(conn, err)
		return nil
	}
	defer s.viewers.Unregister(conn)

	conn.SetReadLimit(maxInboundMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				slog.DebugContext(c.Request().Context(), "Viewer connection dropped", "error", err)
			}
			return nil
		}
	}
}

func (s *Server) closeRejected(conn *websocket.Conn, err error) {
	code, reason := websocket.CloseInternalServerErr, "registration failed"
	if errors.Is(err, domain.ErrTooManyViewers) {
		code, reason = websocket.CloseTryAgainLater, "too many viewers"
	}
	slog.Warn("Viewer registration refused", "reason", reason, "error", err)

	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, s.clock.Now().Add(closeWriteTimeout))
	_ = conn.Close()
}
