package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

const (
	writeDeadline = 5 * time.Second
	pingInterval  = 30 * time.Second
	pongDeadline  = 60 * time.Second
)

// subscription is one viewer's delivery loop.
type subscription struct {
	id       uuid.UUID
	conn     Conn
	clock    clockwork.Clock
	source   SnapshotSource
	recorder recorder
	interval time.Duration

	open     atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func newSubscription(conn Conn, source SnapshotSource, clock clockwork.Clock, rec recorder, interval time.Duration) *subscription {
	s := &subscription{
		id:       uuid.New(),
		conn:     conn,
		clock:    clock,
		source:   source,
		recorder: rec,
		interval: interval,
		done:     make(chan struct{}),
	}
	s.open.Store(true)
	s.configurePongHandler()
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *subscription) run() {
	defer s.wg.Done()

	s.deliver()

	delivery := s.clock.NewTicker(s.interval)
	defer delivery.Stop()
	ping := s.clock.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-delivery.Chan():
			s.deliver()
		case <-ping.Chan():
			s.updateWriteDeadline()
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.recorder.PingFailed()
				slog.Debug("Viewer ping failed", "viewer_id", s.id.String(), "error", err)
			}
		}
	}
}

// deliver pushes one full snapshot. Failures are counted, never retried.
func (s *subscription) deliver() {
	start := s.clock.Now()

	if !s.open.Load() {
		s.recorder.Delivery(ResultSkipped, 0)
		return
	}

	payload, err := EncodeMarketData(s.source.Get(nil))
	if err != nil {
		slog.Error("Failed to encode snapshot", "viewer_id", s.id.String(), "error", err)
		s.recorder.Delivery(ResultFailed, s.clock.Since(start))
		return
	}

	s.updateWriteDeadline()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		slog.Debug("Snapshot delivery failed", "viewer_id", s.id.String(), "error", err)
		s.recorder.Delivery(ResultFailed, s.clock.Since(start))
		return
	}
	s.recorder.Delivery(ResultSent, s.clock.Since(start))
}

// stop cancels the ticker and closes the connection. It returns after the loop has exited.
func (s *subscription) stop() {
	s.stopOnce.Do(func() {
		s.open.Store(false)
		close(s.done)
		_ = s.conn.Close()
	})
	s.wg.Wait()
}

// stopGraceful sends a close frame with reason before closing.
func (s *subscription) stopGraceful(reason string) {
	s.stopOnce.Do(func() {
		s.open.Store(false)
		close(s.done)

		// The loop must be gone before we write, gorilla allows one concurrent writer.
		s.wg.Wait()

		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
		s.updateWriteDeadline()
		_ = s.conn.WriteMessage(websocket.CloseMessage, closeMsg)
		_ = s.conn.Close()
	})
	s.wg.Wait()
}

func (s *subscription) configurePongHandler() {
	s.updateReadDeadline()
	s.conn.SetPongHandler(func(string) error {
		s.updateReadDeadline()
		return nil
	})
}

func (s *subscription) updateWriteDeadline() {
	_ = s.conn.SetWriteDeadline(s.clock.Now().Add(writeDeadline))
}

func (s *subscription) updateReadDeadline() {
	_ = s.conn.SetReadDeadline(s.clock.Now().Add(pongDeadline))
}
