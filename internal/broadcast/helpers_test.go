package broadcast

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"github.com/pscheid92/marketpulse/internal/domain"
	"github.com/stretchr/testify/require"
)

// staticSource serves a fixed table.
type staticSource struct {
	mu     sync.Mutex
	quotes []domain.Quote
}

func newStaticSource(symbols ...string) *staticSource {
	s := &staticSource{}
	for i, symbol := range symbols {
		s.quotes = append(s.quotes, domain.Quote{
			ID:     uuid.New(),
			Symbol: symbol,
			Name:   symbol + " Ltd",
			Price:  float64(100 * (i + 1)),
		})
	}
	return s
}

func (s *staticSource) Get(_ []string) []domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Quote, len(s.quotes))
	copy(out, s.quotes)
	return out
}

type writtenMessage struct {
	messageType int
	data        []byte
}

// fakeConn records writes and can be told to fail them.
type fakeConn struct {
	mu          sync.Mutex
	messages    []writtenMessage
	attempts    int
	failWrites  bool
	closed      bool
	pongHandler func(string) error
	readDL      time.Time
	writeDL     time.Time
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts++
	if c.failWrites || c.closed {
		return errors.New("broken pipe")
	}
	c.messages = append(c.messages, writtenMessage{messageType: messageType, data: data})
	return nil
}

func (c *fakeConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writeDL = t
	return nil
}

func (c *fakeConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDL = t
	return nil
}

func (c *fakeConn) SetPongHandler(h func(string) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pongHandler = h
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) countType(messageType int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, m := range c.messages {
		if m.messageType == messageType {
			n++
		}
	}
	return n
}

func (c *fakeConn) writeAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// countingRecorder tallies recorder calls.
type countingRecorder struct {
	mu         sync.Mutex
	connected  int
	disconnect int
	rejected   map[string]int
	deliveries map[string]int
	pingFails  int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{rejected: map[string]int{}, deliveries: map[string]int{}}
}

func (r *countingRecorder) ViewerConnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected++
}

func (r *countingRecorder) ViewerDisconnected() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnect++
}

func (r *countingRecorder) ViewerRejected(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[reason]++
}

func (r *countingRecorder) Delivery(result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries[result]++
}

func (r *countingRecorder) PingFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pingFails++
}

func (r *countingRecorder) QueueDepth(int) {}
func (r *countingRecorder) Panicked() {}

func (r *countingRecorder) deliveryCount(result string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliveries[result]
}

// newTestConnPair returns a real server/client WebSocket pair.
func newTestConnPair(t *testing.T) (server *ws.Conn, client *ws.Conn) {
	t.Helper()
	upgrader := ws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	ready := make(chan *ws.Conn, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		ready <- conn
	}))
	t.Cleanup(func() { srv.Close() })

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientConn.Close() })

	serverConn := <-ready
	t.Cleanup(func() { serverConn.Close() })

	return serverConn, clientConn
}

func waitForViewerCount(b *Broadcaster, expected int) bool {
	for range 200 {
		if b.ViewerCount() == expected {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
