package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pscheid92/marketpulse/internal/domain"
)

// MessageTypeMarketData tags every snapshot pushed to viewers.
const MessageTypeMarketData = "market_data"

// Envelope is the only message shape sent over /ws.
type Envelope struct {
	Type string         `json:"type"`
	Data []domain.Quote `json:"data"`
}

// EncodeMarketData wraps quotes in a market_data envelope. Nil encodes as [].
func EncodeMarketData(quotes []domain.Quote) ([]byte, error) {
	if quotes == nil {
		quotes = []domain.Quote{}
	}
	data, err := json.Marshal(Envelope{Type: MessageTypeMarketData, Data: quotes})
	if err != nil {
		return nil, fmt.Errorf("failed to encode market data envelope: %w", err)
	}
	return data, nil
}

// Conn is the subset of *websocket.Conn the broadcaster writes through.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// SnapshotSource yields the quotes to deliver. Nil symbols means all.
type SnapshotSource interface {
	Get(symbols []string) []domain.Quote
}

// Delivery outcomes reported to the recorder.
const (
	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

type recorder interface {
	ViewerConnected()
	ViewerDisconnected()
	ViewerRejected(reason string)
	Delivery(result string, d time.Duration)
	PingFailed()
	QueueDepth(depth int)
	Panicked()
}

type noopRecorder struct{}

func (noopRecorder) ViewerConnected() {}
func (noopRecorder) ViewerDisconnected() {}
func (noopRecorder) ViewerRejected(string) {}
func (noopRecorder) Delivery(string, time.Duration) {}
func (noopRecorder) PingFailed() {}
func (noopRecorder) QueueDepth(int) {}
func (noopRecorder) Panicked() {}
