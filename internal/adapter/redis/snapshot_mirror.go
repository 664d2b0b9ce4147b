package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pscheid92/marketpulse/internal/broadcast"
	"github.com/pscheid92/marketpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

const (
	SnapshotKey    = "market:snapshot"
	QuotesKey      = "market:quotes"
	UpdatesChannel = "market_data"
)

// SnapshotMirror writes each tick to Redis so other processes can read the latest
// table or follow updates over pub/sub.
type SnapshotMirror struct {
	rdb goredis.Cmdable
}

func NewSnapshotMirror(rdb goredis.Cmdable) *SnapshotMirror {
	return &SnapshotMirror{rdb: rdb}
}

func (m *SnapshotMirror) Name() string { return "redis" }

// PublishTick stores the envelope under SnapshotKey, one JSON quote per symbol in
// QuotesKey, and publishes the envelope on UpdatesChannel in a single transaction.
func (m *SnapshotMirror) PublishTick(ctx context.Context, quotes []domain.Quote) error {
	envelope, err := broadcast.EncodeMarketData(quotes)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	fields := make([]any, 0, 2*len(quotes))
	for _, q := range quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("failed to encode quote %s: %w", q.Symbol, err)
		}
		fields = append(fields, q.Symbol, data)
	}

	_, err = m.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Set(ctx, SnapshotKey, envelope, 0)
		if len(fields) > 0 {
			pipe.HSet(ctx, QuotesKey, fields...)
		}
		pipe.Publish(ctx, UpdatesChannel, envelope)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mirror snapshot: %w", err)
	}
	return nil
}

// Latest reads back the last mirrored table. It returns nil when nothing was written yet.
func (m *SnapshotMirror) Latest(ctx context.Context) ([]domain.Quote, error) {
	data, err := m.rdb.Get(ctx, SnapshotKey).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var env broadcast.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return env.Data, nil
}
