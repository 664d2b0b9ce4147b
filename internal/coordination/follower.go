package coordination

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pscheid92/marketpulse/internal/adapter/redis"
	"github.com/pscheid92/marketpulse/internal/broadcast"
	"github.com/pscheid92/marketpulse/internal/market"
	goredis "github.com/redis/go-redis/v9"
)

type subscriber interface {
	Subscribe(ctx context.Context, channels ...string) *goredis.PubSub
}

type tableApplier interface {
	ApplyAll(quotes []market.SeedQuote) int
}

type followerRecorder interface {
	FollowerMessage(result string)
}

const (
	ResultApplied = "applied"
	ResultIgnored = "ignored"
	ResultInvalid = "invalid"
)

// TickFollower applies ticks published by the leader to the local price table,
// so every replica serves the same prices.
type TickFollower struct {
	rdb      subscriber
	table    tableApplier
	gate     market.Gate
	recorder followerRecorder
}

// NewTickFollower ignores messages while gate reports this instance as leader. rec may be nil.
func NewTickFollower(rdb subscriber, table tableApplier, gate market.Gate, rec followerRecorder) *TickFollower {
	return &TickFollower{rdb: rdb, table: table, gate: gate, recorder: rec}
}

// Start listens on the updates channel. Blocks until ctx is cancelled.
func (f *TickFollower) Start(ctx context.Context) {
	pubsub := f.rdb.Subscribe(ctx, redis.UpdatesChannel)
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok || msg == nil {
				return
			}
			f.record(f.handle(msg.Payload))
		case <-ctx.Done():
			return
		}
	}
}

func (f *TickFollower) handle(payload string) string {
	if f.gate != nil && f.gate.IsLeader() {
		return ResultIgnored
	}

	var env broadcast.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Type != broadcast.MessageTypeMarketData {
		slog.Warn("Invalid tick message on updates channel", "error", err, "type", env.Type)
		return ResultInvalid
	}

	applied := f.table.ApplyAll(market.SeedFromQuotes(env.Data))
	slog.Debug("Applied leader tick", "quotes", len(env.Data), "applied", applied)
	return ResultApplied
}

func (f *TickFollower) record(result string) {
	if f.recorder != nil {
		f.recorder.FollowerMessage(result)
	}
}
