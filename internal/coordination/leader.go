// Package coordination lets several replicas share one Redis without fighting over prices.
// One replica holds the simulator lease and walks prices; the others follow its ticks.
package coordination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	DefaultLeaderKey = "marketpulse:leader:simulator"
	DefaultLeaseTTL  = 10 * time.Second
	releaseTimeout   = 2 * time.Second
)

// ErrNotLeader is returned by RenewLease when this instance is no longer the leader.
var ErrNotLeader = errors.New("not leader")

var renewScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
else
	return 0
end
`)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

type leaderRecorder interface {
	LeadershipChanged(leader bool)
}

// LeaderElection implements single-leader election using SET NX with a TTL.
// If the leader dies its key expires and another instance takes over.
type LeaderElection struct {
	rdb        goredis.Cmdable
	clock      clockwork.Clock
	recorder   leaderRecorder
	instanceID string
	key        string
	ttl        time.Duration

	leader atomic.Bool
}

// NewLeaderElection builds an election on key. rec may be nil.
func NewLeaderElection(rdb goredis.Cmdable, clock clockwork.Clock, rec leaderRecorder, instanceID, key string, ttl time.Duration) *LeaderElection {
	if key == "" {
		key = DefaultLeaderKey
	}
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	return &LeaderElection{
		rdb:        rdb,
		clock:      clock,
		recorder:   rec,
		instanceID: instanceID,
		key:        key,
		ttl:        ttl,
	}
}

// IsLeader reports the last known leadership state without touching Redis.
func (l *LeaderElection) IsLeader() bool {
	return l.leader.Load()
}

func (l *LeaderElection) InstanceID() string {
	return l.instanceID
}

// TryBecomeLeader attempts to acquire the lease.
func (l *LeaderElection) TryBecomeLeader(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.instanceID, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire leader lease: %w", err)
	}
	return ok, nil
}

// RenewLease extends the TTL, only if this instance still holds the key.
func (l *LeaderElection) RenewLease(ctx context.Context) error {
	n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to renew leader lease: %w", err)
	}
	if n == 0 {
		return ErrNotLeader
	}
	return nil
}

// ReleaseLease gives up leadership if this instance still holds it.
func (l *LeaderElection) ReleaseLease(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.instanceID).Err(); err != nil {
		return fmt.Errorf("failed to release leader lease: %w", err)
	}
	return nil
}

// CurrentLeader returns the instance holding the lease, or "" when nobody does.
func (l *LeaderElection) CurrentLeader(ctx context.Context) (string, error) {
	id, err := l.rdb.Get(ctx, l.key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read leader: %w", err)
	}
	return id, nil
}

// Run campaigns every ttl/3 until ctx is cancelled, then releases the lease.
// Any renewal error demotes this instance.
func (l *LeaderElection) Run(ctx context.Context) {
	l.campaign(ctx)

	ticker := l.clock.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.resign()
			return
		case <-ticker.Chan():
			l.campaign(ctx)
		}
	}
}

func (l *LeaderElection) campaign(ctx context.Context) {
	if l.IsLeader() {
		err := l.RenewLease(ctx)
		if err == nil {
			return
		}
		slog.Warn("Lost simulator leadership", "instance_id", l.instanceID, "error", err)
		l.setLeader(false)
	}

	ok, err := l.TryBecomeLeader(ctx)
	if err != nil {
		slog.Warn("Leader election failed", "instance_id", l.instanceID, "error", err)
		return
	}
	if ok {
		slog.Info("Acquired simulator leadership", "instance_id", l.instanceID, "ttl", l.ttl)
		l.setLeader(true)
	}
}

func (l *LeaderElection) resign() {
	if !l.IsLeader() {
		return
	}
	l.setLeader(false)

	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := l.ReleaseLease(ctx); err != nil {
		slog.Warn("Failed to release leadership", "instance_id", l.instanceID, "error", err)
		return
	}
	slog.Info("Released simulator leadership", "instance_id", l.instanceID)
}

func (l *LeaderElection) setLeader(v bool) {
	if l.leader.Swap(v) == v {
		return
	}
	if l.recorder != nil {
		l.recorder.LeadershipChanged(v)
	}
}
