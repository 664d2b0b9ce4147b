package market

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/marketpulse/internal/domain"
	"github.com/pscheid92/marketpulse/internal/platform/logging"
)

const (
	DefaultSimulatorInterval = 15 * time.Second
	DefaultMaxSwing          = 0.003
	defaultSinkTimeout       = 2 * time.Second
)

// RandomSource yields uniform values in [0, 1).
type RandomSource interface {
	Float64() float64
}

// NewRandomSource returns a PCG-backed source. A zero seed uses the wall clock.
func NewRandomSource(seed uint64) RandomSource {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// TickSink receives the full table after every simulator pass.
type TickSink interface {
	Name() string
	PublishTick(ctx context.Context, quotes []domain.Quote) error
}

type simulatorRecorder interface {
	ObserveTick(d time.Duration)
	SinkPublished(sink string, err error)
}

type noopRecorder struct{}

func (noopRecorder) ObserveTick(time.Duration) {}
func (noopRecorder) SinkPublished(string, error) {}

// Gate reports whether this process currently owns the random walk.
type Gate interface {
	IsLeader() bool
}

// SimulatorConfig tunes the random walk. Zero values fall back to defaults.
// A nil Gate means the simulator always ticks.
type SimulatorConfig struct {
	Interval    time.Duration
	MaxSwing    float64
	SinkTimeout time.Duration
	Gate        Gate
}

// Simulator moves every price by a small random step on a fixed interval.
type Simulator struct {
	table    *PriceTable
	rng      RandomSource
	clock    clockwork.Clock
	sinks    []TickSink
	recorder simulatorRecorder
	gate     Gate

	interval    time.Duration
	maxSwing    float64
	sinkTimeout time.Duration
}

func NewSimulator(table *PriceTable, rng RandomSource, clock clockwork.Clock, cfg SimulatorConfig, recorder simulatorRecorder, sinks ...TickSink) *Simulator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSimulatorInterval
	}
	if cfg.MaxSwing <= 0 {
		cfg.MaxSwing = DefaultMaxSwing
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &Simulator{
		table:       table,
		rng:         rng,
		clock:       clock,
		sinks:       sinks,
		recorder:    recorder,
		gate:        cfg.Gate,
		interval:    cfg.Interval,
		maxSwing:    cfg.MaxSwing,
		sinkTimeout: cfg.SinkTimeout,
	}
}

// Run ticks until ctx is cancelled.
func (s *Simulator) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Simulator started", "interval", s.interval, "max_swing", s.maxSwing, "sinks", len(s.sinks))

	for {
		select {
		case <-ctx.Done():
			slog.Info("Simulator stopped")
			return
		case <-ticker.Chan():
			if s.gate != nil && !s.gate.IsLeader() {
				slog.Debug("Simulator tick skipped, not leader")
				continue
			}
			s.Tick(logging.WithTraceID(ctx, logging.NewTraceID()))
		}
	}
}

// Tick performs one random-walk pass over the whole table and feeds the sinks.
func (s *Simulator) Tick(ctx context.Context) {
	start := s.clock.Now()

	s.table.UpdateAll(func(q *domain.Quote) bool {
		old := q.Price
		delta := (s.rng.Float64() - 0.5) * s.maxSwing
		q.Price = old * (1 + delta)
		q.Change = q.Price - old
		if old == 0 {
			q.ChangePercent = 0
		} else {
			q.ChangePercent = q.Change / old * 100
		}
		return true
	})

	s.recorder.ObserveTick(s.clock.Since(start))
	slog.DebugContext(ctx, "Simulator tick applied", "quotes", s.table.Len())

	if len(s.sinks) == 0 {
		return
	}

	snapshot := s.table.Get(nil)
	for _, sink := range s.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, s.sinkTimeout)
		err := sink.PublishTick(sinkCtx, snapshot)
		cancel()

		s.recorder.SinkPublished(sink.Name(), err)
		if err != nil {
			slog.WarnContext(ctx, "Simulator: sink publish failed", "sink", sink.Name(), "error", err)
		}
	}
}
