package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/marketpulse/internal/adapter/httpserver"
	"github.com/pscheid92/marketpulse/internal/adapter/kafka"
	"github.com/pscheid92/marketpulse/internal/adapter/memory"
	"github.com/pscheid92/marketpulse/internal/adapter/metrics"
	"github.com/pscheid92/marketpulse/internal/adapter/redis"
	"github.com/pscheid92/marketpulse/internal/broadcast"
	"github.com/pscheid92/marketpulse/internal/coordination"
	"github.com/pscheid92/marketpulse/internal/market"
	"github.com/pscheid92/marketpulse/internal/platform/config"
	"github.com/pscheid92/marketpulse/internal/platform/logging"
	"github.com/pscheid92/marketpulse/internal/platform/version"
	goredis "github.com/redis/go-redis/v9"
)

const shutdownTimeout = 10 * time.Second

type redisResult struct {
	client  *goredis.Client
	mirror  *redis.SnapshotMirror
	checks  []httpserver.HealthCheck
	restore []market.SeedQuote
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func loadSeed(cfg *config.Config) []market.SeedQuote {
	if cfg.SeedFile == "" {
		return market.DefaultSeed()
	}
	quotes, err := market.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		slog.Error("Failed to load seed file", "path", cfg.SeedFile, "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded seed file", "path", cfg.SeedFile, "quotes", len(quotes))
	return quotes
}

// setupRedis connects the optional mirror. The last mirrored table, if any, is returned for restore.
func setupRedis(ctx context.Context, cfg *config.Config, reg prometheus.Registerer, clock clockwork.Clock) *redisResult {
	redisMetrics := metrics.NewRedisMetrics(reg)
	breaker := redis.NewCircuitBreakerHook(redis.BreakerOptions{}, redisMetrics)

	client, err := redis.Connect(ctx, cfg.RedisURL, redis.DefaultConnectPolicy,
		redis.NewMetricsHook(redisMetrics, clock),
		breaker,
	)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}

	mirror := redis.NewSnapshotMirror(client)
	result := &redisResult{
		client: client,
		mirror: mirror,
		checks: []httpserver.HealthCheck{
			{Name: "redis", Check: redis.PingCheck(client)},
			{Name: "redis_breaker", Check: breaker.ReadyCheck},
		},
	}

	latest, err := mirror.Latest(ctx)
	switch {
	case err != nil:
		slog.Warn("Failed to read mirrored snapshot, starting from seed", "error", err)
	case len(latest) > 0:
		slog.Info("Restoring prices from Redis snapshot", "quotes", len(latest))
		result.restore = market.SeedFromQuotes(latest)
	}
	return result
}

// setupCoordination starts leader election and the tick follower. The returned stop
// func releases the lease and must run before the Redis client is closed.
func setupCoordination(cfg *config.Config, client *goredis.Client, table *market.PriceTable, reg prometheus.Registerer, clock clockwork.Clock) (market.Gate, func()) {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	coordMetrics := metrics.NewCoordinationMetrics(reg)
	election := coordination.NewLeaderElection(client, clock, coordMetrics, instanceID, coordination.DefaultLeaderKey, cfg.LeaderTTL)
	follower := coordination.NewTickFollower(client, table, election, coordMetrics)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		election.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		follower.Start(ctx)
	}()

	slog.Info("Replica coordination enabled", "instance_id", instanceID, "lease_ttl", cfg.LeaderTTL)
	return election, func() {
		cancel()
		wg.Wait()
	}
}

func runGracefulShutdown(srv *httpserver.Server, stopSimulator context.CancelFunc, broadcaster *broadcast.Broadcaster, cleanups ...func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		stopSimulator()
		broadcaster.Stop()

		for _, cleanup := range cleanups {
			cleanup()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", version.Get().String())

	registry := metrics.NewRegistry()

	var (
		gate         market.Gate
		sinks        []market.TickSink
		cleanups     []func()
		healthChecks []httpserver.HealthCheck
	)

	table := market.NewPriceTable(clock)
	seed := loadSeed(cfg)

	if cfg.RedisURL != "" {
		connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		rr := setupRedis(connectCtx, cfg, registry, clock)
		cancel()

		sinks = append(sinks, rr.mirror)
		healthChecks = append(healthChecks, rr.checks...)
		if len(rr.restore) > 0 {
			seed = rr.restore
		}
		table.Seed(seed)

		if cfg.Coordination {
			var stopCoordination func()
			gate, stopCoordination = setupCoordination(cfg, rr.client, table, registry, clock)
			cleanups = append(cleanups, stopCoordination)
		}
		cleanups = append(cleanups, func() {
			if err := rr.client.Close(); err != nil {
				slog.Error("Failed to close Redis client", "error", err)
			}
		})
	} else {
		table.Seed(seed)
	}

	if brokers := cfg.Brokers(); len(brokers) > 0 {
		publisher := kafka.NewTickPublisher(kafka.NewWriter(brokers, cfg.KafkaTopic), clock)
		sinks = append(sinks, publisher)
		cleanups = append(cleanups, func() {
			if err := publisher.Close(); err != nil {
				slog.Error("Failed to close Kafka writer", "error", err)
			}
		})
		slog.Info("Kafka tick sink enabled", "brokers", brokers, "topic", cfg.KafkaTopic)
	}

	healthChecks = append([]httpserver.HealthCheck{{
		Name: "price_table",
		Check: func(context.Context) error {
			if table.Len() == 0 {
				return errors.New("price table is empty")
			}
			return nil
		},
	}}, healthChecks...)

	simulator := market.NewSimulator(table, market.NewRandomSource(uint64(cfg.SimSeed)), clock, market.SimulatorConfig{
		Interval:    cfg.SimInterval,
		MaxSwing:    cfg.SimMaxSwing,
		SinkTimeout: cfg.SinkTimeout,
		Gate:        gate,
	}, metrics.NewSimulatorMetrics(registry), sinks...)

	simCtx, stopSimulator := context.WithCancel(context.Background())
	go simulator.Run(simCtx)

	broadcastMetrics := metrics.NewBroadcastMetrics(registry)
	broadcaster := broadcast.NewBroadcaster(table, clock, broadcastMetrics, broadcast.Options{
		MaxViewers:       cfg.MaxViewers,
		DeliveryInterval: cfg.DeliveryInterval,
	})

	srv := httpserver.NewServer(cfg, httpserver.Dependencies{
		Market:       table,
		Viewers:      broadcaster,
		Scripts:      memory.NewScriptStore(clock),
		Alerts:       memory.NewAlertStore(clock),
		Registry:     registry,
		Rejections:   broadcastMetrics,
		HealthChecks: healthChecks,
		Clock:        clock,
	})

	done := runGracefulShutdown(srv, stopSimulator, broadcaster, cleanups...)

	slog.Info("Server starting", "port", cfg.Port, "quotes", table.Len(), "sinks", sinkNames(sinks))
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}

func sinkNames(sinks []market.TickSink) []string {
	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	return names
}
