package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	AppURL    string `env:"APP_URL" default:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	SimInterval      time.Duration `env:"SIM_INTERVAL" default:"15s"`
	SimMaxSwing      float64       `env:"SIM_MAX_SWING" default:"0.003"`
	SimSeed          int64         `env:"SIM_SEED" default:"0"`
	DeliveryInterval time.Duration `env:"DELIVERY_INTERVAL" default:"5s"`
	SeedFile         string        `env:"SEED_FILE"`

	MaxViewers          int     `env:"MAX_VIEWERS" default:"1000"`
	MaxConnectionsPerIP int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	ConnectionRate      float64 `env:"CONNECTION_RATE" default:"5"`
	ConnectionBurst     int     `env:"CONNECTION_BURST" default:"10"`
	APIRateLimit        float64 `env:"API_RATE_LIMIT" default:"20"`
	APIRateBurst        int     `env:"API_RATE_BURST" default:"40"`

	RedisURL     string        `env:"REDIS_URL"`
	KafkaBrokers string        `env:"KAFKA_BROKERS"`
	KafkaTopic   string        `env:"KAFKA_TOPIC" default:"market-ticks"`
	SinkTimeout  time.Duration `env:"SINK_TIMEOUT" default:"2s"`

	// Coordination elects one simulator among replicas sharing REDIS_URL.
	Coordination bool          `env:"COORDINATION" default:"false"`
	InstanceID   string        `env:"INSTANCE_ID"`
	LeaderTTL    time.Duration `env:"LEADER_TTL" default:"10s"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// Brokers splits KAFKA_BROKERS on commas. Empty means the Kafka sink is disabled.
func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func validate(cfg *Config) error {
	positiveDurations := map[string]time.Duration{
		"SIM_INTERVAL":      cfg.SimInterval,
		"DELIVERY_INTERVAL": cfg.DeliveryInterval,
		"SINK_TIMEOUT":      cfg.SinkTimeout,
		"LEADER_TTL":        cfg.LeaderTTL,
	}
	for name, d := range positiveDurations {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.SimMaxSwing <= 0 || cfg.SimMaxSwing >= 1 {
		return errors.New("SIM_MAX_SWING must be between 0 and 1")
	}

	positiveInts := map[string]int{
		"MAX_VIEWERS":            cfg.MaxViewers,
		"MAX_CONNECTIONS_PER_IP": cfg.MaxConnectionsPerIP,
		"CONNECTION_BURST":       cfg.ConnectionBurst,
		"API_RATE_BURST":         cfg.APIRateBurst,
	}
	for name, v := range positiveInts {
		if v <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}

	if cfg.ConnectionRate <= 0 {
		return errors.New("CONNECTION_RATE must be positive")
	}
	if cfg.APIRateLimit <= 0 {
		return errors.New("API_RATE_LIMIT must be positive")
	}

	if u, err := url.Parse(cfg.AppURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("APP_URL must be an absolute URL, got %q", cfg.AppURL)
	}

	if cfg.RedisURL != "" {
		if _, err := url.Parse(cfg.RedisURL); err != nil {
			return fmt.Errorf("REDIS_URL is invalid: %w", err)
		}
	}

	if cfg.Coordination && cfg.RedisURL == "" {
		return errors.New("COORDINATION requires REDIS_URL")
	}

	if len(cfg.Brokers()) > 0 && strings.TrimSpace(cfg.KafkaTopic) == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return nil
}
