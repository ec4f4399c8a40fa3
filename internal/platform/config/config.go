// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the full process configuration.
type Config struct {
	Server   Server
	Auth     Auth
	Postgres Postgres
	Redis    RedisConfig
	Kafka    Kafka
	Realtime Realtime
	Bus      Bus
	Outbox   Outbox
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string        `env:"TALENTFLOW_ADDR" envDefault:":8080"`
	RequestTimeout  time.Duration `env:"TALENTFLOW_REQUEST_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"TALENTFLOW_SHUTDOWN_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"TALENTFLOW_LOG_LEVEL" envDefault:"info"`
	InternalToken   string        `env:"TALENTFLOW_INTERNAL_TOKEN" envDefault:"dev-internal-token"`
	SeedDemoData    bool          `env:"TALENTFLOW_SEED" envDefault:"true"`
}

// Auth configures bearer token validation.
type Auth struct {
	JWTSigningKey string `env:"JWT_SIGNING_KEY" envDefault:"dev-secret-key-change-in-production"`
	Issuer        string `env:"JWT_ISSUER" envDefault:"talentflow-auth"`
	Audience      string `env:"JWT_AUDIENCE" envDefault:"talentflow"`
}

// Postgres is optional; an empty URL selects the in-memory stores.
type Postgres struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DATABASE_MAX_OPEN_CONNS" envDefault:"20"`
	MaxIdleConns    int           `env:"DATABASE_MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"DATABASE_CONN_MAX_LIFETIME" envDefault:"30m"`
}

// RedisConfig is optional; an empty URL keeps delivery node-local.
type RedisConfig struct {
	URL          string        `env:"REDIS_URL"`
	PoolSize     int           `env:"REDIS_POOL_SIZE" envDefault:"10"`
	MinIdleConns int           `env:"REDIS_MIN_IDLE_CONNS" envDefault:"2"`
	DialTimeout  time.Duration `env:"REDIS_DIAL_TIMEOUT" envDefault:"5s"`
	ReadTimeout  time.Duration `env:"REDIS_READ_TIMEOUT" envDefault:"3s"`
	WriteTimeout time.Duration `env:"REDIS_WRITE_TIMEOUT" envDefault:"3s"`
}

// Kafka is optional; no brokers selects the in-memory bus.
type Kafka struct {
	Brokers       []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic         string   `env:"KAFKA_TOPIC" envDefault:"talentflow.events"`
	ConsumerGroup string   `env:"KAFKA_CONSUMER_GROUP" envDefault:"talentflow-notifications"`
	Partitions    int32    `env:"KAFKA_TOPIC_PARTITIONS" envDefault:"6"`
	Replication   int16    `env:"KAFKA_TOPIC_REPLICATION" envDefault:"1"`
}

// Enabled reports whether any broker is configured.
func (k Kafka) Enabled() bool {
	for _, b := range k.Brokers {
		if strings.TrimSpace(b) != "" {
			return true
		}
	}
	return false
}

// Realtime tunes WebSocket sessions.
type Realtime struct {
	QueueCapacity  int           `env:"REALTIME_QUEUE_CAPACITY" envDefault:"64"`
	PingPeriod     time.Duration `env:"REALTIME_PING_PERIOD" envDefault:"30s"`
	PongWait       time.Duration `env:"REALTIME_PONG_WAIT" envDefault:"60s"`
	WriteWait      time.Duration `env:"REALTIME_WRITE_WAIT" envDefault:"10s"`
	SweepInterval  time.Duration `env:"REALTIME_SWEEP_INTERVAL" envDefault:"30s"`
	BacklogLimit   int           `env:"REALTIME_BACKLOG_LIMIT" envDefault:"1000"`
	AllowedOrigins []string      `env:"REALTIME_ALLOWED_ORIGINS" envSeparator:","`
}

// Bus tunes the in-memory event bus.
type Bus struct {
	Partitions     int           `env:"BUS_PARTITIONS" envDefault:"8"`
	QueueSize      int           `env:"BUS_QUEUE_SIZE" envDefault:"256"`
	RetryInitial   time.Duration `env:"BUS_RETRY_INITIAL" envDefault:"100ms"`
	RetryMax       time.Duration `env:"BUS_RETRY_MAX" envDefault:"10s"`
	HandlerTimeout time.Duration `env:"BUS_HANDLER_TIMEOUT" envDefault:"15s"`
}

// Outbox tunes the relay that moves committed events onto the bus.
type Outbox struct {
	PollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"200ms"`
	BatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// FromEnv builds the process config so main stays lean.
func FromEnv() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings that would wedge the process at runtime.
func (c Config) Validate() error {
	if c.Realtime.QueueCapacity < 1 {
		return fmt.Errorf("REALTIME_QUEUE_CAPACITY must be positive, got %d", c.Realtime.QueueCapacity)
	}
	if c.Realtime.PingPeriod >= c.Realtime.PongWait {
		return fmt.Errorf("REALTIME_PING_PERIOD (%s) must be shorter than REALTIME_PONG_WAIT (%s)",
			c.Realtime.PingPeriod, c.Realtime.PongWait)
	}
	if c.Bus.Partitions < 1 || c.Bus.QueueSize < 1 {
		return fmt.Errorf("BUS_PARTITIONS and BUS_QUEUE_SIZE must be positive")
	}
	if c.Auth.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required")
	}
	return nil
}
