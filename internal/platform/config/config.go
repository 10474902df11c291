package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	Server    Server
	Logging   LoggingConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Reconcile ReconcileConfig
	Identity  IdentityConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

// DatabaseConfig selects the Postgres pool. An empty URL selects in-memory stores.
type DatabaseConfig struct {
	URL             string
	Driver          string // postgres (lib/pq) | pgx
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig configures the lock backend. An empty URL selects in-process locks.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	LockTTL      time.Duration
}

// KafkaConfig configures StatusChanged delivery. No brokers means events are
// only logged.
type KafkaConfig struct {
	Brokers           []string
	StatusTopic       string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
}

// ReconcileConfig tunes the reconciliation scheduler and worker pool. The
// eligibility window is deliberately absent: it is a policy constant.
type ReconcileConfig struct {
	Interval      time.Duration
	Workers       int
	ClientTimeout time.Duration
	RelayInterval time.Duration
	RelayBatch    int
}

// IdentityConfig bounds calls to the identity source.
type IdentityConfig struct {
	LoadTimeout time.Duration
}

const (
	defaultAddr            = ":8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultRequestTimeout  = 30 * time.Second
	defaultLogLevel        = "info"
	defaultLogFormat       = "text"
	defaultDriver          = "postgres"
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultRedisPoolSize   = 10
	defaultRedisTimeout    = 3 * time.Second
	defaultLockTTL         = 30 * time.Second
	defaultStatusTopic     = "membership.status-changed"
	defaultKafkaClientID   = "rmr-membership"
	defaultInterval        = 15 * time.Minute
	defaultWorkers         = 4
	defaultClientTimeout   = 10 * time.Second
	defaultRelayInterval   = 2 * time.Second
	defaultRelayBatch      = 100
	defaultIdentityTimeout = 5 * time.Second
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr: valueOrDefault("RMR_ADDR", defaultAddr),
		},
		Logging: LoggingConfig{
			Level:  valueOrDefault("LOG_LEVEL", defaultLogLevel),
			Format: valueOrDefault("LOG_FORMAT", defaultLogFormat),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			Driver:       valueOrDefault("DATABASE_DRIVER", defaultDriver),
			MaxOpenConns: parseIntWithDefault("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
			MaxIdleConns: parseIntWithDefault("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
			AutoMigrate:  parseBoolWithDefault("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     parseIntWithDefault("REDIS_POOL_SIZE", defaultRedisPoolSize),
			MinIdleConns: parseIntWithDefault("REDIS_MIN_IDLE_CONNS", 0),
		},
		Kafka: KafkaConfig{
			Brokers:           parseCSV(os.Getenv("KAFKA_BROKERS")),
			StatusTopic:       valueOrDefault("KAFKA_STATUS_TOPIC", defaultStatusTopic),
			ClientID:          valueOrDefault("KAFKA_CLIENT_ID", defaultKafkaClientID),
			Partitions:        int32(parseIntWithDefault("KAFKA_STATUS_PARTITIONS", 3)),
			ReplicationFactor: int16(parseIntWithDefault("KAFKA_REPLICATION_FACTOR", 1)),
		},
		Reconcile: ReconcileConfig{
			Workers:    parseIntWithDefault("RECONCILE_WORKERS", defaultWorkers),
			RelayBatch: parseIntWithDefault("OUTBOX_RELAY_BATCH", defaultRelayBatch),
		},
	}

	durations := []struct {
		key      string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", defaultShutdownTimeout, &cfg.Server.ShutdownTimeout},
		{"REQUEST_TIMEOUT", defaultRequestTimeout, &cfg.Server.RequestTimeout},
		{"DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime, &cfg.Database.ConnMaxLifetime},
		{"REDIS_DIAL_TIMEOUT", defaultRedisTimeout, &cfg.Redis.DialTimeout},
		{"REDIS_READ_TIMEOUT", defaultRedisTimeout, &cfg.Redis.ReadTimeout},
		{"REDIS_WRITE_TIMEOUT", defaultRedisTimeout, &cfg.Redis.WriteTimeout},
		{"LOCK_TTL", defaultLockTTL, &cfg.Redis.LockTTL},
		{"RECONCILE_INTERVAL", defaultInterval, &cfg.Reconcile.Interval},
		{"RECONCILE_CLIENT_TIMEOUT", defaultClientTimeout, &cfg.Reconcile.ClientTimeout},
		{"OUTBOX_RELAY_INTERVAL", defaultRelayInterval, &cfg.Reconcile.RelayInterval},
		{"IDENTITY_LOAD_TIMEOUT", defaultIdentityTimeout, &cfg.Identity.LoadTimeout},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.fallback)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if cfg.Reconcile.Workers <= 0 {
		return Config{}, fmt.Errorf("RECONCILE_WORKERS must be positive, got %d", cfg.Reconcile.Workers)
	}
	switch cfg.Database.Driver {
	case "postgres", "pgx":
	default:
		return Config{}, fmt.Errorf("DATABASE_DRIVER must be postgres or pgx, got %q", cfg.Database.Driver)
	}
	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, v)
	}
	return d, nil
}

func parseCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
