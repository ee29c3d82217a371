package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	platformstrings "github.com/hanibalsk/phone-manager-backend-sub002/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr                   string
	RequestTimeout         time.Duration
	MigrationProgressAfter time.Duration
	JWTSigningKey          string
	JWTIssuer              string
	JWTAudience            string
	AdminAPIToken          string
	LogLevel               string
	DevSeed                bool
}

// Database selects the storage backend. An empty URL selects the in-memory
// backend.
type Database struct {
	URL    string
	Driver string
}

// RedisConfig configures the optional location cache.
type RedisConfig struct {
	URL              string
	PoolSize         int
	MinIdleConns     int
	DialTimeout      time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	LocationCacheTTL time.Duration
}

// Kafka configures the ledger outbox relay. No brokers disables it.
type Kafka struct {
	Brokers            []string
	Topic              string
	OutboxPollInterval time.Duration
}

type Config struct {
	Server   Server
	Database Database
	Redis    RedisConfig
	Kafka    Kafka
}

// FromEnv builds the config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)
	cfg.Server.Addr = getEnv("APP_ADDR", ":8080")
	cfg.Server.JWTSigningKey = os.Getenv("JWT_SIGNING_KEY")
	if cfg.Server.JWTSigningKey == "" {
		// Use a default for development - should be overridden in production
		cfg.Server.JWTSigningKey = "dev-secret-key-change-in-production"
	}
	cfg.Server.JWTIssuer = os.Getenv("JWT_ISSUER")
	cfg.Server.JWTAudience = os.Getenv("JWT_AUDIENCE")
	cfg.Server.AdminAPIToken = os.Getenv("ADMIN_API_TOKEN")
	cfg.Server.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.Server.DevSeed = os.Getenv("DEV_SEED") == "true"
	if cfg.Server.RequestTimeout, err = durationEnv("REQUEST_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Server.MigrationProgressAfter, err = durationEnv("MIGRATION_PROGRESS_AFTER", 2*time.Second); err != nil {
		return cfg, err
	}

	cfg.Database.URL = os.Getenv("DATABASE_URL")
	cfg.Database.Driver = getEnv("DATABASE_DRIVER", "pgx")
	if cfg.Database.Driver != "pgx" && cfg.Database.Driver != "postgres" {
		return cfg, fmt.Errorf("DATABASE_DRIVER must be pgx or postgres, got %q", cfg.Database.Driver)
	}

	cfg.Redis = RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
	if cfg.Redis.LocationCacheTTL, err = durationEnv("LOCATION_CACHE_TTL", 30*time.Second); err != nil {
		return cfg, err
	}

	cfg.Kafka.Brokers = platformstrings.SplitList(os.Getenv("KAFKA_BROKERS"))
	cfg.Kafka.Topic = getEnv("LEDGER_TOPIC", "migration-ledger")
	if cfg.Kafka.OutboxPollInterval, err = durationEnv("OUTBOX_POLL_INTERVAL", time.Second); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// durationEnv accepts Go durations ("2s") or plain seconds ("2").
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
