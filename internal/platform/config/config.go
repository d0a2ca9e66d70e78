package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the process configuration, read once at startup.
type Config struct {
	Server   Server
	Database Database
	Sync     Sync
	Redis    RedisConfig
	Kafka    KafkaConfig
	Auth     Auth
	Log      Log
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Database locates the partition store.
type Database struct {
	URL string
	// Logical is the logical database (Postgres schema) holding partitions.
	Logical          string
	DefaultPartition string
}

// Sync bounds the export and bulk upsert protocol.
type Sync struct {
	PageMin     int
	PageMax     int
	PageDefault int
	MaxBatch    int
}

// RedisConfig configures the optional catalog cache. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CatalogTTL   time.Duration
}

// KafkaConfig configures lifecycle event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Auth holds the identity token and operator token settings.
type Auth struct {
	JWTSigningKey string
	JWTIssuer     string
	AdminToken    string
}

// Log selects the slog handler.
type Log struct {
	Level  string
	Format string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	var errs []error
	cfg := Config{
		Server: Server{
			Addr:            envString("VOTERSTORE_ADDR", ":8080"),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", 10*time.Second, &errs),
		},
		Database: Database{
			URL:              os.Getenv("DATABASE_URL"),
			Logical:          envString("LOGICAL_DATABASE", "voters"),
			DefaultPartition: os.Getenv("DEFAULT_PARTITION"),
		},
		Sync: Sync{
			PageMin:     envInt("SYNC_PAGE_MIN", 1, &errs),
			PageMax:     envInt("SYNC_PAGE_MAX", 500, &errs),
			PageDefault: envInt("SYNC_PAGE_DEFAULT", 100, &errs),
			MaxBatch:    envInt("SYNC_MAX_BATCH", 1000, &errs),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10, &errs),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2, &errs),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second, &errs),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second, &errs),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second, &errs),
			CatalogTTL:   envDuration("CATALOG_CACHE_TTL", 30*time.Second, &errs),
		},
		Kafka: KafkaConfig{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envString("LIFECYCLE_TOPIC", "voterstore.partition-lifecycle"),
		},
		Auth: Auth{
			JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
			JWTIssuer:     envString("JWT_ISSUER", "voterstore"),
			AdminToken:    os.Getenv("ADMIN_API_TOKEN"),
		},
		Log: Log{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Database.Logical == "" {
		errs = append(errs, errors.New("LOGICAL_DATABASE must not be empty"))
	}
	if c.Auth.JWTSigningKey == "" {
		errs = append(errs, errors.New("JWT_SIGNING_KEY is required"))
	}
	s := c.Sync
	if s.PageMin < 1 {
		errs = append(errs, fmt.Errorf("SYNC_PAGE_MIN must be at least 1, got %d", s.PageMin))
	}
	if s.PageMin > s.PageDefault || s.PageDefault > s.PageMax {
		errs = append(errs, fmt.Errorf("sync page sizes must satisfy min <= default <= max, got %d/%d/%d",
			s.PageMin, s.PageDefault, s.PageMax))
	}
	if s.MaxBatch < 1 {
		errs = append(errs, fmt.Errorf("SYNC_MAX_BATCH must be at least 1, got %d", s.MaxBatch))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		errs = append(errs, errors.New("LIFECYCLE_TOPIC must not be empty when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int, errs *[]error) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not an integer", key, raw))
		return def
	}
	return n
}

func envDuration(key string, def time.Duration, errs *[]error) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %q is not a duration", key, raw))
		return def
	}
	return d
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
