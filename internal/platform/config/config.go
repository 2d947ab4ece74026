package config

import (
	"os"
	"strconv"
	"time"
)

// Config captures everything the portal SDK and its tooling read from the
// environment. Sub-structs group per-backend settings.
type Config struct {
	// APIBaseURL is the portal backend the SDK talks to.
	APIBaseURL string
	// SessionKey is the storage key shared by every sub-application on the
	// origin; OnboardingKey is independent of it on purpose.
	SessionKey    string
	OnboardingKey string

	// StorageBackend selects the persisted-store implementation:
	// "memory", "redis", or "postgres".
	StorageBackend string

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig

	// StubAddr is where the development stub backend listens.
	StubAddr string
	// StubSigningKey signs the HS256 tokens the stub mints.
	StubSigningKey string
}

// RedisConfig holds redis connection settings for the redis storage backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds settings for the postgres storage backend.
type PostgresConfig struct {
	DSN string
}

// KafkaConfig holds audit publishing settings. Empty brokers disable
// publishing (the noop publisher is used instead).
type KafkaConfig struct {
	Brokers         string
	Topic           string
	DeliveryTimeout time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		APIBaseURL:     envOr("TQHUB_API_URL", "http://localhost:8080"),
		SessionKey:     envOr("TQHUB_SESSION_KEY", "hub.session"),
		OnboardingKey:  envOr("TQHUB_ONBOARDING_KEY", "tq.onboarding"),
		StorageBackend: envOr("TQHUB_STORAGE", "memory"),
		Redis: RedisConfig{
			URL:          os.Getenv("TQHUB_REDIS_URL"),
			PoolSize:     envInt("TQHUB_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("TQHUB_REDIS_MIN_IDLE", 2),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Postgres: PostgresConfig{
			DSN: os.Getenv("TQHUB_POSTGRES_DSN"),
		},
		Kafka: KafkaConfig{
			Brokers:         os.Getenv("TQHUB_KAFKA_BROKERS"),
			Topic:           envOr("TQHUB_AUDIT_TOPIC", "tqhub.session.audit"),
			DeliveryTimeout: 10 * time.Second,
		},
		StubAddr: envOr("TQHUB_STUB_ADDR", ":8080"),
		// Default is for development only; override in any shared environment.
		StubSigningKey: envOr("TQHUB_STUB_SIGNING_KEY", "dev-secret-key-change-in-production"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
