package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"tqhub/internal/api"
	"tqhub/internal/audit"
	"tqhub/internal/platform/config"
	"tqhub/internal/platform/logger"
	"tqhub/internal/platform/metrics"
	platformredis "tqhub/internal/platform/redis"
	"tqhub/internal/session"
	"tqhub/internal/storage"
	"tqhub/internal/storage/memory"
	"tqhub/internal/storage/postgres"
	"tqhub/internal/storage/redisstore"
)

// app holds everything a command needs: config, the chosen storage backend,
// and a hydrated session manager.
type app struct {
	cfg     config.Config
	log     *slog.Logger
	store   storage.Store
	client  *api.Client
	manager *session.Manager

	cleanups []func() error
}

// newApp wires the SDK against the configured storage backend and hydrates
// the session so every command starts from the persisted state.
func newApp(ctx context.Context, verbose bool) (*app, error) {
	_ = godotenv.Load()

	a := &app{
		cfg: config.FromEnv(),
		log: logger.Discard(),
	}
	if verbose {
		a.log = logger.New()
	}

	store, err := a.buildStore()
	if err != nil {
		return nil, err
	}
	a.store = store

	a.client = api.New(a.cfg.APIBaseURL)

	opts := []session.Option{
		session.WithSessionKey(a.cfg.SessionKey),
		session.WithLogger(a.log),
		session.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	}
	if a.cfg.Kafka.Brokers != "" {
		publisher, err := audit.NewKafkaPublisher(audit.KafkaConfig{
			Brokers:         a.cfg.Kafka.Brokers,
			Topic:           a.cfg.Kafka.Topic,
			DeliveryTimeout: a.cfg.Kafka.DeliveryTimeout,
		}, a.log)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("audit publisher: %w", err)
		}
		a.cleanups = append(a.cleanups, func() error {
			_ = publisher.Flush(5 * time.Second)
			return publisher.Close()
		})
		opts = append(opts, session.WithAuditPublisher(publisher))
	}

	a.manager = session.New(store, a.client, a.client, opts...)
	if err := a.manager.Hydrate(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("hydrate session: %w", err)
	}
	return a, nil
}

func (a *app) buildStore() (storage.Store, error) {
	switch a.cfg.StorageBackend {
	case "memory":
		// Per-process only; cross-process propagation needs redis or postgres.
		return memory.NewRegion().Open(), nil
	case "redis":
		client, err := platformredis.New(a.cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		if client == nil {
			return nil, fmt.Errorf("redis backend selected but TQHUB_REDIS_URL is empty")
		}
		a.cleanups = append(a.cleanups, client.Close)
		return redisstore.New(client.Client, redisstore.WithLogger(a.log)), nil
	case "postgres":
		if a.cfg.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres backend selected but TQHUB_POSTGRES_DSN is empty")
		}
		store, err := postgres.New(a.cfg.Postgres.DSN, postgres.WithLogger(a.log))
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		a.cleanups = append(a.cleanups, store.Close)
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", a.cfg.StorageBackend)
	}
}

func (a *app) close() {
	a.managerFlush()
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			a.log.Warn("cleanup failed", "error", err)
		}
	}
}

func (a *app) managerFlush() {
	if a.manager != nil {
		a.manager.Flush()
	}
}
