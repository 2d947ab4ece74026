// Package postgres persists the shared region in Postgres. Change events use
// LISTEN/NOTIFY, which is why this backend stays on lib/pq: pq.Listener gives
// a reconnecting listener out of the box.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tqhub/internal/storage"
	"tqhub/pkg/platform/sentinel"
)

const notifyChannel = "tqhub_storage_events"

const schema = `
CREATE TABLE IF NOT EXISTS portal_storage (
    key        TEXT PRIMARY KEY,
    value      BYTEA NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type notification struct {
	Origin string            `json:"origin"`
	Key    string            `json:"key"`
	Kind   storage.EventKind `json:"kind"`
}

// Store is one process's handle onto the Postgres-backed region.
type Store struct {
	db     *sql.DB
	dsn    string
	origin string
	logger *slog.Logger
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New opens the database, ensures the schema, and returns a handle.
func New(dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure storage schema: %w", err)
	}

	s := &Store{
		db:     db,
		dsn:    dsn,
		origin: uuid.NewString(),
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying connection pool. Watch listeners hold their
// own connections and shut down with their contexts.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM portal_storage WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("key %q: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO portal_storage (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return s.notify(ctx, key, storage.EventSet)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM portal_storage WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres delete rows: %w", err)
	}
	if deleted == 0 {
		return nil
	}
	return s.notify(ctx, key, storage.EventCleared)
}

func (s *Store) Watch(ctx context.Context, key string) (<-chan storage.Event, error) {
	listener := pq.NewListener(s.dsn, 10*time.Second, time.Minute, nil)
	if err := listener.Listen(notifyChannel); err != nil {
		_ = listener.Close()
		return nil, fmt.Errorf("postgres listen: %w", err)
	}

	out := make(chan storage.Event, 16)

	go func() {
		defer close(out)
		defer func() { _ = listener.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case n, ok := <-listener.Notify:
				if !ok {
					return
				}
				if n == nil {
					// Reconnect marker from pq; nothing to deliver.
					continue
				}
				var note notification
				if err := json.Unmarshal([]byte(n.Extra), &note); err != nil {
					s.logger.Warn("dropping malformed storage notification", "error", err)
					continue
				}
				if note.Origin == s.origin || note.Key != key {
					continue
				}
				select {
				case out <- storage.Event{Key: note.Key, Kind: note.Kind}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (s *Store) notify(ctx context.Context, key string, kind storage.EventKind) error {
	payload, err := json.Marshal(notification{Origin: s.origin, Key: key, Kind: kind})
	if err != nil {
		return fmt.Errorf("marshal storage notification: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload)); err != nil {
		return fmt.Errorf("postgres notify: %w", err)
	}
	return nil
}
