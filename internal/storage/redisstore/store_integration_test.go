//go:build integration

package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tqhub/internal/storage"
	"tqhub/internal/storage/redisstore"
	"tqhub/pkg/platform/sentinel"
	"tqhub/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestGetSetDelete() {
	ctx := context.Background()
	store := redisstore.New(s.redis.Client)

	_, err := store.Get(ctx, "hub.session")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(store.Set(ctx, "hub.session", []byte(`{"token":"t"}`)))
	got, err := store.Get(ctx, "hub.session")
	s.Require().NoError(err)
	s.Equal([]byte(`{"token":"t"}`), got)

	s.Require().NoError(store.Delete(ctx, "hub.session"))
	_, err = store.Get(ctx, "hub.session")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

// TestCrossProcessNotification verifies that a write through one handle is
// observed by a watcher on another handle, while the writer's own watcher
// stays silent.
func (s *RedisStoreSuite) TestCrossProcessNotification() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := redisstore.New(s.redis.Client)
	reader := redisstore.New(s.redis.Client)

	readerEvents, err := reader.Watch(ctx, "hub.session")
	s.Require().NoError(err)
	writerEvents, err := writer.Watch(ctx, "hub.session")
	s.Require().NoError(err)

	s.Require().NoError(writer.Set(ctx, "hub.session", []byte("v")))

	select {
	case ev := <-readerEvents:
		s.Equal(storage.Event{Key: "hub.session", Kind: storage.EventSet}, ev)
	case <-time.After(5 * time.Second):
		s.FailNow("reader did not observe the write")
	}

	select {
	case ev := <-writerEvents:
		s.Failf("unexpected event", "writer observed its own write: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func (s *RedisStoreSuite) TestDeleteOfAbsentKeyEmitsNothing() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := redisstore.New(s.redis.Client)
	reader := redisstore.New(s.redis.Client)

	events, err := reader.Watch(ctx, "hub.session")
	s.Require().NoError(err)

	s.Require().NoError(writer.Delete(ctx, "hub.session"))

	select {
	case ev := <-events:
		s.Failf("unexpected event", "delete of absent key notified: %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func (s *RedisStoreSuite) TestClearedEventPropagates() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writer := redisstore.New(s.redis.Client)
	reader := redisstore.New(s.redis.Client)

	s.Require().NoError(writer.Set(ctx, "hub.session", []byte("v")))

	events, err := reader.Watch(ctx, "hub.session")
	s.Require().NoError(err)

	s.Require().NoError(writer.Delete(ctx, "hub.session"))

	select {
	case ev := <-events:
		s.Equal(storage.EventCleared, ev.Kind)
	case <-time.After(5 * time.Second):
		s.FailNow("cleared event did not propagate")
	}
}
