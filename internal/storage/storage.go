// Package storage defines the persisted-store port the session subsystem
// writes through. One key-value region is shared by every sub-application on
// the origin; backends differ only in where the region lives and how change
// notifications travel between handles.
package storage

import "context"

// EventKind classifies a change notification. "cleared" is a first-class
// event, not a value transition: the cross-tab synchronizer reacts to event
// kinds, never to diffs of opaque blobs.
type EventKind string

const (
	EventSet     EventKind = "set"
	EventCleared EventKind = "cleared"
)

// Event is a change notification for a single key.
type Event struct {
	Key  string
	Kind EventKind
}

// Store is one handle onto the shared region. Every backend guarantees:
//
//   - writes are atomic at the key level
//   - Delete of an absent key is a no-op and emits no event
//   - a handle never observes events for its own writes (standard
//     storage-event semantics: same-tab writes do not self-notify)
//
// Watchers observe only completed writes, so readers never see partial
// records and no locking is needed above this interface.
type Store interface {
	// Get returns the value for key, or sentinel.ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Watch delivers change events for key until ctx ends, at which point the
	// channel is closed. Delivery is best-effort with respect to latency;
	// ordering per writer is preserved.
	Watch(ctx context.Context, key string) (<-chan Event, error)
}
