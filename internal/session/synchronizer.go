package session

import (
	"context"
	"log/slog"

	"tqhub/internal/storage"
)

// Synchronizer keeps this tab's session consistent with the shared persisted
// store. Only logout propagates automatically: when another tab clears the
// session key, this tab logs out and is sent to the login surface. A
// populated record appearing (another tab logged in) is deliberately not
// adopted — silently switching an active tab's identity without user action
// is worse than requiring a reload.
type Synchronizer struct {
	manager  *Manager
	store    storage.Store
	navigate func()
	logger   *slog.Logger
}

type SynchronizerOption func(*Synchronizer)

func WithSynchronizerLogger(logger *slog.Logger) SynchronizerOption {
	return func(s *Synchronizer) {
		s.logger = logger
	}
}

// WithNavigate sets the callback invoked after a cross-tab logout to force
// the host UI onto the login surface.
func WithNavigate(navigate func()) SynchronizerOption {
	return func(s *Synchronizer) {
		s.navigate = navigate
	}
}

// NewSynchronizer wires a synchronizer to the manager's session key. The
// store handle must be the same one the manager writes through, so that the
// no-self-notification guarantee covers this process's own writes.
func NewSynchronizer(manager *Manager, store storage.Store, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		manager:  manager,
		store:    store,
		navigate: func() {},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes storage events until ctx ends. Blocking; run it on its own
// goroutine.
func (s *Synchronizer) Run(ctx context.Context) error {
	events, err := s.store.Watch(ctx, s.manager.SessionKey())
	if err != nil {
		return err
	}

	for event := range events {
		switch event.Kind {
		case storage.EventCleared:
			if s.manager.adoptExternalLogout() {
				s.logger.Info("session cleared by another tab, logging out")
				s.navigate()
			}
		case storage.EventSet:
			// Another tab wrote a fresh record. Login does not propagate;
			// this tab picks it up on its next reload.
		}
	}
	return nil
}
