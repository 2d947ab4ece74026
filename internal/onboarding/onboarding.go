// Package onboarding tracks the setup wizard's state. Durable progress
// (skipped flag, current step) lives in the injected store under its own key,
// independent of the session record: it is per-device and survives logout.
// UI flags (open, resume hint, saving) are transient and never persisted.
package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"tqhub/internal/session"
	"tqhub/internal/storage"
	"tqhub/pkg/platform/sentinel"
)

// DefaultKey is the storage key durable wizard progress is persisted under.
const DefaultKey = "tq.onboarding"

// Progress is the durable part of the wizard's state.
type Progress struct {
	WasSkipped  bool `json:"was_skipped"`
	CurrentStep int  `json:"current_step"`
}

// SessionView is the slice of session state the wizard's auto-open decision
// reads. *session.Manager satisfies it.
type SessionView interface {
	IsAuthenticated() bool
	Role() session.Role
	Token() string
	TenantID() int
}

// Checker asks the backend whether this tenant's setup is still incomplete.
type Checker interface {
	NeedsOnboarding(ctx context.Context, token string, tenantID int) (bool, error)
}

// Wizard owns the onboarding state machine for one device.
type Wizard struct {
	store   storage.Store
	session SessionView
	checker Checker
	key     string
	logger  *slog.Logger

	mu         sync.Mutex
	progress   Progress
	open       bool
	resumeHint bool
	saving     bool
}

// Option configures the Wizard.
type Option func(*Wizard)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Wizard) {
		w.logger = logger
	}
}

// WithKey overrides the storage key the progress is persisted under.
func WithKey(key string) Option {
	return func(w *Wizard) {
		w.key = key
	}
}

// New builds a wizard over the given store and session view.
func New(store storage.Store, view SessionView, checker Checker, opts ...Option) *Wizard {
	w := &Wizard{
		store:   store,
		session: view,
		checker: checker,
		key:     DefaultKey,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Hydrate loads persisted progress. Absent or unreadable state yields zero
// progress; the wizard never fails to start over a bad blob.
func (w *Wizard) Hydrate(ctx context.Context) error {
	raw, err := w.store.Get(ctx, w.key)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return err
	}

	var progress Progress
	if err := json.Unmarshal(raw, &progress); err != nil {
		w.logger.Warn("discarding unreadable onboarding progress", "error", err)
		return nil
	}

	w.mu.Lock()
	w.progress = progress
	w.mu.Unlock()
	return nil
}

// OpenWizard shows the wizard at its persisted step.
func (w *Wizard) OpenWizard() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = true
	w.resumeHint = false
}

// CloseWizard dismisses the wizard and resets progress to the first step.
func (w *Wizard) CloseWizard(ctx context.Context) error {
	w.mu.Lock()
	w.open = false
	w.resumeHint = false
	w.progress.CurrentStep = 0
	w.mu.Unlock()
	return w.persist(ctx)
}

// CloseWizardForNavigation hides the wizard without losing the step, and
// marks that it should offer to resume. Nothing durable changes.
func (w *Wizard) CloseWizardForNavigation() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.open = false
	w.resumeHint = true
}

// SkipWizard dismisses the wizard permanently for this device.
func (w *Wizard) SkipWizard(ctx context.Context) error {
	w.mu.Lock()
	w.open = false
	w.resumeHint = false
	w.progress.WasSkipped = true
	w.mu.Unlock()
	return w.persist(ctx)
}

// SetCurrentStep records the step the user is on.
func (w *Wizard) SetCurrentStep(ctx context.Context, step int) error {
	w.mu.Lock()
	w.progress.CurrentStep = step
	w.mu.Unlock()
	return w.persist(ctx)
}

// MaybeAutoOpen opens the wizard unprompted when an admin lands on a tenant
// whose setup is incomplete. Anything short of a positive answer leaves the
// wizard closed: a failing check fails open rather than nagging on every
// transient error.
func (w *Wizard) MaybeAutoOpen(ctx context.Context) {
	if !w.session.IsAuthenticated() || w.session.Role() != session.RoleAdmin {
		return
	}

	w.mu.Lock()
	skipped := w.progress.WasSkipped
	w.mu.Unlock()
	if skipped {
		return
	}

	needed, err := w.checker.NeedsOnboarding(ctx, w.session.Token(), w.session.TenantID())
	if err != nil {
		w.logger.Warn("onboarding check failed, leaving wizard closed", "error", err)
		return
	}
	if !needed {
		return
	}

	w.OpenWizard()
}

func (w *Wizard) persist(ctx context.Context) error {
	w.mu.Lock()
	w.saving = true
	raw, err := json.Marshal(w.progress)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	err = w.store.Set(ctx, w.key, raw)

	w.mu.Lock()
	w.saving = false
	w.mu.Unlock()
	return err
}

// IsOpen reports whether the wizard is currently shown.
func (w *Wizard) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// ResumeHint reports whether the wizard was hidden mid-flight by navigation.
func (w *Wizard) ResumeHint() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.resumeHint
}

// Saving reports whether a persist is in flight.
func (w *Wizard) Saving() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saving
}

// Progress returns a copy of the durable state.
func (w *Wizard) Progress() Progress {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.progress
}
