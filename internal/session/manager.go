package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"tqhub/internal/audit"
	"tqhub/internal/platform/metrics"
	"tqhub/internal/storage"
	dErrors "tqhub/pkg/domain-errors"
)

// State is the manager's lifecycle position.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateHydrating     State = "hydrating"
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
)

// DefaultSessionKey is the storage key shared by every sub-application on
// the origin.
const DefaultSessionKey = "hub.session"

// Manager owns in-memory authentication state and is the single writer of
// the persisted store for this process's lifetime. All transitions go
// through it; everything else only reads derived state.
type Manager struct {
	store      storage.Store
	resolver   TenantResolver
	api        AuthAPI
	sessionKey string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	audit      AuditPublisher
	bgCtx      context.Context

	mu             sync.RWMutex
	state          State
	hydrated       bool
	record         *Record
	tenant         TenantInfo
	profileLoading bool
	lastErr        error
	// generation is bumped by every login and logout. A response that
	// started under an older generation is discarded, never applied, so a
	// late success cannot resurrect a logged-out session.
	generation uint64

	flight singleflight.Group
	bg     sync.WaitGroup
}

type Option func(*Manager)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

func WithMetrics(mx *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mx
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(m *Manager) {
		m.audit = publisher
	}
}

func WithSessionKey(key string) Option {
	return func(m *Manager) {
		m.sessionKey = key
	}
}

// WithBackgroundContext sets the context used for work that outlives the
// caller: async profile refreshes and best-effort logout notifications.
func WithBackgroundContext(ctx context.Context) Option {
	return func(m *Manager) {
		m.bgCtx = ctx
	}
}

// New constructs a Manager. Call Hydrate before anything else.
func New(store storage.Store, resolver TenantResolver, api AuthAPI, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		resolver:   resolver,
		api:        api,
		sessionKey: DefaultSessionKey,
		logger:     slog.New(slog.DiscardHandler),
		audit:      audit.NoopPublisher{},
		bgCtx:      context.Background(),
		state:      StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hydrate reads the persisted store and settles into authenticated or
// anonymous. A complete stored record authenticates immediately and triggers
// an async profile refresh; UI readiness never blocks on the refresh.
// Anything less than a complete record counts as absent.
func (m *Manager) Hydrate(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return dErrors.New(dErrors.CodeConflict, "session already hydrated")
	}
	m.state = StateHydrating
	m.mu.Unlock()

	var record *Record
	raw, err := m.store.Get(ctx, m.sessionKey)
	if err == nil {
		record = Decode(raw)
	}

	m.mu.Lock()
	m.hydrated = true
	if !record.Complete() {
		m.state = StateAnonymous
		m.mu.Unlock()
		return nil
	}

	metadata := DecodeTokenMetadata(record.Token)
	m.record = record
	m.tenant = TenantInfo{Timezone: metadata.Timezone, Locale: metadata.Locale}
	m.state = StateAuthenticated
	generation := m.generation
	m.mu.Unlock()

	m.logger.Info("session rehydrated", "tenant_id", record.TenantID, "email", record.User.Email)
	m.spawnProfileRefresh(generation)
	return nil
}

// Login performs the two-phase flow: resolve the tenant for the email, then
// authenticate inside that tenant's context. Each step's failure aborts the
// remainder and leaves no partial state, in memory or persisted.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()
	if state != StateAnonymous {
		return dErrors.New(dErrors.CodeConflict, "login requires an anonymous session")
	}

	tenant, err := m.resolver.ResolveTenant(ctx, email)
	if err != nil {
		m.recordLoginFailure(err)
		return err
	}

	result, err := m.api.Login(ctx, tenant.ID, email, password)
	if err != nil {
		m.recordLoginFailure(err)
		return err
	}

	// Decode failure only degrades display formatting; it never fails login.
	metadata := DecodeTokenMetadata(result.Token)

	user := result.User
	record := &Record{Token: result.Token, TenantID: tenant.ID, User: &user}
	raw, err := Encode(record)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode session record")
	}
	if err := m.store.Set(ctx, m.sessionKey, raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist session record")
	}

	m.mu.Lock()
	m.record = record
	m.tenant = TenantInfo{Name: tenant.Name, Timezone: metadata.Timezone, Locale: metadata.Locale}
	m.state = StateAuthenticated
	m.lastErr = nil
	m.generation++
	generation := m.generation
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.Logins.Inc()
	}
	m.emitAudit(audit.ActionLogin, record)
	m.logger.Info("login succeeded", "tenant_id", tenant.ID, "email", email)

	m.spawnProfileRefresh(generation)
	return nil
}

// RefreshProfile fetches the authenticated profile and merges role,
// allowed apps, and tenant display fields into memory. The persisted token
// and tenant ID are never rewritten. An auth-rejection response converts
// into an implicit logout rather than an error; other failures are recorded
// and the session stays authenticated (a stale profile beats a forced
// logout on a transient error).
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.mu.RLock()
	state := m.state
	record := m.record
	generation := m.generation
	m.mu.RUnlock()

	if state != StateAuthenticated {
		return dErrors.New(dErrors.CodeUnauthorized, "no active session")
	}
	if !record.Complete() {
		// Fail fast, no network call.
		return dErrors.New(dErrors.CodeProfileLoadError, "session record incomplete")
	}
	return m.refreshProfile(ctx, generation)
}

func (m *Manager) refreshProfile(ctx context.Context, generation uint64) error {
	// Concurrent refreshes within one generation collapse into one flight.
	_, err, _ := m.flight.Do(fmt.Sprintf("profile:%d", generation), func() (any, error) {
		return nil, m.doRefreshProfile(ctx, generation)
	})
	return err
}

func (m *Manager) doRefreshProfile(ctx context.Context, generation uint64) error {
	m.mu.Lock()
	if m.generation != generation || m.state != StateAuthenticated {
		m.mu.Unlock()
		return nil
	}
	record := m.record
	m.profileLoading = true
	m.mu.Unlock()

	profile, err := m.api.FetchProfile(ctx, record.Token, record.TenantID)

	m.mu.Lock()
	m.profileLoading = false
	if m.generation != generation || m.state != StateAuthenticated {
		// The session this response belongs to is gone. Discard.
		m.mu.Unlock()
		return nil
	}

	if err != nil {
		if isAuthRejection(err) {
			m.mu.Unlock()
			m.logger.Warn("credential rejected during profile refresh, logging out",
				"tenant_id", record.TenantID)
			m.implicitLogout()
			return nil
		}
		m.lastErr = dErrors.Wrap(err, dErrors.CodeProfileLoadError, "profile refresh failed")
		refreshErr := m.lastErr
		m.mu.Unlock()
		m.logger.Warn("profile refresh failed, keeping session", "error", err)
		return refreshErr
	}

	m.record.User.Role = profile.Role
	m.record.User.AllowedApps = profile.AllowedApps
	m.tenant.Name = profile.TenantName
	m.tenant.Slug = profile.TenantSlug
	m.lastErr = nil
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.ProfileRefreshes.Inc()
	}
	return nil
}

// isAuthRejection reports whether an error means the credential itself was
// rejected (expired or invalid), as opposed to the profile merely failing to
// load.
func isAuthRejection(err error) bool {
	return dErrors.HasCode(err, dErrors.CodeSessionExpired) ||
		dErrors.HasCode(err, dErrors.CodeUnauthorized) ||
		dErrors.HasCode(err, dErrors.CodeForbidden)
}

// Logout destroys the session: the persisted record is deleted (a full
// delete, not a reset, so other tabs observe a cleared event), in-memory
// state resets to anonymous, and the backend is notified best-effort.
// Idempotent from any state.
func (m *Manager) Logout(ctx context.Context) error {
	record := m.reset()
	m.emitAudit(audit.ActionLogout, record)

	if err := m.store.Delete(ctx, m.sessionKey); err != nil {
		// In-memory state is already anonymous; surface the storage fault.
		return dErrors.Wrap(err, dErrors.CodeInternal, "clear persisted session")
	}

	if record != nil {
		m.bg.Add(1)
		go func() {
			defer m.bg.Done()
			// Best-effort only. Local destruction already happened.
			if err := m.api.Logout(m.bgCtx, record.Token, record.TenantID); err != nil {
				m.logger.Debug("backend logout notification failed", "error", err)
			}
		}()
	}
	return nil
}

// implicitLogout is Logout triggered by the system detecting a dead
// credential. No backend notification: the backend just told us the
// credential is gone.
func (m *Manager) implicitLogout() {
	record := m.reset()
	if m.metrics != nil {
		m.metrics.ImplicitLogouts.Inc()
	}
	m.emitAudit(audit.ActionImplicitLogout, record)

	if err := m.store.Delete(m.bgCtx, m.sessionKey); err != nil {
		m.logger.Warn("failed to clear persisted session after rejection", "error", err)
	}
}

// adoptExternalLogout reconciles with a cleared event from another tab.
// The other tab already deleted the record and notified the backend, so this
// side only drops in-memory state. Returns whether a transition happened.
func (m *Manager) adoptExternalLogout() bool {
	m.mu.Lock()
	if m.state != StateAuthenticated {
		m.mu.Unlock()
		return false
	}
	record := m.record
	m.record = nil
	m.tenant = TenantInfo{}
	m.state = StateAnonymous
	m.lastErr = nil
	m.profileLoading = false
	m.generation++
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.CrossTabLogouts.Inc()
	}
	m.emitAudit(audit.ActionCrossTabLogout, record)
	return true
}

// reset drops in-memory session state and returns the record that was
// active, if any.
func (m *Manager) reset() *Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	record := m.record
	m.record = nil
	m.tenant = TenantInfo{}
	m.state = StateAnonymous
	m.lastErr = nil
	m.profileLoading = false
	m.generation++
	return record
}

func (m *Manager) spawnProfileRefresh(generation uint64) {
	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		_ = m.refreshProfile(m.bgCtx, generation)
	}()
}

func (m *Manager) recordLoginFailure(err error) {
	if m.metrics != nil {
		m.metrics.LoginFailures.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
	}
	m.logger.Warn("login failed", "code", dErrors.CodeOf(err))
}

func (m *Manager) emitAudit(action audit.Action, record *Record) {
	event := audit.Event{Action: action}
	if record != nil {
		event.TenantID = record.TenantID
		if record.User != nil {
			event.UserEmail = record.User.Email
		}
	}
	if err := m.audit.Emit(m.bgCtx, event); err != nil {
		m.logger.Debug("audit emit failed", "action", action, "error", err)
	}
}

// Flush waits for background work (async refreshes, logout notifications)
// to finish. Call it on shutdown and in tests.
func (m *Manager) Flush() {
	m.bg.Wait()
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Hydrated reports whether the initial store read has completed.
func (m *Manager) Hydrated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hydrated
}

// IsAuthenticated reports whether a session is active.
func (m *Manager) IsAuthenticated() bool {
	return m.State() == StateAuthenticated
}

// ProfileLoading reports whether a profile refresh is in flight.
func (m *Manager) ProfileLoading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profileLoading
}

// Snapshot returns a copy of the active record, or nil when anonymous.
// Callers get the token/tenant pair from here for authenticated calls.
func (m *Manager) Snapshot() *Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return nil
	}
	record := *m.record
	if m.record.User != nil {
		user := *m.record.User
		record.User = &user
	}
	return &record
}

// Token returns the bearer credential, or empty when anonymous.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return ""
	}
	return m.record.Token
}

// TenantID returns the active tenant, or zero when anonymous. It never
// changes within a session; switching tenants is a logout/login cycle.
func (m *Manager) TenantID() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil {
		return 0
	}
	return m.record.TenantID
}

// Role returns the last role fetched from the profile endpoint. Empty until
// the first profile refresh completes.
func (m *Manager) Role() Role {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.record == nil || m.record.User == nil {
		return ""
	}
	return m.record.User.Role
}

// Tenant returns derived tenant display info.
func (m *Manager) Tenant() TenantInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tenant
}

// LastError returns the most recent recoverable error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// SessionKey returns the storage key this manager owns.
func (m *Manager) SessionKey() string {
	return m.sessionKey
}
