// Package stubgate is an in-memory stand-in for the portal backend. It
// serves the same HTTP contract the api client speaks, backed by canned
// fixtures, so the SDK and CLI can run end to end with no real backend.
package stubgate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mssola/useragent"
	"golang.org/x/crypto/bcrypt"

	"tqhub/internal/entitlements"
	"tqhub/internal/session"
	dErrors "tqhub/pkg/domain-errors"
	"tqhub/pkg/platform/httputil"
)

const tokenTTL = 8 * time.Hour

// liveSession is one issued token the stub still honors.
type liveSession struct {
	ID        string
	Account   *Account
	TenantID  int
	Device    string
	CreatedAt time.Time
}

// Server implements the portal backend contract over fixtures.
type Server struct {
	fixtures   *Fixtures
	signingKey []byte
	logger     *slog.Logger

	mu       sync.Mutex
	sessions map[string]*liveSession
}

// Option configures the Server.
type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New builds a stub server over the given fixtures. Tokens are HS256-signed
// with signingKey; anything else presented as a token is rejected.
func New(fixtures *Fixtures, signingKey []byte, opts ...Option) *Server {
	s := &Server{
		fixtures:   fixtures,
		signingKey: signingKey,
		logger:     slog.New(slog.DiscardHandler),
		sessions:   make(map[string]*liveSession),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the stub's router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/api/v1/tenants/lookup", s.handleTenantLookup)
	r.Post("/api/v1/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/api/v1/me", s.handleProfile)
		r.Post("/api/v1/auth/logout", s.handleLogout)
		r.Post("/api/v1/auth/change-password", s.handleChangePassword)
		r.Get("/api/v1/entitlements", s.handleEntitlements)
		r.Get("/api/v1/onboarding/needed", s.handleOnboardingNeeded)
		r.Get("/api/v1/sessions", s.handleSessions)
	})

	return r
}

func (s *Server) handleTenantLookup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	account := s.fixtures.accountByEmail(req.Email)
	if account == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeTenantNotFound, "no tenant for this email"))
		return
	}
	tenant := s.fixtures.tenantByID(account.TenantID)

	httputil.WriteJSON(w, http.StatusOK, session.Tenant{ID: tenant.ID, Name: tenant.Name})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	tenantID, err := strconv.Atoi(r.Header.Get("X-Tenant-ID"))
	if err != nil || s.fixtures.tenantByID(tenantID) == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing or unknown tenant"))
		return
	}

	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	account := s.fixtures.accountInTenant(req.Email, tenantID)
	if account == nil ||
		bcrypt.CompareHashAndPassword(account.passwordHash, []byte(req.Password)) != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidCredentials, "email or password is incorrect"))
		return
	}

	tenant := s.fixtures.tenantByID(tenantID)
	sessionID := uuid.NewString()
	token, err := s.mintToken(account, tenant, sessionID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint token"))
		return
	}

	device := deviceName(r.UserAgent())
	s.mu.Lock()
	s.sessions[token] = &liveSession{
		ID:        sessionID,
		Account:   account,
		TenantID:  tenantID,
		Device:    device,
		CreatedAt: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Info("login",
		"email", account.Email,
		"tenant_id", tenantID,
		"device", device,
	)

	httputil.WriteJSON(w, http.StatusOK, session.LoginResult{
		User: session.User{
			ID:          account.UserID,
			Email:       account.Email,
			FirstName:   account.FirstName,
			LastName:    account.LastName,
			Role:        account.Role,
			AllowedApps: account.AllowedApps,
		},
		Token: token,
	})
}

// mintToken issues an HS256 JWT. Timezone and locale ride along as claims;
// they are display hints, which is why the SDK may read them unverified.
func (s *Server) mintToken(account *Account, tenant *Tenant, sessionID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       strconv.Itoa(account.UserID),
		"email":     account.Email,
		"tenant_id": tenant.ID,
		"timezone":  tenant.Timezone,
		"locale":    tenant.Locale,
		"jti":       sessionID,
		"iat":       now.Unix(),
		"exp":       now.Add(tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// authenticate verifies the bearer token signature and that the session has
// not been logged out, then stashes the session on the request context.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
			return
		}

		_, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.signingKey, nil
		})
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
			return
		}

		s.mu.Lock()
		live, ok := s.sessions[raw]
		s.mu.Unlock()
		if !ok {
			// Signature fine but the session was logged out.
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "session revoked"))
			return
		}

		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), live, raw)))
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	live, _ := sessionFrom(r.Context())
	tenant := s.fixtures.tenantByID(live.TenantID)

	httputil.WriteJSON(w, http.StatusOK, session.Profile{
		Email:       live.Account.Email,
		Role:        live.Account.Role,
		AllowedApps: live.Account.AllowedApps,
		TenantName:  tenant.Name,
		TenantSlug:  tenant.Slug,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	_, token := sessionFrom(r.Context())

	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	live, _ := sessionFrom(r.Context())

	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if bcrypt.CompareHashAndPassword(live.Account.passwordHash, []byte(req.CurrentPassword)) != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "current password is incorrect"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password"))
		return
	}

	s.mu.Lock()
	live.Account.passwordHash = hash
	s.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEntitlements(w http.ResponseWriter, r *http.Request) {
	live, _ := sessionFrom(r.Context())
	if live.Account.Role != session.RoleAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "entitlements require an admin role"))
		return
	}

	tenant := s.fixtures.tenantByID(live.TenantID)
	accounts := s.fixtures.accountsInTenant(live.TenantID)

	summary := entitlements.Summary{
		TotalSeats: tenant.TotalSeats,
		UsedSeats:  len(accounts),
		Plan:       tenant.Plan,
		Seats:      []entitlements.Seat{},
	}
	for _, a := range accounts {
		for _, app := range a.AllowedApps {
			summary.Seats = append(summary.Seats, entitlements.Seat{
				UserID:    a.UserID,
				Email:     a.Email,
				Role:      string(app.Role),
				AppSlug:   app.Slug,
				Status:    app.LicenseStatus,
				GrantedAt: "2026-01-05T00:00:00Z",
			})
		}
	}

	httputil.WriteJSON(w, http.StatusOK, summary)
}

func (s *Server) handleOnboardingNeeded(w http.ResponseWriter, r *http.Request) {
	live, _ := sessionFrom(r.Context())
	tenant := s.fixtures.tenantByID(live.TenantID)

	httputil.WriteJSON(w, http.StatusOK, map[string]bool{
		"needed": tenant.NeedsOnboarding,
	})
}

type sessionSummary struct {
	ID        string    `json:"id"`
	Device    string    `json:"device"`
	CreatedAt time.Time `json:"created_at"`
	Current   bool      `json:"current"`
}

// handleSessions lists this account's live sessions with a human-readable
// device name per session.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	live, token := sessionFrom(r.Context())

	s.mu.Lock()
	out := []sessionSummary{}
	for tok, other := range s.sessions {
		if other.Account.UserID != live.Account.UserID || other.TenantID != live.TenantID {
			continue
		}
		out = append(out, sessionSummary{
			ID:        other.ID,
			Device:    other.Device,
			CreatedAt: other.CreatedAt,
			Current:   tok == token,
		})
	}
	s.mu.Unlock()

	httputil.WriteJSON(w, http.StatusOK, out)
}

// deviceName turns a User-Agent into something a human recognizes in a
// session list.
func deviceName(ua string) string {
	if ua == "" {
		return "Unknown device"
	}
	parsed := useragent.New(ua)
	browser, _ := parsed.Browser()
	os := parsed.OSInfo().Name
	if browser == "" {
		return ua
	}
	if os == "" {
		return browser
	}
	return fmt.Sprintf("%s on %s", browser, os)
}

type contextKey struct{}

type sessionContext struct {
	live  *liveSession
	token string
}

func withSession(ctx context.Context, live *liveSession, token string) context.Context {
	return context.WithValue(ctx, contextKey{}, sessionContext{live: live, token: token})
}

// sessionFrom returns the authenticated session; handlers behind the
// authenticate middleware can rely on it being present.
func sessionFrom(ctx context.Context) (*liveSession, string) {
	sc, _ := ctx.Value(contextKey{}).(sessionContext)
	return sc.live, sc.token
}
