package entitlements

import (
	"context"

	"tqhub/internal/session"
	dErrors "tqhub/pkg/domain-errors"
)

// SessionView is the slice of session state the gate reads. The role here is
// whatever the last profile fetch said, which is the only role this package
// trusts.
type SessionView interface {
	IsAuthenticated() bool
	Role() session.Role
	Token() string
	TenantID() int
}

// Fetcher retrieves the summary from the backend. *api.Client satisfies it.
type Fetcher interface {
	FetchEntitlements(ctx context.Context, token string, tenantID int) (*Summary, error)
}

// Service gates entitlement reads on the session role before any network
// traffic happens.
type Service struct {
	session SessionView
	fetcher Fetcher
}

func NewService(view SessionView, fetcher Fetcher) *Service {
	return &Service{session: view, fetcher: fetcher}
}

// Summary returns the tenant's seat and license data. Non-admin callers are
// refused locally; the backend applies the same gate on its side.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	if !s.session.IsAuthenticated() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "no active session")
	}
	if s.session.Role() != session.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "entitlements require an admin role")
	}
	return s.fetcher.FetchEntitlements(ctx, s.session.Token(), s.session.TenantID())
}
