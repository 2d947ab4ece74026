package session

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"tqhub/internal/audit"
)

// TenantResolver discovers which tenant an email belongs to. It is the one
// call in the system performed tenant-blind: no token, no tenant header.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, email string) (Tenant, error)
}

// AuthAPI is the authenticated surface of the portal backend the manager
// depends on. Every call carries the tenant context; credentials never
// travel without one.
type AuthAPI interface {
	Login(ctx context.Context, tenantID int, email, password string) (*LoginResult, error)
	FetchProfile(ctx context.Context, token string, tenantID int) (*Profile, error)
	// Logout is a best-effort notification; its failure never blocks local
	// session destruction.
	Logout(ctx context.Context, token string, tenantID int) error
}

// AuditPublisher records session lifecycle events. Optional.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}
