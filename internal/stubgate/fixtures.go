package stubgate

import (
	"golang.org/x/crypto/bcrypt"

	"tqhub/internal/session"
	"tqhub/pkg/email"
)

// Tenant is one fixture tenant the stub serves.
type Tenant struct {
	ID              int
	Name            string
	Slug            string
	Timezone        string
	Locale          string
	Plan            string
	TotalSeats      int
	NeedsOnboarding bool
}

// Account is one login-capable user inside a fixture tenant.
type Account struct {
	UserID       int
	Email        string
	FirstName    string
	LastName     string
	Role         session.Role
	TenantID     int
	AllowedApps  []session.AppGrant
	passwordHash []byte
}

// Fixtures is the stub's whole world: tenants and their accounts.
type Fixtures struct {
	Tenants  []Tenant
	Accounts []Account
}

// DefaultPassword is the password every fixture account accepts.
const DefaultPassword = "hunter2!"

// DefaultFixtures builds the canned tenant/user set. pat@dualcorp.example
// deliberately exists in both tenants: resolving a tenant from the email
// alone is ambiguous for that user, which is exactly why login is two-phase.
func DefaultFixtures() (*Fixtures, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.MinCost)
	if err != nil {
		return nil, err
	}

	f := &Fixtures{
		Tenants: []Tenant{
			{
				ID: 7, Name: "Acme", Slug: "acme",
				Timezone: "Europe/Berlin", Locale: "de-DE",
				Plan: "growth", TotalSeats: 10,
				NeedsOnboarding: true,
			},
			{
				ID: 12, Name: "Globex", Slug: "globex",
				Timezone: "America/New_York", Locale: "en-US",
				Plan: "enterprise", TotalSeats: 50,
			},
		},
	}

	accounts := []struct {
		userID   int
		emailAdr string
		role     session.Role
		tenantID int
		apps     []session.AppGrant
	}{
		{1, "ada@acme.example", session.RoleAdmin, 7, []session.AppGrant{
			{Slug: "tq", Role: session.RoleAdmin, LicenseStatus: "active"},
			{Slug: "reports", Role: session.RoleAdmin, LicenseStatus: "active"},
		}},
		{2, "mira.ops@acme.example", session.RoleOperations, 7, []session.AppGrant{
			{Slug: "tq", Role: session.RoleOperations, LicenseStatus: "active"},
		}},
		{3, "hank@globex.example", session.RoleManager, 12, []session.AppGrant{
			{Slug: "tq", Role: session.RoleManager, LicenseStatus: "active"},
		}},
		{4, "pat@dualcorp.example", session.RoleManager, 7, []session.AppGrant{
			{Slug: "tq", Role: session.RoleManager, LicenseStatus: "active"},
		}},
		{5, "pat@dualcorp.example", session.RoleAdmin, 12, []session.AppGrant{
			{Slug: "tq", Role: session.RoleAdmin, LicenseStatus: "trial"},
		}},
	}

	for _, a := range accounts {
		first, last := email.DeriveNameFromEmail(a.emailAdr)
		f.Accounts = append(f.Accounts, Account{
			UserID:       a.userID,
			Email:        a.emailAdr,
			FirstName:    first,
			LastName:     last,
			Role:         a.role,
			TenantID:     a.tenantID,
			AllowedApps:  a.apps,
			passwordHash: hash,
		})
	}

	return f, nil
}

func (f *Fixtures) tenantByID(id int) *Tenant {
	for i := range f.Tenants {
		if f.Tenants[i].ID == id {
			return &f.Tenants[i]
		}
	}
	return nil
}

// accountByEmail returns the first account carrying the email, in fixture
// order. For ambiguous emails this is the "primary" tenant the lookup
// endpoint answers with.
func (f *Fixtures) accountByEmail(adr string) *Account {
	for i := range f.Accounts {
		if f.Accounts[i].Email == adr {
			return &f.Accounts[i]
		}
	}
	return nil
}

func (f *Fixtures) accountInTenant(adr string, tenantID int) *Account {
	for i := range f.Accounts {
		if f.Accounts[i].Email == adr && f.Accounts[i].TenantID == tenantID {
			return &f.Accounts[i]
		}
	}
	return nil
}

func (f *Fixtures) accountsInTenant(tenantID int) []*Account {
	var out []*Account
	for i := range f.Accounts {
		if f.Accounts[i].TenantID == tenantID {
			out = append(out, &f.Accounts[i])
		}
	}
	return out
}
