// Package session owns the portal's client-side authentication state: the
// persisted session record, the two-phase login flow, profile refresh, and
// cross-tab logout propagation.
package session

// Role is the closed set of portal roles. It is authoritative only as last
// fetched from the profile endpoint, never as decoded from a token.
type Role string

const (
	RoleOperations Role = "operations"
	RoleManager    Role = "manager"
	RoleAdmin      Role = "admin"
)

// AppGrant is one sub-application a user may launch from the hub.
type AppGrant struct {
	Slug          string `json:"slug"`
	Role          Role   `json:"role,omitempty"`
	LicenseStatus string `json:"license_status,omitempty"`
}

// User is the identity snapshot carried inside the session record.
type User struct {
	ID          int        `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Role        Role       `json:"role"`
	UserType    string     `json:"user_type,omitempty"`
	AllowedApps []AppGrant `json:"allowed_apps,omitempty"`
}

// Record is the unit of persisted identity: who is logged in, as whom, where.
// It is stored fully present or not at all; a structurally partial record is
// treated as absent and forces re-login.
type Record struct {
	Token    string `json:"token"`
	TenantID int    `json:"tenant_id"`
	User     *User  `json:"user"`
}

// Complete reports whether the record carries everything a session needs.
func (r *Record) Complete() bool {
	return r != nil && r.Token != "" && r.TenantID != 0 && r.User != nil
}

// Tenant is the result of the tenant-blind lookup that precedes login.
type Tenant struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TenantInfo is derived display state. Timezone and locale start out from the
// token's unverified claims and are only trusted for formatting; name and
// slug arrive with the profile fetch.
type TenantInfo struct {
	Name     string
	Slug     string
	Timezone string
	Locale   string
}

// LoginResult is what the authenticated-login endpoint returns.
type LoginResult struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Profile is the authenticated profile-fetch response. Role and entitlement
// decisions hang off this, which is why it is refreshed right after login.
type Profile struct {
	Email       string     `json:"email"`
	Role        Role       `json:"role"`
	AllowedApps []AppGrant `json:"allowed_apps"`
	TenantName  string     `json:"tenant_name"`
	TenantSlug  string     `json:"tenant_slug"`
}
