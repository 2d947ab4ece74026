// Package audit captures session lifecycle events. Publishing is always
// best-effort: a broker outage must never block a login or logout.
package audit

import "time"

// Action identifies what happened to a session.
type Action string

const (
	ActionLogin          Action = "session.login"
	ActionLogout         Action = "session.logout"
	ActionImplicitLogout Action = "session.implicit_logout"
	ActionCrossTabLogout Action = "session.crosstab_logout"
)

// Event is emitted from the session manager to capture key transitions. Keep
// it transport-agnostic so sinks can fan out.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	TenantID  int       `json:"tenant_id,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
}
