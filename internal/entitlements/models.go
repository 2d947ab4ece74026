// Package entitlements exposes the tenant's seat and license data to admin
// users. Access is gated twice: locally on the session role and server-side
// on the token's subject.
package entitlements

// Seat is one licensed seat inside the tenant.
type Seat struct {
	UserID    int    `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	AppSlug   string `json:"app_slug"`
	Status    string `json:"status"`
	GrantedAt string `json:"granted_at"`
}

// Summary is the entitlements endpoint's response: totals plus the seat list.
type Summary struct {
	TotalSeats int    `json:"total_seats"`
	UsedSeats  int    `json:"used_seats"`
	Plan       string `json:"plan"`
	Seats      []Seat `json:"seats"`
}
