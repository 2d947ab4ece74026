package session

import (
	"encoding/json"

	"github.com/golang-jwt/jwt/v5"
)

// Fallbacks when the token carries no usable display metadata.
const (
	DefaultTimezone = "UTC"
	DefaultLocale   = "en-US"
)

// TokenMetadata is display-only tenant metadata extracted from a token's
// payload without verifying its signature. Nothing authorization-bearing may
// read it; verification is the backend's job.
type TokenMetadata struct {
	Timezone string
	Locale   string
}

// Encode serializes a record for the persisted store.
func Encode(record *Record) ([]byte, error) {
	return json.Marshal(record)
}

// Decode parses a stored value back into a record. Any structurally invalid
// or incomplete value decodes to nil, which the manager treats as "no
// session": partial records force re-login rather than half-authenticated
// states.
func Decode(raw []byte) *Record {
	if len(raw) == 0 {
		return nil
	}
	var record Record
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil
	}
	if !record.Complete() {
		return nil
	}
	return &record
}

// DecodeTokenMetadata extracts the timezone and locale claims from a token's
// unverified payload. It never fails: a malformed token, or one missing the
// claims, yields the fixed defaults. Token metadata is a formatting
// convenience, not a correctness boundary.
func DecodeTokenMetadata(token string) TokenMetadata {
	metadata := TokenMetadata{Timezone: DefaultTimezone, Locale: DefaultLocale}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return metadata
	}

	if tz, ok := claims["timezone"].(string); ok && tz != "" {
		metadata.Timezone = tz
	}
	if locale, ok := claims["locale"].(string); ok && locale != "" {
		metadata.Locale = locale
	}
	return metadata
}
