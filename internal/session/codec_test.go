package session_test

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"tqhub/internal/session"
)

type CodecSuite struct {
	suite.Suite
}

func TestCodecSuite(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func (s *CodecSuite) TestEncodeDecodeRoundTrip() {
	record := &session.Record{
		Token:    "tok-abc",
		TenantID: 7,
		User: &session.User{
			ID:        1,
			Email:     "a@x.com",
			FirstName: "Ada",
			LastName:  "Xu",
			Role:      session.RoleAdmin,
			AllowedApps: []session.AppGrant{
				{Slug: "tq", Role: session.RoleAdmin, LicenseStatus: "active"},
			},
		},
	}

	raw, err := session.Encode(record)
	s.Require().NoError(err)

	decoded := session.Decode(raw)
	s.Require().NotNil(decoded)
	s.Equal(record, decoded)
}

// TestDecodeTotality: anything short of a structurally complete record
// decodes to nil and forces re-login.
func (s *CodecSuite) TestDecodeTotality() {
	cases := []struct {
		name string
		raw  []byte
	}{
		{"nil value", nil},
		{"empty value", []byte{}},
		{"not json", []byte("][not-json")},
		{"wrong shape", []byte(`"just a string"`)},
		{"missing token", []byte(`{"tenant_id":7,"user":{"id":1,"email":"a@x.com"}}`)},
		{"missing tenant", []byte(`{"token":"t","user":{"id":1,"email":"a@x.com"}}`)},
		{"missing user", []byte(`{"token":"t","tenant_id":7}`)},
		{"empty object", []byte(`{}`)},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Nil(session.Decode(tc.raw))
		})
	}
}

func (s *CodecSuite) TestDecodeTokenMetadata() {
	s.Run("extracts timezone and locale claims", func() {
		token := makeUnsignedJWT(s.T(), map[string]any{
			"timezone": "Europe/Berlin",
			"locale":   "de-DE",
			"sub":      "1",
		})
		md := session.DecodeTokenMetadata(token)
		s.Equal("Europe/Berlin", md.Timezone)
		s.Equal("de-DE", md.Locale)
	})

	s.Run("malformed token yields defaults", func() {
		md := session.DecodeTokenMetadata("not-a-jwt")
		s.Equal(session.DefaultTimezone, md.Timezone)
		s.Equal(session.DefaultLocale, md.Locale)
	})

	s.Run("empty token yields defaults", func() {
		md := session.DecodeTokenMetadata("")
		s.Equal(session.DefaultTimezone, md.Timezone)
		s.Equal(session.DefaultLocale, md.Locale)
	})

	s.Run("token without the claims yields defaults", func() {
		token := makeUnsignedJWT(s.T(), map[string]any{"sub": "1"})
		md := session.DecodeTokenMetadata(token)
		s.Equal(session.DefaultTimezone, md.Timezone)
		s.Equal(session.DefaultLocale, md.Locale)
	})

	s.Run("non-string claims yield defaults", func() {
		token := makeUnsignedJWT(s.T(), map[string]any{"timezone": 42, "locale": true})
		md := session.DecodeTokenMetadata(token)
		s.Equal(session.DefaultTimezone, md.Timezone)
		s.Equal(session.DefaultLocale, md.Locale)
	})
}

// makeUnsignedJWT builds header.payload.signature with a junk signature;
// metadata extraction must not care.
func makeUnsignedJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".junksig"
}
