package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/suite"

	"tqhub/internal/api"
	"tqhub/internal/session"
	dErrors "tqhub/pkg/domain-errors"
)

type ClientSuite struct {
	suite.Suite
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

// newServer builds a client pointed at an httptest server running handler.
func (s *ClientSuite) newServer(handler http.HandlerFunc) *api.Client {
	server := httptest.NewServer(handler)
	s.T().Cleanup(server.Close)
	return api.New(server.URL)
}

func (s *ClientSuite) TestResolveTenant() {
	s.Run("found", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			s.Equal(http.MethodPost, r.Method)
			s.Equal("/api/v1/tenants/lookup", r.URL.Path)
			s.Empty(r.Header.Get("Authorization"), "lookup must be tenant-blind")
			s.Empty(r.Header.Get("X-Tenant-ID"), "lookup must be tenant-blind")

			var req struct {
				Email string `json:"email"`
			}
			s.Require().NoError(json.NewDecoder(r.Body).Decode(&req))
			s.Equal("a@x.com", req.Email)

			json.NewEncoder(w).Encode(session.Tenant{ID: 7, Name: "Acme"})
		})

		tenant, err := client.ResolveTenant(context.Background(), "a@x.com")
		s.Require().NoError(err)
		s.Equal(session.Tenant{ID: 7, Name: "Acme"}, tenant)
	})

	s.Run("unknown email maps to tenant_not_found", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		_, err := client.ResolveTenant(context.Background(), "nobody@x.com")
		s.True(dErrors.HasCode(err, dErrors.CodeTenantNotFound))
	})

	s.Run("malformed email is rejected before any request", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			s.Fail("no request should be made")
		})

		_, err := client.ResolveTenant(context.Background(), "not-an-email")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("unreachable backend maps to network_error", func() {
		client := api.New("http://127.0.0.1:1")

		_, err := client.ResolveTenant(context.Background(), "a@x.com")
		s.True(dErrors.HasCode(err, dErrors.CodeNetworkError))
	})
}

func (s *ClientSuite) TestLogin() {
	s.Run("sends tenant header and decodes result", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			s.Equal("/api/v1/auth/login", r.URL.Path)
			s.Equal("7", r.Header.Get("X-Tenant-ID"))

			json.NewEncoder(w).Encode(session.LoginResult{
				User:  session.User{ID: 1, Email: "a@x.com"},
				Token: "tok-abc",
			})
		})

		result, err := client.Login(context.Background(), 7, "a@x.com", "pw")
		s.Require().NoError(err)
		s.Equal("tok-abc", result.Token)
		s.Equal("a@x.com", result.User.Email)
	})

	s.Run("401 maps to invalid_credentials, not session_expired", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.Login(context.Background(), 7, "a@x.com", "wrong")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidCredentials))
	})
}

func (s *ClientSuite) TestFetchProfile() {
	s.Run("carries token and tenant", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			s.Equal("/api/v1/me", r.URL.Path)
			s.Equal("Bearer tok-abc", r.Header.Get("Authorization"))
			s.Equal("7", r.Header.Get("X-Tenant-ID"))

			json.NewEncoder(w).Encode(session.Profile{
				Role:       session.RoleAdmin,
				TenantName: "Acme",
				TenantSlug: "acme",
			})
		})

		profile, err := client.FetchProfile(context.Background(), "tok-abc", 7)
		s.Require().NoError(err)
		s.Equal(session.RoleAdmin, profile.Role)
		s.Equal("acme", profile.TenantSlug)
	})

	s.Run("401 maps to session_expired", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := client.FetchProfile(context.Background(), "tok-stale", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
	})

	s.Run("403 maps to session_expired", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := client.FetchProfile(context.Background(), "tok-stale", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeSessionExpired))
	})

	s.Run("500 maps to unknown", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		_, err := client.FetchProfile(context.Background(), "tok-abc", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeUnknown))
	})
}

func (s *ClientSuite) TestLogout() {
	client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/v1/auth/logout", r.URL.Path)
		s.Equal("Bearer tok-abc", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	s.NoError(client.Logout(context.Background(), "tok-abc", 7))
}

func (s *ClientSuite) TestChangePassword() {
	s.Run("ok", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				CurrentPassword string `json:"current_password"`
				NewPassword     string `json:"new_password"`
			}
			s.Require().NoError(json.NewDecoder(r.Body).Decode(&req))
			s.Equal("old", req.CurrentPassword)
			s.Equal("new", req.NewPassword)
			w.WriteHeader(http.StatusNoContent)
		})

		s.NoError(client.ChangePassword(context.Background(), "tok-abc", 7, "old", "new"))
	})

	s.Run("wrong current password maps to invalid_input", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})

		err := client.ChangePassword(context.Background(), "tok-abc", 7, "bad", "new")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ClientSuite) TestFetchEntitlements() {
	s.Run("decodes summary", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			s.Equal("/api/v1/entitlements", r.URL.Path)
			w.Write([]byte(`{"total_seats":10,"used_seats":4,"plan":"growth","seats":[]}`))
		})

		summary, err := client.FetchEntitlements(context.Background(), "tok-abc", 7)
		s.Require().NoError(err)
		s.Equal(10, summary.TotalSeats)
		s.Equal("growth", summary.Plan)
	})

	s.Run("403 maps to forbidden", func() {
		client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := client.FetchEntitlements(context.Background(), "tok-abc", 7)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ClientSuite) TestNeedsOnboarding() {
	client := s.newServer(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/v1/onboarding/needed", r.URL.Path)
		w.Write([]byte(`{"needed":true}`))
	})

	needed, err := client.NeedsOnboarding(context.Background(), "tok-abc", 7)
	s.Require().NoError(err)
	s.True(needed)
}
