// Package api is the REST client for the portal backend. It implements the
// session package's TenantResolver and AuthAPI ports and translates HTTP
// outcomes into domain error codes, so nothing above this layer ever sees a
// status code.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/asaskevich/govalidator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tqhub/internal/entitlements"
	"tqhub/internal/session"
	dErrors "tqhub/pkg/domain-errors"
)

const (
	defaultTimeout = 15 * time.Second
	userAgent      = "tqhub-sdk/1.0"

	tenantHeader = "X-Tenant-ID"
)

// Client talks to the portal backend over HTTP. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tracer     trace.Tracer
}

var (
	_ session.TenantResolver = (*Client)(nil)
	_ session.AuthAPI        = (*Client)(nil)
)

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTracer injects a pre-configured tracer; the default uses the global
// provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = tracer
	}
}

// New creates a backend client rooted at baseURL (no trailing slash).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		tracer: otel.Tracer("tqhub/api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type tenantLookupRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type onboardingNeededResponse struct {
	Needed bool `json:"needed"`
}

// ResolveTenant looks up which tenant owns the given email. This is the one
// tenant-blind call in the contract: no token, no tenant header.
func (c *Client) ResolveTenant(ctx context.Context, email string) (session.Tenant, error) {
	if !govalidator.IsEmail(email) {
		return session.Tenant{}, dErrors.New(dErrors.CodeInvalidInput, "not a valid email address")
	}

	var tenant session.Tenant
	err := c.call(ctx, callSpec{
		name:   "tenant.lookup",
		method: http.MethodPost,
		path:   "/api/v1/tenants/lookup",
		body:   tenantLookupRequest{Email: email},
		out:    &tenant,
		onStatus: map[int]error{
			http.StatusNotFound: dErrors.New(dErrors.CodeTenantNotFound, "no tenant for this email"),
		},
	})
	if err != nil {
		return session.Tenant{}, err
	}
	return tenant, nil
}

// Login authenticates within an already-resolved tenant. A 401 here means the
// password was wrong for this tenant, not that the session expired.
func (c *Client) Login(ctx context.Context, tenantID int, email, password string) (*session.LoginResult, error) {
	var result session.LoginResult
	err := c.call(ctx, callSpec{
		name:     "auth.login",
		method:   http.MethodPost,
		path:     "/api/v1/auth/login",
		tenantID: tenantID,
		body:     loginRequest{Email: email, Password: password},
		out:      &result,
		onStatus: map[int]error{
			http.StatusUnauthorized: dErrors.New(dErrors.CodeInvalidCredentials, "email or password is incorrect"),
		},
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// FetchProfile retrieves the current user's profile. The response is the only
// authoritative source for the user's role.
func (c *Client) FetchProfile(ctx context.Context, token string, tenantID int) (*session.Profile, error) {
	var profile session.Profile
	err := c.call(ctx, callSpec{
		name:     "auth.profile",
		method:   http.MethodGet,
		path:     "/api/v1/me",
		token:    token,
		tenantID: tenantID,
		out:      &profile,
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Logout tells the backend the session is over. Callers treat failures as
// advisory.
func (c *Client) Logout(ctx context.Context, token string, tenantID int) error {
	return c.call(ctx, callSpec{
		name:     "auth.logout",
		method:   http.MethodPost,
		path:     "/api/v1/auth/logout",
		token:    token,
		tenantID: tenantID,
	})
}

// ChangePassword rotates the current user's password.
func (c *Client) ChangePassword(ctx context.Context, token string, tenantID int, current, updated string) error {
	return c.call(ctx, callSpec{
		name:     "auth.change_password",
		method:   http.MethodPost,
		path:     "/api/v1/auth/change-password",
		token:    token,
		tenantID: tenantID,
		body:     changePasswordRequest{CurrentPassword: current, NewPassword: updated},
		onStatus: map[int]error{
			http.StatusBadRequest: dErrors.New(dErrors.CodeInvalidInput, "current password is incorrect"),
		},
	})
}

// FetchEntitlements retrieves the tenant's seat and license summary. The
// backend enforces the admin gate independently of the local role check.
func (c *Client) FetchEntitlements(ctx context.Context, token string, tenantID int) (*entitlements.Summary, error) {
	var summary entitlements.Summary
	err := c.call(ctx, callSpec{
		name:     "entitlements.fetch",
		method:   http.MethodGet,
		path:     "/api/v1/entitlements",
		token:    token,
		tenantID: tenantID,
		out:      &summary,
		onStatus: map[int]error{
			http.StatusForbidden: dErrors.New(dErrors.CodeForbidden, "entitlements require an admin role"),
		},
	})
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// NeedsOnboarding reports whether the backend considers this tenant's setup
// incomplete. Feeds the wizard's auto-open decision.
func (c *Client) NeedsOnboarding(ctx context.Context, token string, tenantID int) (bool, error) {
	var resp onboardingNeededResponse
	err := c.call(ctx, callSpec{
		name:     "onboarding.needed",
		method:   http.MethodGet,
		path:     "/api/v1/onboarding/needed",
		token:    token,
		tenantID: tenantID,
		out:      &resp,
	})
	if err != nil {
		return false, err
	}
	return resp.Needed, nil
}

// callSpec describes one backend call: route, auth context, payload, and any
// per-call status overrides on top of the shared mapping.
type callSpec struct {
	name     string
	method   string
	path     string
	token    string
	tenantID int
	body     any
	out      any
	onStatus map[int]error
}

func (c *Client) call(ctx context.Context, spec callSpec) (err error) {
	ctx, span := c.tracer.Start(ctx, spec.name, trace.WithAttributes(
		attribute.String("http.method", spec.method),
		attribute.String("http.route", spec.path),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reqBody io.Reader
	if spec.body != nil {
		raw, merr := json.Marshal(spec.body)
		if merr != nil {
			return dErrors.Wrap(merr, dErrors.CodeInternal, "failed to marshal request")
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, spec.method, c.baseURL+spec.path, reqBody)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
	}
	req.Header.Set("User-Agent", userAgent)
	if spec.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if spec.tenantID != 0 {
		req.Header.Set(tenantHeader, strconv.Itoa(spec.tenantID))
	}
	if spec.token != "" {
		req.Header.Set("Authorization", "Bearer "+spec.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNetworkError, "backend unreachable")
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeNetworkError, "failed to read response")
	}

	if mapped, ok := spec.onStatus[resp.StatusCode]; ok {
		return mapped
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// fallthrough to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// On authenticated calls a 401/403 means the token is no longer
		// good; the tenant-blind and login paths override this above.
		return dErrors.New(dErrors.CodeSessionExpired, "session is no longer valid")
	case resp.StatusCode >= 500:
		return dErrors.New(dErrors.CodeUnknown, fmt.Sprintf("backend error: status %d", resp.StatusCode))
	default:
		return dErrors.New(dErrors.CodeUnknown, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	if spec.out == nil {
		return nil
	}
	if err := json.Unmarshal(body, spec.out); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnknown, "failed to parse response")
	}
	return nil
}
