// Package httputil renders domain errors and JSON payloads onto HTTP
// responses with a stable wire shape.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "tqhub/pkg/domain-errors"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps a domain error onto an HTTP status and a JSON error body.
// Internal-class errors keep their detail out of the response.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)

	body := errorBody{Error: string(code)}
	if !isInternal(code) {
		body.ErrorDescription = err.Error()
	}

	WriteJSON(w, statusFor(code), body)
}

func statusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeBadRequest, dErrors.CodeInvalidInput:
		return http.StatusBadRequest
	case dErrors.CodeInvalidCredentials, dErrors.CodeSessionExpired, dErrors.CodeUnauthorized:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeNotFound, dErrors.CodeTenantNotFound:
		return http.StatusNotFound
	case dErrors.CodeConflict:
		return http.StatusConflict
	case dErrors.CodeNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isInternal(code dErrors.Code) bool {
	switch code {
	case dErrors.CodeInternal, dErrors.CodeUnknown:
		return true
	default:
		return false
	}
}
