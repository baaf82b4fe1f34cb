package auth

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes. Clients branch on these, so they are
// part of the API contract.
const (
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeForbidden       = "FORBIDDEN"
	CodeNotFound        = "NOT_FOUND"
	CodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeInternalError   = "INTERNAL_ERROR"

	CodeLoginRequired          = "AUTH_LOGIN_REQUIRED"
	CodeInvalidCredentials     = "AUTH_INVALID_CREDENTIALS"
	CodeLoginRateLimited       = "AUTH_LOGIN_RATE_LIMITED"
	CodeTokenRequired          = "AUTH_TOKEN_REQUIRED"
	CodeRefreshInvalidToken    = "AUTH_REFRESH_INVALID_TOKEN"
	CodeRefreshSessionMismatch = "AUTH_REFRESH_SESSION_MISMATCH"
	CodeRefreshExpired         = "AUTH_REFRESH_EXPIRED"
	CodeRefreshFailed          = "AUTH_REFRESH_FAILED"
	CodeAccountDisabled        = "AUTH_ACCOUNT_DISABLED"
)

// ErrorPayload is the failure envelope on every non-2xx response.
type ErrorPayload struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"requestId"`
	Extra     map[string]any `json:"extra,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func WriteError(w http.ResponseWriter, status int, code, message, requestID string) {
	WriteJSON(w, status, ErrorPayload{Code: code, Message: message, RequestID: requestID})
}

func writeErrorExtra(w http.ResponseWriter, status int, code, message, requestID string, extra map[string]any) {
	WriteJSON(w, status, ErrorPayload{Code: code, Message: message, RequestID: requestID, Extra: extra})
}
