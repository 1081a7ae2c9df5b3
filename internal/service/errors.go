package service

import "net/http"

// AuthError is a user-facing auth failure with a stable machine-readable
// code. Internal failures are never wrapped in AuthError; they are logged
// with full detail and surface to the caller as a generic server_error.
type AuthError struct {
	Code        string
	Description string
	Status      int
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Description
}

func newAuthError(code, description string, status int) *AuthError {
	return &AuthError{Code: code, Description: description, Status: status}
}

// Session / passwordless failures.
var (
	ErrNoSession = newAuthError("no_session",
		"No active session for this token.", http.StatusUnauthorized)
	ErrSessionExpired = newAuthError("session_expired",
		"Session has expired.", http.StatusUnauthorized)
	ErrSessionInactive = newAuthError("session_inactive",
		"Session timed out due to inactivity.", http.StatusUnauthorized)
	ErrInvalidLoginToken = newAuthError("invalid_or_expired_token",
		"Login token is invalid, expired, or already used.", http.StatusUnauthorized)
)

// OAuth failures.
var (
	ErrInvalidClient = newAuthError("invalid_client",
		"Unknown or inactive client, or bad client credentials.", http.StatusUnauthorized)
	ErrInvalidRedirectURI = newAuthError("invalid_redirect_uri",
		"redirect_uri is not registered for this client.", http.StatusBadRequest)
	ErrUnsupportedResponseType = newAuthError("unsupported_response_type",
		"Only response_type=code is supported.", http.StatusBadRequest)
	ErrUnsupportedGrantType = newAuthError("unsupported_grant_type",
		"Unsupported grant type.", http.StatusBadRequest)
	ErrInvalidOrExpiredCode = newAuthError("invalid_grant",
		"Authorization code is invalid, expired, or already used.", http.StatusUnauthorized)
	ErrInvalidCodeVerifier = newAuthError("invalid_code_verifier",
		"PKCE code verifier does not match the challenge.", http.StatusUnauthorized)
	ErrInvalidRefreshToken = newAuthError("invalid_grant",
		"Refresh token is invalid, expired, or revoked.", http.StatusUnauthorized)
	ErrInvalidAccessToken = newAuthError("invalid_token",
		"Access token is invalid, expired, or revoked.", http.StatusUnauthorized)
)

// SSO handoff failures.
var (
	ErrInvalidService = newAuthError("invalid_service",
		"Service is not in the SSO allow-list.", http.StatusBadRequest)
	ErrInvalidSSOToken = newAuthError("invalid_token",
		"SSO token not recognized.", http.StatusUnauthorized)
	ErrSSOTokenAlreadyUsed = newAuthError("token_already_used",
		"SSO token has already been consumed.", http.StatusUnauthorized)
	ErrSSOTokenExpired = newAuthError("token_expired",
		"SSO token has expired.", http.StatusUnauthorized)
	ErrSSOTokenNotFound = newAuthError("not_found",
		"Unknown SSO token id.", http.StatusNotFound)
	ErrSSONotOwner = newAuthError("forbidden",
		"Only the token owner or an administrator may revoke it.", http.StatusForbidden)
)

// Generic request failures.
var (
	ErrEmailRequired = newAuthError("invalid_request",
		"Email is required.", http.StatusBadRequest)
)
