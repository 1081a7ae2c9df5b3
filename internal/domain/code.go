package domain

import "time"

// OAuthCode is a short-lived authorization code. A code is bound to the
// client, user, and redirect URI it was issued for, optionally carries a
// PKCE challenge, and is consumable exactly once.
type OAuthCode struct {
	Code                string
	ClientID            string
	UserID              int64
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
	Nonce               string
	Used                bool
	ExpiresAt           time.Time
	CreatedAt           time.Time
}
