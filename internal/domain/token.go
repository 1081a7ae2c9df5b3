package domain

import "time"

// AccessToken mirrors an issued access token JWT in the credential store.
// The JWT expiry is authoritative for the wire format; this row is
// authoritative for revocation, so a token can be killed before it expires.
type AccessToken struct {
	ID        int64
	Token     string
	ClientID  string
	UserID    int64
	Scope     string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// RefreshToken is an opaque high-entropy token linked to the access-token
// row it was minted alongside. Refreshing revokes that access token and
// mints a new one; the refresh token itself is not rotated.
type RefreshToken struct {
	ID            int64
	Token         string
	AccessTokenID int64
	ClientID      string
	UserID        int64
	Scope         string
	Revoked       bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
}
