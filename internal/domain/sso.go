package domain

import "time"

// SSOToken is a one-time handoff token scoped to a single satellite service.
// The row, not the signature, is the source of truth for one-time use: a
// structurally valid token whose row is marked used is replayed and rejected.
type SSOToken struct {
	ID        string
	UserID    int64
	Service   string
	Token     string
	IPAddress string
	UserAgent string
	Used      bool
	UsedAt    *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}
