package domain

import "time"

// Login token lifecycle states. A token is inserted as pending, flipped to
// sent once the email dispatch succeeds, and consumed exactly once on verify.
const (
	LoginTokenPending  = "pending"
	LoginTokenSent     = "sent"
	LoginTokenConsumed = "consumed"
)

// LoginToken is a single-use passwordless login token tied to an email.
type LoginToken struct {
	ID        int64
	Email     string
	Token     string
	Status    string
	Used      bool
	UsedAt    *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
}
