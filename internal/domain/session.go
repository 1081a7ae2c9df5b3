package domain

import "time"

// Session is one logged-in browser or API client instance. At most one
// session per user is active at any time: creating a session deactivates
// every prior active session of that user.
type Session struct {
	ID             int64
	UserID         int64
	Token          string
	IPAddress      string
	UserAgent      string
	LoginAt        time.Time
	ExpiresAt      time.Time
	LastActivityAt time.Time
	Active         bool
	LogoutAt       *time.Time
}
