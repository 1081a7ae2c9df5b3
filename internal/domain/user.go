package domain

import "time"

// User is a hub identity. Users are created on first passwordless login and
// never hard-deleted here; deactivation belongs to the admin surface.
type User struct {
	ID          int64
	Email       string
	Name        string
	Active      bool
	Admin       bool
	LastLoginAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
