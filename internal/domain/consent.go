package domain

import (
	"strings"
	"time"
)

// Consent records a user's approval of a scope set for one client. Upserted
// per (user, client); gates whether authorization can skip the interactive
// consent step.
type Consent struct {
	ID        int64
	UserID    int64
	ClientID  string
	Scope     string
	GrantedAt time.Time
	UpdatedAt time.Time
}

// Covers reports whether the consented scope set includes every scope in
// the requested space-delimited scope string.
func (c Consent) Covers(requested string) bool {
	granted := make(map[string]struct{})
	for _, s := range strings.Fields(c.Scope) {
		granted[s] = struct{}{}
	}
	for _, s := range strings.Fields(requested) {
		if _, ok := granted[s]; !ok {
			return false
		}
	}
	return true
}
