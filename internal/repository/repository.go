// Package repository defines the credential store interfaces and their
// Postgres implementations. Every authoritative piece of auth state lives
// behind these interfaces: users, sessions, login tokens, OAuth clients,
// codes, tokens, consents, and SSO handoff tokens.
package repository

import (
	"context"
	"time"

	"github.com/appsqa/appsqa-auth/internal/domain"
)

// UserRepository stores hub identities.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
	UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error
}

// SessionRepository stores login sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) (domain.Session, error)
	GetByToken(ctx context.Context, token string) (domain.Session, error)
	// DeactivateForUser ends every active session of a user and returns
	// how many sessions were ended.
	DeactivateForUser(ctx context.Context, userID int64, at time.Time) (int64, error)
	// End idempotently marks the session for token inactive.
	End(ctx context.Context, token string, at time.Time) error
	// Touch refreshes last_activity_at.
	Touch(ctx context.Context, sessionID int64, at time.Time) error
}

// LoginTokenRepository stores single-use passwordless login tokens.
type LoginTokenRepository interface {
	Create(ctx context.Context, token domain.LoginToken) (domain.LoginToken, error)
	MarkSent(ctx context.Context, id int64) error
	// Consume atomically flips an unused, unexpired token to consumed and
	// returns it. pgx.ErrNoRows means absent, already used, or expired.
	Consume(ctx context.Context, token string, at time.Time) (domain.LoginToken, error)
}

// ClientRepository reads registered OAuth clients. Client registration is
// administrative; runtime flows never write here.
type ClientRepository interface {
	GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error)
}

// CodeRepository stores authorization codes.
type CodeRepository interface {
	Create(ctx context.Context, code domain.OAuthCode) error
	// Consume atomically flips an unused, unexpired code to used and
	// returns it. pgx.ErrNoRows means absent, replayed, or expired.
	Consume(ctx context.Context, code string, at time.Time) (domain.OAuthCode, error)
}

// TokenRepository stores access-token mirror rows and refresh tokens.
type TokenRepository interface {
	CreateAccess(ctx context.Context, token domain.AccessToken) (domain.AccessToken, error)
	GetAccessByToken(ctx context.Context, token string) (domain.AccessToken, error)
	RevokeAccess(ctx context.Context, id int64) error
	RevokeAccessByToken(ctx context.Context, clientID, token string) error
	CreateRefresh(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error)
	GetRefreshByToken(ctx context.Context, token string) (domain.RefreshToken, error)
	// RelinkRefresh points a refresh token at the access-token row minted
	// by the refresh that consumed it.
	RelinkRefresh(ctx context.Context, refreshID, accessTokenID int64) error
	RevokeRefreshByToken(ctx context.Context, clientID, token string) error
}

// ConsentRepository stores per (user, client) scope grants.
type ConsentRepository interface {
	Get(ctx context.Context, userID int64, clientID string) (domain.Consent, error)
	Upsert(ctx context.Context, consent domain.Consent) (domain.Consent, error)
}

// SSOTokenRepository stores one-time SSO handoff tokens.
type SSOTokenRepository interface {
	Create(ctx context.Context, token domain.SSOToken) (domain.SSOToken, error)
	// GetByTokenAndService returns the most recent row for the pair.
	GetByTokenAndService(ctx context.Context, token, service string) (domain.SSOToken, error)
	GetByID(ctx context.Context, id string) (domain.SSOToken, error)
	// Consume atomically marks the row used. It reports false when the row
	// was already used, which is how a concurrent double-validation loses.
	Consume(ctx context.Context, id string, at time.Time) (bool, error)
	ListActiveForUser(ctx context.Context, userID int64, now time.Time) ([]domain.SSOToken, error)
}
