package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/config"
	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/repository"
	"github.com/appsqa/appsqa-auth/internal/token"
)

// SessionService creates, validates, and ends login sessions. The single
// concurrent session rule lives here: creating a session kills every prior
// active session of the user.
type SessionService struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	codec    *token.Codec
	cfg      config.Config
	logger   *zap.Logger
}

func NewSessionService(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	codec *token.Codec,
	cfg config.Config,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		users:    users,
		sessions: sessions,
		codec:    codec,
		cfg:      cfg,
		logger:   logger,
	}
}

// Create ends all prior active sessions of the user, signs a fresh session
// token, inserts the new session row, and stamps user.last_login. A unique
// partial index on active sessions backs the deactivate-then-insert pair,
// so concurrent logins for the same user cannot both end up active; the
// loser retries once against the winner's row.
func (s *SessionService) Create(ctx context.Context, user domain.User, ip, userAgent string) (domain.Session, error) {
	ctx, span := startSpan(ctx, "SessionService.Create")
	defer span.End()

	now := time.Now().UTC()

	ended, err := s.sessions.DeactivateForUser(ctx, user.ID, now)
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, fmt.Errorf("deactivate prior sessions: %w", err)
	}
	if ended > 0 {
		s.logger.Info("prior sessions ended on login",
			zap.Int64("user_id", user.ID),
			zap.Int64("count", ended),
		)
	}

	raw, err := s.codec.Sign(signedSessionClaims(user), s.cfg.SessionTTL)
	if err != nil {
		span.RecordError(err)
		return domain.Session{}, fmt.Errorf("sign session token: %w", err)
	}

	session := domain.Session{
		UserID:         user.ID,
		Token:          raw,
		IPAddress:      ip,
		UserAgent:      userAgent,
		LoginAt:        now,
		ExpiresAt:      now.Add(s.cfg.SessionTTL),
		LastActivityAt: now,
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		// Lost the partial-index race against a concurrent login. Clear
		// the winner and try once more.
		if _, derr := s.sessions.DeactivateForUser(ctx, user.ID, time.Now().UTC()); derr != nil {
			span.RecordError(derr)
			return domain.Session{}, fmt.Errorf("deactivate prior sessions: %w", derr)
		}
		created, err = s.sessions.Create(ctx, session)
		if err != nil {
			span.RecordError(err)
			return domain.Session{}, fmt.Errorf("create session: %w", err)
		}
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		span.RecordError(err)
		return domain.Session{}, fmt.Errorf("update last login: %w", err)
	}

	audit(s.logger, "session.created", zap.Int64("user_id", user.ID), zap.String("ip", ip))
	return created, nil
}

// Validate resolves a session token to its user. Expired or stale sessions
// are eagerly deactivated the moment they are discovered; valid sessions
// get their last_activity refreshed fire-and-forget.
func (s *SessionService) Validate(ctx context.Context, raw string) (domain.User, domain.Session, error) {
	ctx, span := startSpan(ctx, "SessionService.Validate")
	defer span.End()

	if _, err := s.codec.Verify(raw, token.TypeSession, ""); err != nil {
		if errors.Is(err, token.ErrExpired) {
			s.end(ctx, raw)
			return domain.User{}, domain.Session{}, ErrSessionExpired
		}
		return domain.User{}, domain.Session{}, ErrNoSession
	}

	session, err := s.sessions.GetByToken(ctx, raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.Session{}, ErrNoSession
		}
		span.RecordError(err)
		return domain.User{}, domain.Session{}, fmt.Errorf("load session: %w", err)
	}
	if !session.Active {
		return domain.User{}, domain.Session{}, ErrNoSession
	}

	now := time.Now().UTC()
	if !now.Before(session.ExpiresAt) {
		s.end(ctx, raw)
		return domain.User{}, domain.Session{}, ErrSessionExpired
	}
	if now.Sub(session.LastActivityAt) > s.cfg.SessionInactivityTTL {
		s.end(ctx, raw)
		return domain.User{}, domain.Session{}, ErrSessionInactive
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.Session{}, ErrNoSession
		}
		span.RecordError(err)
		return domain.User{}, domain.Session{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return domain.User{}, domain.Session{}, ErrNoSession
	}

	go func(id int64) {
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.sessions.Touch(touchCtx, id, now); err != nil {
			s.logger.Warn("session touch failed", zap.Int64("session_id", id), zap.Error(err))
		}
	}(session.ID)

	return user, session, nil
}

// End idempotently marks the session for raw inactive with a logout stamp.
func (s *SessionService) End(ctx context.Context, raw string) error {
	ctx, span := startSpan(ctx, "SessionService.End")
	defer span.End()

	if err := s.sessions.End(ctx, raw, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (s *SessionService) end(ctx context.Context, raw string) {
	if err := s.sessions.End(ctx, raw, time.Now().UTC()); err != nil {
		s.logger.Warn("eager session end failed", zap.Error(err))
	}
}

func signedSessionClaims(user domain.User) token.Claims {
	claims := token.Claims{Type: token.TypeSession, Email: user.Email}
	claims.Subject = fmt.Sprint(user.ID)
	claims.ID = uuid.NewString()
	return claims
}
