package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/config"
	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/mail"
	"github.com/appsqa/appsqa-auth/internal/metrics"
	"github.com/appsqa/appsqa-auth/internal/repository"
)

// PasswordlessService runs the email login flow: request a single-use
// token, deliver it as a link, and trade it for a session on verify.
type PasswordlessService struct {
	users       repository.UserRepository
	loginTokens repository.LoginTokenRepository
	sessions    *SessionService
	sender      mail.Sender
	recorder    metrics.Recorder
	cfg         config.Config
	logger      *zap.Logger
}

func NewPasswordlessService(
	users repository.UserRepository,
	loginTokens repository.LoginTokenRepository,
	sessions *SessionService,
	sender mail.Sender,
	recorder metrics.Recorder,
	cfg config.Config,
	logger *zap.Logger,
) *PasswordlessService {
	return &PasswordlessService{
		users:       users,
		loginTokens: loginTokens,
		sessions:    sessions,
		sender:      sender,
		recorder:    recorder,
		cfg:         cfg,
		logger:      logger,
	}
}

// RequestResult is the response to a login request. SessionToken is only
// set for the configured bypass identity, which skips email entirely.
type RequestResult struct {
	IsNewUser    bool
	SessionToken string
}

// Request looks up or lazily creates the user for email, stores a fresh
// single-use login token, and dispatches it as a link. Nothing beyond
// IsNewUser reveals whether the account existed before.
func (s *PasswordlessService) Request(ctx context.Context, email, ip, userAgent string) (RequestResult, error) {
	ctx, span := startSpan(ctx, "PasswordlessService.Request")
	defer span.End()

	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return RequestResult{}, ErrEmailRequired
	}

	user, isNew, err := s.ensureUser(ctx, normalized)
	if err != nil {
		span.RecordError(err)
		return RequestResult{}, err
	}

	// Test-only escape hatch: the bypass identity gets a session token
	// synchronously, with no email round trip. Refused at config load in
	// production; still logged loudly whenever it fires.
	if s.cfg.LoginBypassEmail != "" && normalized == strings.ToLower(s.cfg.LoginBypassEmail) {
		s.logger.Warn("LOGIN BYPASS TRIGGERED: issuing session without email verification",
			zap.String("email", normalized),
			zap.String("ip", ip),
		)
		session, err := s.sessions.Create(ctx, user, ip, userAgent)
		if err != nil {
			span.RecordError(err)
			return RequestResult{}, err
		}
		return RequestResult{IsNewUser: isNew, SessionToken: session.Token}, nil
	}

	loginToken := domain.LoginToken{
		Email:     normalized,
		Token:     uuid.NewString(),
		Status:    domain.LoginTokenPending,
		ExpiresAt: time.Now().UTC().Add(s.cfg.LoginTokenTTL),
	}
	created, err := s.loginTokens.Create(ctx, loginToken)
	if err != nil {
		span.RecordError(err)
		return RequestResult{}, fmt.Errorf("store login token: %w", err)
	}

	if err := s.sender.SendLoginLink(ctx, normalized, created.Token); err != nil {
		span.RecordError(err)
		return RequestResult{}, fmt.Errorf("send login link: %w", err)
	}
	if err := s.loginTokens.MarkSent(ctx, created.ID); err != nil {
		span.RecordError(err)
		return RequestResult{}, fmt.Errorf("mark login token sent: %w", err)
	}

	audit(s.logger, "passwordless.requested",
		zap.String("email", normalized),
		zap.Bool("new_user", isNew),
	)
	return RequestResult{IsNewUser: isNew}, nil
}

// Verify consumes the login token exactly once and opens a session for its
// owner. Absent, expired, and replayed tokens are indistinguishable to the
// caller.
func (s *PasswordlessService) Verify(ctx context.Context, rawToken, ip, userAgent string) (domain.User, domain.Session, error) {
	ctx, span := startSpan(ctx, "PasswordlessService.Verify")
	defer span.End()

	trimmed := strings.TrimSpace(rawToken)
	if trimmed == "" {
		s.recorder.RecordLoginFailure("missing_token")
		return domain.User{}, domain.Session{}, ErrInvalidLoginToken
	}

	consumed, err := s.loginTokens.Consume(ctx, trimmed, time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.recorder.RecordLoginFailure("invalid_login_token")
			return domain.User{}, domain.Session{}, ErrInvalidLoginToken
		}
		span.RecordError(err)
		return domain.User{}, domain.Session{}, fmt.Errorf("consume login token: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, consumed.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.recorder.RecordLoginFailure("unknown_user")
			return domain.User{}, domain.Session{}, ErrInvalidLoginToken
		}
		span.RecordError(err)
		return domain.User{}, domain.Session{}, fmt.Errorf("load user: %w", err)
	}

	session, err := s.sessions.Create(ctx, user, ip, userAgent)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, domain.Session{}, err
	}

	s.recorder.RecordLogin()
	audit(s.logger, "passwordless.verified", zap.Int64("user_id", user.ID))
	return user, session, nil
}

func (s *PasswordlessService) ensureUser(ctx context.Context, email string) (domain.User, bool, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, false, fmt.Errorf("get user: %w", err)
	}

	name, _, _ := strings.Cut(email, "@")
	created, err := s.users.Create(ctx, domain.User{Email: email, Name: name, Active: true})
	if err != nil {
		return domain.User{}, false, fmt.Errorf("create user: %w", err)
	}
	return created, true, nil
}
