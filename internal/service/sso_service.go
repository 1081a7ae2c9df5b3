package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/appsqa/appsqa-auth/internal/config"
	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/metrics"
	"github.com/appsqa/appsqa-auth/internal/repository"
	"github.com/appsqa/appsqa-auth/internal/token"
)

// SSOService issues and validates one-time handoff tokens that move an
// authenticated hub user into a satellite service. The handoff is
// independent of the OAuth server; it mints its own narrow token type.
type SSOService struct {
	users     repository.UserRepository
	ssoTokens repository.SSOTokenRepository
	codec     *token.Codec
	recorder  metrics.Recorder
	cfg       config.Config
	logger    *zap.Logger
}

func NewSSOService(
	users repository.UserRepository,
	ssoTokens repository.SSOTokenRepository,
	codec *token.Codec,
	recorder metrics.Recorder,
	cfg config.Config,
	logger *zap.Logger,
) *SSOService {
	return &SSOService{
		users:     users,
		ssoTokens: ssoTokens,
		codec:     codec,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Handoff is the result of generating an SSO token.
type Handoff struct {
	Token       string
	TokenID     string
	RedirectURL string
	ExpiresAt   time.Time
	User        domain.User
}

// Generate mints a one-time token addressed to service and returns it with
// a ready-to-redirect URL. Unknown services are rejected against the fixed
// allow-list from configuration.
func (s *SSOService) Generate(ctx context.Context, user domain.User, service, ip, userAgent string) (*Handoff, error) {
	ctx, span := startSpan(ctx, "SSOService.Generate")
	defer span.End()

	base, ok := s.cfg.SSOServiceURLs[service]
	if !ok {
		s.recorder.RecordSSOHandoff(service, "invalid_service")
		return nil, ErrInvalidService
	}

	// Claims carry the live profile, so re-read it rather than trusting
	// whatever the middleware cached.
	profile, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}

	id := uuid.NewString()
	claims := token.Claims{
		Type:    token.TypeSSO,
		Email:   profile.Email,
		Name:    profile.Name,
		Service: service,
	}
	claims.Subject = fmt.Sprint(profile.ID)
	claims.Audience = []string{service}
	claims.ID = id

	raw, err := s.codec.Sign(claims, s.cfg.SSOTokenTTL)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sign sso token: %w", err)
	}

	row, err := s.ssoTokens.Create(ctx, domain.SSOToken{
		ID:        id,
		UserID:    profile.ID,
		Service:   service,
		Token:     raw,
		IPAddress: ip,
		UserAgent: userAgent,
		ExpiresAt: time.Now().UTC().Add(s.cfg.SSOTokenTTL),
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("store sso token: %w", err)
	}

	redirect, err := ssoRedirectURL(base, raw)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("build redirect url: %w", err)
	}

	s.recorder.RecordSSOHandoff(service, "issued")
	audit(s.logger, "sso.token.issued",
		zap.Int64("user_id", profile.ID),
		zap.String("service", service),
		zap.String("token_id", id),
	)
	return &Handoff{
		Token:       raw,
		TokenID:     row.ID,
		RedirectURL: redirect,
		ExpiresAt:   row.ExpiresAt,
		User:        profile,
	}, nil
}

// Validate consumes a handoff token for service. The database row drives
// every replay and expiry decision; the signature is only checked after
// the row passes, and the row is marked used atomically so concurrent
// validations of the same token cannot both succeed.
func (s *SSOService) Validate(ctx context.Context, raw, service string) (domain.User, string, error) {
	ctx, span := startSpan(ctx, "SSOService.Validate")
	defer span.End()

	row, err := s.ssoTokens.GetByTokenAndService(ctx, raw, service)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.recorder.RecordSSOHandoff(service, "invalid_token")
			return domain.User{}, "", ErrInvalidSSOToken
		}
		span.RecordError(err)
		return domain.User{}, "", fmt.Errorf("load sso token: %w", err)
	}
	if row.Used {
		s.recorder.RecordSSOHandoff(service, "replayed")
		s.logger.Warn("sso token replay blocked",
			zap.String("token_id", row.ID),
			zap.String("service", service),
		)
		return domain.User{}, "", ErrSSOTokenAlreadyUsed
	}
	if !time.Now().UTC().Before(row.ExpiresAt) {
		s.recorder.RecordSSOHandoff(service, "expired")
		return domain.User{}, "", ErrSSOTokenExpired
	}

	claims, err := s.codec.Verify(raw, token.TypeSSO, service)
	if err != nil {
		s.recorder.RecordSSOHandoff(service, "invalid_token")
		return domain.User{}, "", ErrInvalidSSOToken
	}
	if claims.Service != service {
		s.recorder.RecordSSOHandoff(service, "invalid_token")
		return domain.User{}, "", ErrInvalidSSOToken
	}

	consumed, err := s.ssoTokens.Consume(ctx, row.ID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return domain.User{}, "", fmt.Errorf("consume sso token: %w", err)
	}
	if !consumed {
		s.recorder.RecordSSOHandoff(service, "replayed")
		return domain.User{}, "", ErrSSOTokenAlreadyUsed
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		span.RecordError(err)
		return domain.User{}, "", fmt.Errorf("load user: %w", err)
	}

	s.recorder.RecordSSOHandoff(service, "validated")
	audit(s.logger, "sso.token.validated",
		zap.Int64("user_id", user.ID),
		zap.String("service", service),
		zap.String("token_id", row.ID),
	)
	return user, row.ID, nil
}

// Revoke marks a token used so it can never validate. Only the token's
// owner or an administrator may revoke it.
func (s *SSOService) Revoke(ctx context.Context, requester domain.User, tokenID string) error {
	ctx, span := startSpan(ctx, "SSOService.Revoke")
	defer span.End()

	row, err := s.ssoTokens.GetByID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSSOTokenNotFound
		}
		span.RecordError(err)
		return fmt.Errorf("load sso token: %w", err)
	}
	if row.UserID != requester.ID && !requester.Admin {
		return ErrSSONotOwner
	}

	if _, err := s.ssoTokens.Consume(ctx, tokenID, time.Now().UTC()); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke sso token: %w", err)
	}

	audit(s.logger, "sso.token.revoked",
		zap.Int64("requester_id", requester.ID),
		zap.String("token_id", tokenID),
	)
	return nil
}

// ListActive lists a user's unexpired, unconsumed handoff tokens for
// self-service audit.
func (s *SSOService) ListActive(ctx context.Context, userID int64) ([]domain.SSOToken, error) {
	ctx, span := startSpan(ctx, "SSOService.ListActive")
	defer span.End()

	tokens, err := s.ssoTokens.ListActiveForUser(ctx, userID, time.Now().UTC())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list sso tokens: %w", err)
	}
	return tokens, nil
}

func ssoRedirectURL(base, rawToken string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("sso_token", rawToken)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
