package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/appsqa/appsqa-auth/internal/config"
	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/metrics"
	"github.com/appsqa/appsqa-auth/internal/repository"
	"github.com/appsqa/appsqa-auth/internal/token"
)

const defaultScope = "openid profile email"

// grantType is the closed set of grants the token endpoint dispatches on.
type grantType int

const (
	grantUnknown grantType = iota
	grantAuthorizationCode
	grantRefreshToken
)

func parseGrantType(raw string) grantType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "authorization_code":
		return grantAuthorizationCode
	case "refresh_token":
		return grantRefreshToken
	default:
		return grantUnknown
	}
}

// OAuthService is the authorization server: authorization-code grant with
// PKCE, consent tracking, token issuance and refresh, userinfo, and
// revocation.
type OAuthService struct {
	users    repository.UserRepository
	clients  repository.ClientRepository
	codes    repository.CodeRepository
	tokens   repository.TokenRepository
	consents repository.ConsentRepository
	codec    *token.Codec
	recorder metrics.Recorder
	cfg      config.Config
	logger   *zap.Logger
}

func NewOAuthService(
	users repository.UserRepository,
	clients repository.ClientRepository,
	codes repository.CodeRepository,
	tokens repository.TokenRepository,
	consents repository.ConsentRepository,
	codec *token.Codec,
	recorder metrics.Recorder,
	cfg config.Config,
	logger *zap.Logger,
) *OAuthService {
	return &OAuthService{
		users:    users,
		clients:  clients,
		codes:    codes,
		tokens:   tokens,
		consents: consents,
		codec:    codec,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}
}

// AuthorizeInput carries the query parameters of an authorization request.
type AuthorizeInput struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	State               string
	Nonce               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// AuthorizeResult is either a redirect back to the client (code minted) or
// a consent-required response carrying a resumable authorize URL.
type AuthorizeResult struct {
	ConsentRequired bool
	ClientName      string
	ClientLogoURL   string
	Scope           string
	ResumeURL       string
	RedirectURL     string
}

// ConsentInput is the user's decision on a pending authorization.
type ConsentInput struct {
	AuthorizeInput
	Approved bool
}

// TokenInput carries the form fields of a token request.
type TokenInput struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
}

// TokenResponse is the token endpoint's success payload.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
	Scope        string `json:"scope"`
}

// UserInfoResponse is the OIDC standard claim set for a subject.
type UserInfoResponse struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

// Authorize validates an authorization request for an already-authenticated
// user. When the user has not consented to this scope set for this client,
// it returns a consent-required result instead of minting a code.
func (s *OAuthService) Authorize(ctx context.Context, user domain.User, in AuthorizeInput) (*AuthorizeResult, error) {
	ctx, span := startSpan(ctx, "OAuthService.Authorize")
	defer span.End()

	client, err := s.validateAuthorizeRequest(ctx, &in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	consent, err := s.consents.Get(ctx, user.ID, client.ClientID)
	switch {
	case err == nil && consent.Covers(in.Scope):
		// Previously consented to at least this scope set; proceed.
	case err == nil, errors.Is(err, pgx.ErrNoRows):
		return &AuthorizeResult{
			ConsentRequired: true,
			ClientName:      client.Name,
			ClientLogoURL:   client.LogoURL,
			Scope:           in.Scope,
			ResumeURL:       resumeAuthorizeURL(in),
		}, nil
	default:
		span.RecordError(err)
		return nil, fmt.Errorf("load consent: %w", err)
	}

	redirect, err := s.mintCodeRedirect(ctx, user, client, in)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	audit(s.logger, "oauth.code.issued",
		zap.Int64("user_id", user.ID),
		zap.String("client_id", client.ClientID),
	)
	return &AuthorizeResult{Scope: in.Scope, RedirectURL: redirect}, nil
}

// Consent records the user's decision. Approval persists the consent and
// proceeds exactly like the already-consented authorize path; denial sends
// the client an access_denied redirect.
func (s *OAuthService) Consent(ctx context.Context, user domain.User, in ConsentInput) (*AuthorizeResult, error) {
	ctx, span := startSpan(ctx, "OAuthService.Consent")
	defer span.End()

	client, err := s.validateAuthorizeRequest(ctx, &in.AuthorizeInput)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if !in.Approved {
		redirect, err := appendQuery(in.RedirectURI, map[string]string{
			"error": "access_denied",
			"state": in.State,
		})
		if err != nil {
			return nil, fmt.Errorf("build redirect: %w", err)
		}
		audit(s.logger, "oauth.consent.denied",
			zap.Int64("user_id", user.ID),
			zap.String("client_id", client.ClientID),
		)
		return &AuthorizeResult{Scope: in.Scope, RedirectURL: redirect}, nil
	}

	if _, err := s.consents.Upsert(ctx, domain.Consent{
		UserID:   user.ID,
		ClientID: client.ClientID,
		Scope:    in.Scope,
	}); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("persist consent: %w", err)
	}

	redirect, err := s.mintCodeRedirect(ctx, user, client, in.AuthorizeInput)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	audit(s.logger, "oauth.consent.granted",
		zap.Int64("user_id", user.ID),
		zap.String("client_id", client.ClientID),
		zap.String("scope", in.Scope),
	)
	return &AuthorizeResult{Scope: in.Scope, RedirectURL: redirect}, nil
}

// Token dispatches a token request over the closed grant set.
func (s *OAuthService) Token(ctx context.Context, in TokenInput) (*TokenResponse, error) {
	ctx, span := startSpan(ctx, "OAuthService.Token")
	defer span.End()

	switch parseGrantType(in.GrantType) {
	case grantAuthorizationCode:
		return s.exchangeCode(ctx, in)
	case grantRefreshToken:
		return s.refresh(ctx, in)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

// UserInfo resolves a bearer access token to the subject's OIDC claims.
// The signature must verify and the database mirror row must be unrevoked
// and unexpired; the row wins over the signature on revocation.
func (s *OAuthService) UserInfo(ctx context.Context, raw string) (*UserInfoResponse, error) {
	ctx, span := startSpan(ctx, "OAuthService.UserInfo")
	defer span.End()

	claims, err := s.codec.Verify(raw, token.TypeAccess, "")
	if err != nil {
		return nil, ErrInvalidAccessToken
	}

	row, err := s.tokens.GetAccessByToken(ctx, raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidAccessToken
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load access token: %w", err)
	}
	if row.Revoked || !time.Now().UTC().Before(row.ExpiresAt) {
		return nil, ErrInvalidAccessToken
	}

	user, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidAccessToken
		}
		span.RecordError(err)
		return nil, fmt.Errorf("load user: %w", err)
	}

	return &UserInfoResponse{
		Subject:       claims.Subject,
		Email:         user.Email,
		Name:          user.Name,
		EmailVerified: true,
	}, nil
}

// Revoke marks matching access and refresh rows revoked for an
// authenticated client. Unknown tokens succeed too, so the endpoint leaks
// nothing about which tokens exist.
func (s *OAuthService) Revoke(ctx context.Context, clientID, clientSecret, raw string) error {
	ctx, span := startSpan(ctx, "OAuthService.Revoke")
	defer span.End()

	client, err := s.authenticateClient(ctx, clientID, clientSecret)
	if err != nil {
		span.RecordError(err)
		return err
	}

	if err := s.tokens.RevokeAccessByToken(ctx, client.ClientID, raw); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke access token: %w", err)
	}
	if err := s.tokens.RevokeRefreshByToken(ctx, client.ClientID, raw); err != nil {
		span.RecordError(err)
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	audit(s.logger, "oauth.token.revoked", zap.String("client_id", client.ClientID))
	return nil
}

func (s *OAuthService) validateAuthorizeRequest(ctx context.Context, in *AuthorizeInput) (domain.OAuthClient, error) {
	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(in.ClientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OAuthClient{}, ErrInvalidClient
		}
		return domain.OAuthClient{}, fmt.Errorf("load client: %w", err)
	}
	if !client.Active {
		return domain.OAuthClient{}, ErrInvalidClient
	}
	if !client.AllowsRedirectURI(in.RedirectURI) {
		return domain.OAuthClient{}, ErrInvalidRedirectURI
	}
	if in.ResponseType != "code" {
		return domain.OAuthClient{}, ErrUnsupportedResponseType
	}
	if in.CodeChallenge != "" && in.CodeChallengeMethod != "S256" {
		return domain.OAuthClient{}, newAuthError("invalid_request",
			"code_challenge_method must be S256.", http.StatusBadRequest)
	}
	if strings.TrimSpace(in.Scope) == "" {
		in.Scope = defaultScope
	}
	return client, nil
}

func (s *OAuthService) mintCodeRedirect(ctx context.Context, user domain.User, client domain.OAuthClient, in AuthorizeInput) (string, error) {
	code, err := secureRandomString(32)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}

	if err := s.codes.Create(ctx, domain.OAuthCode{
		Code:                code,
		ClientID:            client.ClientID,
		UserID:              user.ID,
		RedirectURI:         in.RedirectURI,
		Scope:               in.Scope,
		CodeChallenge:       in.CodeChallenge,
		CodeChallengeMethod: in.CodeChallengeMethod,
		Nonce:               in.Nonce,
		ExpiresAt:           time.Now().UTC().Add(s.cfg.AuthCodeTTL),
	}); err != nil {
		return "", fmt.Errorf("store code: %w", err)
	}

	return appendQuery(in.RedirectURI, map[string]string{
		"code":  code,
		"state": in.State,
	})
}

func (s *OAuthService) exchangeCode(ctx context.Context, in TokenInput) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		return nil, err
	}

	code, err := s.codes.Consume(ctx, in.Code, time.Now().UTC())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("consume code: %w", err)
	}

	if code.ClientID != client.ClientID {
		return nil, ErrInvalidOrExpiredCode
	}
	if code.RedirectURI != in.RedirectURI {
		return nil, ErrInvalidOrExpiredCode
	}
	if code.CodeChallenge != "" && pkceChallenge(in.CodeVerifier) != code.CodeChallenge {
		return nil, ErrInvalidCodeVerifier
	}

	user, err := s.users.GetByID(ctx, code.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	resp, err := s.issueTokens(ctx, user, client, code.Scope, code.Nonce)
	if err != nil {
		return nil, err
	}

	s.recorder.RecordTokenIssued("authorization_code")
	audit(s.logger, "oauth.tokens.issued",
		zap.Int64("user_id", user.ID),
		zap.String("client_id", client.ClientID),
		zap.String("grant", "authorization_code"),
	)
	return resp, nil
}

// refresh revokes the access token this refresh token minted, issues a new
// access token with the same scopes, and relinks the refresh token to it.
// The refresh token itself is deliberately not rotated.
func (s *OAuthService) refresh(ctx context.Context, in TokenInput) (*TokenResponse, error) {
	client, err := s.authenticateClient(ctx, in.ClientID, in.ClientSecret)
	if err != nil {
		return nil, err
	}

	refresh, err := s.tokens.GetRefreshByToken(ctx, in.RefreshToken)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load refresh token: %w", err)
	}
	now := time.Now().UTC()
	if refresh.Revoked || !now.Before(refresh.ExpiresAt) || refresh.ClientID != client.ClientID {
		return nil, ErrInvalidRefreshToken
	}

	if err := s.tokens.RevokeAccess(ctx, refresh.AccessTokenID); err != nil {
		return nil, fmt.Errorf("revoke prior access token: %w", err)
	}

	user, err := s.users.GetByID(ctx, refresh.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	accessRow, accessToken, err := s.mintAccessToken(ctx, user, client, refresh.Scope)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.RelinkRefresh(ctx, refresh.ID, accessRow.ID); err != nil {
		return nil, fmt.Errorf("relink refresh token: %w", err)
	}

	s.recorder.RecordTokenIssued("refresh_token")
	audit(s.logger, "oauth.tokens.refreshed",
		zap.Int64("user_id", user.ID),
		zap.String("client_id", client.ClientID),
	)
	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refresh.Token,
		Scope:        refresh.Scope,
	}, nil
}

func (s *OAuthService) issueTokens(ctx context.Context, user domain.User, client domain.OAuthClient, scope, nonce string) (*TokenResponse, error) {
	accessRow, accessToken, err := s.mintAccessToken(ctx, user, client, scope)
	if err != nil {
		return nil, err
	}

	refreshValue, err := secureRandomString(s.cfg.RefreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	refresh, err := s.tokens.CreateRefresh(ctx, domain.RefreshToken{
		Token:         refreshValue,
		AccessTokenID: accessRow.ID,
		ClientID:      client.ClientID,
		UserID:        user.ID,
		Scope:         scope,
		ExpiresAt:     time.Now().UTC().Add(s.cfg.RefreshTokenTTL),
	})
	if err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	resp := &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.cfg.AccessTokenTTL.Seconds()),
		RefreshToken: refresh.Token,
		Scope:        scope,
	}

	if scopeContains(scope, "openid") {
		idClaims := token.Claims{
			Type:          token.TypeID,
			Email:         user.Email,
			Name:          user.Name,
			EmailVerified: true,
			Nonce:         nonce,
		}
		idClaims.Subject = fmt.Sprint(user.ID)
		idClaims.Audience = []string{client.ClientID}
		idToken, err := s.codec.Sign(idClaims, s.cfg.AccessTokenTTL)
		if err != nil {
			return nil, fmt.Errorf("sign id token: %w", err)
		}
		resp.IDToken = idToken
	}

	return resp, nil
}

func (s *OAuthService) mintAccessToken(ctx context.Context, user domain.User, client domain.OAuthClient, scope string) (domain.AccessToken, string, error) {
	claims := token.Claims{
		Type:  token.TypeAccess,
		Email: user.Email,
		Name:  user.Name,
		Scope: scope,
	}
	claims.Subject = fmt.Sprint(user.ID)
	claims.Audience = []string{client.ClientID}
	claims.ID = uuid.NewString()

	raw, err := s.codec.Sign(claims, s.cfg.AccessTokenTTL)
	if err != nil {
		return domain.AccessToken{}, "", fmt.Errorf("sign access token: %w", err)
	}

	row, err := s.tokens.CreateAccess(ctx, domain.AccessToken{
		Token:     raw,
		ClientID:  client.ClientID,
		UserID:    user.ID,
		Scope:     scope,
		ExpiresAt: time.Now().UTC().Add(s.cfg.AccessTokenTTL),
	})
	if err != nil {
		return domain.AccessToken{}, "", fmt.Errorf("store access token: %w", err)
	}
	return row, raw, nil
}

func (s *OAuthService) authenticateClient(ctx context.Context, clientID, clientSecret string) (domain.OAuthClient, error) {
	client, err := s.clients.GetByClientID(ctx, strings.TrimSpace(clientID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OAuthClient{}, ErrInvalidClient
		}
		return domain.OAuthClient{}, fmt.Errorf("load client: %w", err)
	}
	if !client.Active {
		return domain.OAuthClient{}, ErrInvalidClient
	}
	if bcrypt.CompareHashAndPassword([]byte(client.ClientSecretHash), []byte(clientSecret)) != nil {
		return domain.OAuthClient{}, ErrInvalidClient
	}
	return client, nil
}

func resumeAuthorizeURL(in AuthorizeInput) string {
	params := url.Values{}
	params.Set("client_id", in.ClientID)
	params.Set("redirect_uri", in.RedirectURI)
	params.Set("response_type", in.ResponseType)
	params.Set("scope", in.Scope)
	if in.State != "" {
		params.Set("state", in.State)
	}
	if in.Nonce != "" {
		params.Set("nonce", in.Nonce)
	}
	if in.CodeChallenge != "" {
		params.Set("code_challenge", in.CodeChallenge)
		params.Set("code_challenge_method", in.CodeChallengeMethod)
	}
	return "/oauth/authorize?" + params.Encode()
}

func appendQuery(rawURL string, pairs map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	q := u.Query()
	for k, v := range pairs {
		if v != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func scopeContains(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}
