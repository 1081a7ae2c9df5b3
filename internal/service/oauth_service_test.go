package service_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/appsqa/appsqa-auth/internal/domain"
	"github.com/appsqa/appsqa-auth/internal/service"
)

const (
	testClientSecret = "s3cret-value"
	testVerifier     = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testRedirectURI  = "https://app.example.com/callback"
)

type oauthFixture struct {
	users    *memoryUserRepo
	clients  *memoryClientRepo
	codes    *memoryCodeRepo
	tokens   *memoryTokenRepo
	consents *memoryConsentRepo
	recorder *recorderStub
	user     domain.User
	svc      *service.OAuthService
}

func newOAuthFixture(t *testing.T) *oauthFixture {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(testClientSecret), bcrypt.MinCost)
	require.NoError(t, err)

	user := domain.User{ID: 5, Email: "alice@example.com", Name: "Alice", Active: true}
	client := domain.OAuthClient{
		ID:               1,
		ClientID:         "sqa-bi",
		ClientSecretHash: string(hash),
		Name:             "BI Dashboard",
		RedirectURIs:     []string{testRedirectURI},
		Active:           true,
	}

	f := &oauthFixture{
		users:    newMemoryUserRepo(user),
		clients:  newMemoryClientRepo(client),
		codes:    &memoryCodeRepo{},
		tokens:   newMemoryTokenRepo(),
		consents: newMemoryConsentRepo(),
		recorder: newRecorderStub(),
		user:     user,
	}
	f.svc = service.NewOAuthService(
		f.users, f.clients, f.codes, f.tokens, f.consents,
		testCodec(), f.recorder, testConfig(), zap.NewNop(),
	)
	return f
}

func authorizeInput() service.AuthorizeInput {
	sum := sha256.Sum256([]byte(testVerifier))
	return service.AuthorizeInput{
		ClientID:            "sqa-bi",
		RedirectURI:         testRedirectURI,
		ResponseType:        "code",
		Scope:               "openid profile email",
		State:               "xyz123",
		Nonce:               "n0nce",
		CodeChallenge:       base64.RawURLEncoding.EncodeToString(sum[:]),
		CodeChallengeMethod: "S256",
	}
}

func codeFromRedirect(t *testing.T, redirect string) string {
	t.Helper()
	u, err := url.Parse(redirect)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.NotEmpty(t, code)
	return code
}

func (f *oauthFixture) mintCode(t *testing.T) string {
	t.Helper()
	result, err := f.svc.Consent(context.Background(), f.user, service.ConsentInput{
		AuthorizeInput: authorizeInput(),
		Approved:       true,
	})
	require.NoError(t, err)
	require.False(t, result.ConsentRequired)
	return codeFromRedirect(t, result.RedirectURL)
}

func TestAuthorizeRequiresConsentFirstTime(t *testing.T) {
	f := newOAuthFixture(t)

	result, err := f.svc.Authorize(context.Background(), f.user, authorizeInput())
	require.NoError(t, err)
	require.True(t, result.ConsentRequired)
	require.Equal(t, "BI Dashboard", result.ClientName)
	require.Contains(t, result.ResumeURL, "client_id=sqa-bi")
	require.Contains(t, result.ResumeURL, "code_challenge=")
}

func TestAuthorizeSkipsConsentWhenAlreadyGranted(t *testing.T) {
	f := newOAuthFixture(t)
	_, err := f.consents.Upsert(context.Background(), domain.Consent{
		UserID:   f.user.ID,
		ClientID: "sqa-bi",
		Scope:    "openid profile email",
	})
	require.NoError(t, err)

	result, err := f.svc.Authorize(context.Background(), f.user, authorizeInput())
	require.NoError(t, err)
	require.False(t, result.ConsentRequired)
	codeFromRedirect(t, result.RedirectURL)

	u, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "xyz123", u.Query().Get("state"))
}

func TestAuthorizeDemandsConsentForWiderScope(t *testing.T) {
	f := newOAuthFixture(t)
	_, err := f.consents.Upsert(context.Background(), domain.Consent{
		UserID:   f.user.ID,
		ClientID: "sqa-bi",
		Scope:    "openid",
	})
	require.NoError(t, err)

	result, err := f.svc.Authorize(context.Background(), f.user, authorizeInput())
	require.NoError(t, err)
	require.True(t, result.ConsentRequired)
}

func TestAuthorizeRejectsUnknownClient(t *testing.T) {
	f := newOAuthFixture(t)
	in := authorizeInput()
	in.ClientID = "ghost"

	_, err := f.svc.Authorize(context.Background(), f.user, in)
	require.ErrorIs(t, err, service.ErrInvalidClient)
}

func TestAuthorizeRejectsUnregisteredRedirect(t *testing.T) {
	f := newOAuthFixture(t)
	in := authorizeInput()
	in.RedirectURI = "https://evil.example.com/callback"

	_, err := f.svc.Authorize(context.Background(), f.user, in)
	require.ErrorIs(t, err, service.ErrInvalidRedirectURI)
}

func TestAuthorizeRejectsNonCodeResponseType(t *testing.T) {
	f := newOAuthFixture(t)
	in := authorizeInput()
	in.ResponseType = "token"

	_, err := f.svc.Authorize(context.Background(), f.user, in)
	require.ErrorIs(t, err, service.ErrUnsupportedResponseType)
}

func TestConsentDenialRedirectsAccessDenied(t *testing.T) {
	f := newOAuthFixture(t)

	result, err := f.svc.Consent(context.Background(), f.user, service.ConsentInput{
		AuthorizeInput: authorizeInput(),
		Approved:       false,
	})
	require.NoError(t, err)

	u, err := url.Parse(result.RedirectURL)
	require.NoError(t, err)
	require.Equal(t, "access_denied", u.Query().Get("error"))
	require.Equal(t, "xyz123", u.Query().Get("state"))
	require.Empty(t, u.Query().Get("code"))
}

func TestCodeExchangeIssuesTokens(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	resp, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, resp.RefreshToken)
	require.NotEmpty(t, resp.IDToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "openid profile email", resp.Scope)
	require.Equal(t, 1, f.recorder.issued["authorization_code"])

	info, err := f.svc.UserInfo(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "5", info.Subject)
	require.Equal(t, "alice@example.com", info.Email)
}

func TestCodeIsSingleUse(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	in := service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	}
	_, err := f.svc.Token(context.Background(), in)
	require.NoError(t, err)

	_, err = f.svc.Token(context.Background(), in)
	require.ErrorIs(t, err, service.ErrInvalidOrExpiredCode)
}

func TestCodeExchangeRejectsWrongVerifier(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	_, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: "wrong-verifier",
	})
	require.ErrorIs(t, err, service.ErrInvalidCodeVerifier)
}

func TestCodeExchangeRejectsRedirectMismatch(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	_, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  "https://app.example.com/other",
		CodeVerifier: testVerifier,
	})
	require.ErrorIs(t, err, service.ErrInvalidOrExpiredCode)
}

func TestCodeExchangeRejectsBadClientSecret(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	_, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: "wrong",
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	})
	require.ErrorIs(t, err, service.ErrInvalidClient)
}

func TestUnsupportedGrantType(t *testing.T) {
	f := newOAuthFixture(t)

	_, err := f.svc.Token(context.Background(), service.TokenInput{GrantType: "password"})
	require.ErrorIs(t, err, service.ErrUnsupportedGrantType)
}

func TestRefreshRevokesPriorAccessToken(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	first, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)

	refreshed, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "refresh_token",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		RefreshToken: first.RefreshToken,
	})
	require.NoError(t, err)
	require.NotEqual(t, first.AccessToken, refreshed.AccessToken)
	require.Equal(t, first.RefreshToken, refreshed.RefreshToken)
	require.Empty(t, refreshed.IDToken)

	// The prior access token is dead at userinfo, the new one works.
	_, err = f.svc.UserInfo(context.Background(), first.AccessToken)
	require.ErrorIs(t, err, service.ErrInvalidAccessToken)

	_, err = f.svc.UserInfo(context.Background(), refreshed.AccessToken)
	require.NoError(t, err)

	// The refresh token now tracks the new access row.
	row, err := f.tokens.GetRefreshByToken(context.Background(), first.RefreshToken)
	require.NoError(t, err)
	linked, ok := f.tokens.accessByID(row.AccessTokenID)
	require.True(t, ok)
	require.Equal(t, refreshed.AccessToken, linked.Token)
}

func TestRefreshRejectsForeignClient(t *testing.T) {
	f := newOAuthFixture(t)

	hash, err := bcrypt.GenerateFromPassword([]byte("other-secret"), bcrypt.MinCost)
	require.NoError(t, err)
	f.clients.clients["sqa-crm"] = domain.OAuthClient{
		ID:               2,
		ClientID:         "sqa-crm",
		ClientSecretHash: string(hash),
		Name:             "CRM",
		RedirectURIs:     []string{testRedirectURI},
		Active:           true,
	}

	code := f.mintCode(t)
	first, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)

	_, err = f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "refresh_token",
		ClientID:     "sqa-crm",
		ClientSecret: "other-secret",
		RefreshToken: first.RefreshToken,
	})
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestRefreshRejectsUnknownToken(t *testing.T) {
	f := newOAuthFixture(t)

	_, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "refresh_token",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		RefreshToken: "nope",
	})
	require.ErrorIs(t, err, service.ErrInvalidRefreshToken)
}

func TestRevokeKillsAccessToken(t *testing.T) {
	f := newOAuthFixture(t)
	code := f.mintCode(t)

	resp, err := f.svc.Token(context.Background(), service.TokenInput{
		GrantType:    "authorization_code",
		ClientID:     "sqa-bi",
		ClientSecret: testClientSecret,
		Code:         code,
		RedirectURI:  testRedirectURI,
		CodeVerifier: testVerifier,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.Revoke(context.Background(), "sqa-bi", testClientSecret, resp.AccessToken))

	_, err = f.svc.UserInfo(context.Background(), resp.AccessToken)
	require.ErrorIs(t, err, service.ErrInvalidAccessToken)

	// Unknown tokens succeed silently.
	require.NoError(t, f.svc.Revoke(context.Background(), "sqa-bi", testClientSecret, "unknown-token"))
}

func TestUserInfoRejectsGarbage(t *testing.T) {
	f := newOAuthFixture(t)

	_, err := f.svc.UserInfo(context.Background(), "garbage")
	require.ErrorIs(t, err, service.ErrInvalidAccessToken)
}
