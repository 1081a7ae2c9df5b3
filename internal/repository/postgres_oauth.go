package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appsqa/appsqa-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ ClientRepository  = (*PostgresClientRepo)(nil)
	_ CodeRepository    = (*PostgresCodeRepo)(nil)
	_ TokenRepository   = (*PostgresTokenRepo)(nil)
	_ ConsentRepository = (*PostgresConsentRepo)(nil)
)

// PostgresClientRepo implements ClientRepository.
type PostgresClientRepo struct {
	db *pgxpool.Pool
}

func NewPostgresClientRepo(db *pgxpool.Pool) *PostgresClientRepo {
	return &PostgresClientRepo{db: db}
}

const selectClientSQL = `SELECT id, client_id, client_secret_hash, name, logo_url, redirect_uris, active, created_at, updated_at
FROM oauth_clients WHERE client_id = $1`

func (r *PostgresClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error) {
	var client domain.OAuthClient
	err := r.db.QueryRow(ctx, selectClientSQL, clientID).Scan(
		&client.ID,
		&client.ClientID,
		&client.ClientSecretHash,
		&client.Name,
		&client.LogoURL,
		&client.RedirectURIs,
		&client.Active,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return domain.OAuthClient{}, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// PostgresCodeRepo implements CodeRepository.
type PostgresCodeRepo struct {
	db *pgxpool.Pool
}

func NewPostgresCodeRepo(db *pgxpool.Pool) *PostgresCodeRepo {
	return &PostgresCodeRepo{db: db}
}

const insertCodeSQL = `INSERT INTO oauth_codes (code, client_id, user_id, redirect_uri, scope, code_challenge, code_challenge_method, nonce, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

func (r *PostgresCodeRepo) Create(ctx context.Context, code domain.OAuthCode) error {
	_, err := r.db.Exec(ctx, insertCodeSQL,
		code.Code,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		code.Scope,
		code.CodeChallenge,
		code.CodeChallengeMethod,
		code.Nonce,
		code.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert code: %w", err)
	}
	return nil
}

// consumeCodeSQL flips used in the same statement that checks it, so a
// second exchange of the same code matches no row regardless of timing.
const consumeCodeSQL = `UPDATE oauth_codes
SET used = true
WHERE code = $1 AND NOT used AND expires_at > $2
RETURNING code, client_id, user_id, redirect_uri, scope, code_challenge, code_challenge_method, nonce, used, expires_at, created_at`

func (r *PostgresCodeRepo) Consume(ctx context.Context, code string, at time.Time) (domain.OAuthCode, error) {
	var consumed domain.OAuthCode
	err := r.db.QueryRow(ctx, consumeCodeSQL, code, at).Scan(
		&consumed.Code,
		&consumed.ClientID,
		&consumed.UserID,
		&consumed.RedirectURI,
		&consumed.Scope,
		&consumed.CodeChallenge,
		&consumed.CodeChallengeMethod,
		&consumed.Nonce,
		&consumed.Used,
		&consumed.ExpiresAt,
		&consumed.CreatedAt,
	)
	if err != nil {
		return domain.OAuthCode{}, fmt.Errorf("consume code: %w", err)
	}
	return consumed, nil
}

// PostgresTokenRepo implements TokenRepository.
type PostgresTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresTokenRepo(db *pgxpool.Pool) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

const insertAccessTokenSQL = `INSERT INTO oauth_access_tokens (token, client_id, user_id, scope, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, token, client_id, user_id, scope, revoked, expires_at, created_at`

func (r *PostgresTokenRepo) CreateAccess(ctx context.Context, token domain.AccessToken) (domain.AccessToken, error) {
	row := r.db.QueryRow(ctx, insertAccessTokenSQL,
		token.Token, token.ClientID, token.UserID, token.Scope, token.ExpiresAt)
	created, err := scanAccessToken(row)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("insert access token: %w", err)
	}
	return created, nil
}

const selectAccessTokenSQL = `SELECT id, token, client_id, user_id, scope, revoked, expires_at, created_at
FROM oauth_access_tokens WHERE token = $1`

func (r *PostgresTokenRepo) GetAccessByToken(ctx context.Context, token string) (domain.AccessToken, error) {
	row := r.db.QueryRow(ctx, selectAccessTokenSQL, token)
	found, err := scanAccessToken(row)
	if err != nil {
		return domain.AccessToken{}, fmt.Errorf("get access token: %w", err)
	}
	return found, nil
}

func (r *PostgresTokenRepo) RevokeAccess(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE oauth_access_tokens SET revoked = true WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) RevokeAccessByToken(ctx context.Context, clientID, token string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE oauth_access_tokens SET revoked = true WHERE client_id = $1 AND token = $2`, clientID, token)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

const insertRefreshTokenSQL = `INSERT INTO oauth_refresh_tokens (token, access_token_id, client_id, user_id, scope, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, token, access_token_id, client_id, user_id, scope, revoked, expires_at, created_at`

func (r *PostgresTokenRepo) CreateRefresh(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, insertRefreshTokenSQL,
		token.Token, token.AccessTokenID, token.ClientID, token.UserID, token.Scope, token.ExpiresAt)
	created, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("insert refresh token: %w", err)
	}
	return created, nil
}

const selectRefreshTokenSQL = `SELECT id, token, access_token_id, client_id, user_id, scope, revoked, expires_at, created_at
FROM oauth_refresh_tokens WHERE token = $1`

func (r *PostgresTokenRepo) GetRefreshByToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	row := r.db.QueryRow(ctx, selectRefreshTokenSQL, token)
	found, err := scanRefreshToken(row)
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("get refresh token: %w", err)
	}
	return found, nil
}

func (r *PostgresTokenRepo) RelinkRefresh(ctx context.Context, refreshID, accessTokenID int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE oauth_refresh_tokens SET access_token_id = $2 WHERE id = $1`, refreshID, accessTokenID)
	if err != nil {
		return fmt.Errorf("relink refresh token: %w", err)
	}
	return nil
}

func (r *PostgresTokenRepo) RevokeRefreshByToken(ctx context.Context, clientID, token string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE oauth_refresh_tokens SET revoked = true WHERE client_id = $1 AND token = $2`, clientID, token)
	if err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func scanAccessToken(row rowScanner) (domain.AccessToken, error) {
	var token domain.AccessToken
	err := row.Scan(
		&token.ID,
		&token.Token,
		&token.ClientID,
		&token.UserID,
		&token.Scope,
		&token.Revoked,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	return token, err
}

func scanRefreshToken(row rowScanner) (domain.RefreshToken, error) {
	var token domain.RefreshToken
	err := row.Scan(
		&token.ID,
		&token.Token,
		&token.AccessTokenID,
		&token.ClientID,
		&token.UserID,
		&token.Scope,
		&token.Revoked,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	return token, err
}

// PostgresConsentRepo implements ConsentRepository.
type PostgresConsentRepo struct {
	db *pgxpool.Pool
}

func NewPostgresConsentRepo(db *pgxpool.Pool) *PostgresConsentRepo {
	return &PostgresConsentRepo{db: db}
}

const selectConsentSQL = `SELECT id, user_id, client_id, scope, granted_at, updated_at
FROM oauth_consents WHERE user_id = $1 AND client_id = $2`

func (r *PostgresConsentRepo) Get(ctx context.Context, userID int64, clientID string) (domain.Consent, error) {
	var consent domain.Consent
	err := r.db.QueryRow(ctx, selectConsentSQL, userID, clientID).Scan(
		&consent.ID,
		&consent.UserID,
		&consent.ClientID,
		&consent.Scope,
		&consent.GrantedAt,
		&consent.UpdatedAt,
	)
	if err != nil {
		return domain.Consent{}, fmt.Errorf("get consent: %w", err)
	}
	return consent, nil
}

const upsertConsentSQL = `INSERT INTO oauth_consents (user_id, client_id, scope, granted_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
ON CONFLICT (user_id, client_id)
DO UPDATE SET scope = EXCLUDED.scope, updated_at = EXCLUDED.updated_at
RETURNING id, user_id, client_id, scope, granted_at, updated_at`

func (r *PostgresConsentRepo) Upsert(ctx context.Context, consent domain.Consent) (domain.Consent, error) {
	var upserted domain.Consent
	err := r.db.QueryRow(ctx, upsertConsentSQL,
		consent.UserID, consent.ClientID, consent.Scope, time.Now().UTC()).Scan(
		&upserted.ID,
		&upserted.UserID,
		&upserted.ClientID,
		&upserted.Scope,
		&upserted.GrantedAt,
		&upserted.UpdatedAt,
	)
	if err != nil {
		return domain.Consent{}, fmt.Errorf("upsert consent: %w", err)
	}
	return upserted, nil
}
