package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/appsqa/appsqa-auth/internal/domain"
)

var _ SSOTokenRepository = (*PostgresSSOTokenRepo)(nil)

// PostgresSSOTokenRepo implements SSOTokenRepository.
type PostgresSSOTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSSOTokenRepo(db *pgxpool.Pool) *PostgresSSOTokenRepo {
	return &PostgresSSOTokenRepo{db: db}
}

const insertSSOTokenSQL = `INSERT INTO sso_tokens (id, user_id, service, token, ip_address, user_agent, expires_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id, user_id, service, token, ip_address, user_agent, used, used_at, expires_at, created_at`

func (r *PostgresSSOTokenRepo) Create(ctx context.Context, token domain.SSOToken) (domain.SSOToken, error) {
	row := r.db.QueryRow(ctx, insertSSOTokenSQL,
		token.ID,
		token.UserID,
		token.Service,
		token.Token,
		token.IPAddress,
		token.UserAgent,
		token.ExpiresAt,
	)
	created, err := scanSSOToken(row)
	if err != nil {
		return domain.SSOToken{}, fmt.Errorf("insert sso token: %w", err)
	}
	return created, nil
}

const selectSSOTokenSQL = `SELECT id, user_id, service, token, ip_address, user_agent, used, used_at, expires_at, created_at
FROM sso_tokens`

func (r *PostgresSSOTokenRepo) GetByTokenAndService(ctx context.Context, token, service string) (domain.SSOToken, error) {
	row := r.db.QueryRow(ctx,
		selectSSOTokenSQL+` WHERE token = $1 AND service = $2 ORDER BY created_at DESC LIMIT 1`,
		token, service)
	found, err := scanSSOToken(row)
	if err != nil {
		return domain.SSOToken{}, fmt.Errorf("get sso token: %w", err)
	}
	return found, nil
}

func (r *PostgresSSOTokenRepo) GetByID(ctx context.Context, id string) (domain.SSOToken, error) {
	row := r.db.QueryRow(ctx, selectSSOTokenSQL+` WHERE id = $1`, id)
	found, err := scanSSOToken(row)
	if err != nil {
		return domain.SSOToken{}, fmt.Errorf("get sso token by id: %w", err)
	}
	return found, nil
}

// Consume marks the row used. The WHERE NOT used guard makes concurrent
// validations race on the row update; exactly one wins.
func (r *PostgresSSOTokenRepo) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sso_tokens SET used = true, used_at = $2 WHERE id = $1 AND NOT used`, id, at)
	if err != nil {
		return false, fmt.Errorf("consume sso token: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresSSOTokenRepo) ListActiveForUser(ctx context.Context, userID int64, now time.Time) ([]domain.SSOToken, error) {
	rows, err := r.db.Query(ctx,
		selectSSOTokenSQL+` WHERE user_id = $1 AND NOT used AND expires_at > $2 ORDER BY created_at DESC`,
		userID, now)
	if err != nil {
		return nil, fmt.Errorf("list sso tokens: %w", err)
	}
	defer rows.Close()

	var tokens []domain.SSOToken
	for rows.Next() {
		token, err := scanSSOToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sso token: %w", err)
		}
		tokens = append(tokens, token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sso tokens: %w", err)
	}
	return tokens, nil
}

func scanSSOToken(row rowScanner) (domain.SSOToken, error) {
	var token domain.SSOToken
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Service,
		&token.Token,
		&token.IPAddress,
		&token.UserAgent,
		&token.Used,
		&token.UsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	return token, err
}
