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
	_ UserRepository       = (*PostgresUserRepo)(nil)
	_ SessionRepository    = (*PostgresSessionRepo)(nil)
	_ LoginTokenRepository = (*PostgresLoginTokenRepo)(nil)
)

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(db *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const selectUserSQL = `SELECT id, email, name, active, admin, last_login_at, created_at, updated_at FROM users`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+` WHERE email = $1`, email)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	row := r.db.QueryRow(ctx, selectUserSQL+` WHERE id = $1`, userID)
	user, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (email, name, active)
VALUES ($1, $2, $3)
RETURNING id, email, name, active, admin, last_login_at, created_at, updated_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	row := r.db.QueryRow(ctx, insertUserSQL, user.Email, user.Name, user.Active)
	created, err := scanUser(row)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *PostgresUserRepo) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE users SET last_login_at = $2, updated_at = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (domain.User, error) {
	var user domain.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Active,
		&user.Admin,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// PostgresSessionRepo implements SessionRepository.
type PostgresSessionRepo struct {
	db *pgxpool.Pool
}

func NewPostgresSessionRepo(db *pgxpool.Pool) *PostgresSessionRepo {
	return &PostgresSessionRepo{db: db}
}

const insertSessionSQL = `INSERT INTO sessions (user_id, token, ip_address, user_agent, login_at, expires_at, last_activity_at, active)
VALUES ($1, $2, $3, $4, $5, $6, $7, true)
RETURNING id, user_id, token, ip_address, user_agent, login_at, expires_at, last_activity_at, active, logout_at`

func (r *PostgresSessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	row := r.db.QueryRow(ctx, insertSessionSQL,
		session.UserID,
		session.Token,
		session.IPAddress,
		session.UserAgent,
		session.LoginAt,
		session.ExpiresAt,
		session.LastActivityAt,
	)
	created, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return created, nil
}

const selectSessionSQL = `SELECT id, user_id, token, ip_address, user_agent, login_at, expires_at, last_activity_at, active, logout_at
FROM sessions WHERE token = $1`

func (r *PostgresSessionRepo) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	row := r.db.QueryRow(ctx, selectSessionSQL, token)
	session, err := scanSession(row)
	if err != nil {
		return domain.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *PostgresSessionRepo) DeactivateForUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE sessions SET active = false, logout_at = $2 WHERE user_id = $1 AND active`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("deactivate sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresSessionRepo) End(ctx context.Context, token string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET active = false, logout_at = $2 WHERE token = $1 AND active`, token, at)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (r *PostgresSessionRepo) Touch(ctx context.Context, sessionID int64, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE sessions SET last_activity_at = $2 WHERE id = $1`, sessionID, at)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func scanSession(row rowScanner) (domain.Session, error) {
	var session domain.Session
	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.IPAddress,
		&session.UserAgent,
		&session.LoginAt,
		&session.ExpiresAt,
		&session.LastActivityAt,
		&session.Active,
		&session.LogoutAt,
	)
	return session, err
}

// PostgresLoginTokenRepo implements LoginTokenRepository.
type PostgresLoginTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresLoginTokenRepo(db *pgxpool.Pool) *PostgresLoginTokenRepo {
	return &PostgresLoginTokenRepo{db: db}
}

const insertLoginTokenSQL = `INSERT INTO login_tokens (email, token, status, expires_at)
VALUES ($1, $2, $3, $4)
RETURNING id, email, token, status, used, used_at, expires_at, created_at`

func (r *PostgresLoginTokenRepo) Create(ctx context.Context, token domain.LoginToken) (domain.LoginToken, error) {
	row := r.db.QueryRow(ctx, insertLoginTokenSQL, token.Email, token.Token, token.Status, token.ExpiresAt)
	created, err := scanLoginToken(row)
	if err != nil {
		return domain.LoginToken{}, fmt.Errorf("create login token: %w", err)
	}
	return created, nil
}

func (r *PostgresLoginTokenRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx,
		`UPDATE login_tokens SET status = $2 WHERE id = $1 AND status = $3`,
		id, domain.LoginTokenSent, domain.LoginTokenPending)
	if err != nil {
		return fmt.Errorf("mark login token sent: %w", err)
	}
	return nil
}

// consumeLoginTokenSQL checks and flips used in one statement; a replayed
// or expired token simply matches no row.
const consumeLoginTokenSQL = `UPDATE login_tokens
SET used = true, used_at = $2, status = $3
WHERE token = $1 AND NOT used AND expires_at > $2
RETURNING id, email, token, status, used, used_at, expires_at, created_at`

func (r *PostgresLoginTokenRepo) Consume(ctx context.Context, token string, at time.Time) (domain.LoginToken, error) {
	row := r.db.QueryRow(ctx, consumeLoginTokenSQL, token, at, domain.LoginTokenConsumed)
	consumed, err := scanLoginToken(row)
	if err != nil {
		return domain.LoginToken{}, fmt.Errorf("consume login token: %w", err)
	}
	return consumed, nil
}

func scanLoginToken(row rowScanner) (domain.LoginToken, error) {
	var token domain.LoginToken
	err := row.Scan(
		&token.ID,
		&token.Email,
		&token.Token,
		&token.Status,
		&token.Used,
		&token.UsedAt,
		&token.ExpiresAt,
		&token.CreatedAt,
	)
	return token, err
}
