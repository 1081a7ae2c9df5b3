package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/appsqa/appsqa-auth/internal/domain"
)

// In-memory repositories backing the service tests. They mirror the
// Postgres semantics the services rely on: pgx.ErrNoRows for absent rows,
// atomic consume, and the one-active-session-per-user unique index.

type memoryUserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]domain.User
}

func newMemoryUserRepo(users ...domain.User) *memoryUserRepo {
	repo := &memoryUserRepo{users: map[int64]domain.User{}, nextID: 1}
	for _, u := range users {
		repo.users[u.ID] = u
		if u.ID >= repo.nextID {
			repo.nextID = u.ID + 1
		}
	}
	return repo
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return domain.User{}, pgx.ErrNoRows
}

func (m *memoryUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.nextID
	m.nextID++
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryUserRepo) UpdateLastLogin(ctx context.Context, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return pgx.ErrNoRows
	}
	u.LastLoginAt = &at
	m.users[userID] = u
	return nil
}

type memorySessionRepo struct {
	mu       sync.Mutex
	nextID   int64
	sessions []domain.Session
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{nextID: 1}
}

func (m *memorySessionRepo) Create(ctx context.Context, session domain.Session) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Partial unique index: at most one active session per user.
	for _, s := range m.sessions {
		if s.UserID == session.UserID && s.Active {
			return domain.Session{}, errors.New("duplicate key value violates unique index sessions_one_active_per_user")
		}
	}
	session.ID = m.nextID
	m.nextID++
	session.Active = true
	m.sessions = append(m.sessions, session)
	return session, nil
}

func (m *memorySessionRepo) GetByToken(ctx context.Context, token string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Token == token {
			return s, nil
		}
	}
	return domain.Session{}, pgx.ErrNoRows
}

func (m *memorySessionRepo) DeactivateForUser(ctx context.Context, userID int64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for i, s := range m.sessions {
		if s.UserID == userID && s.Active {
			m.sessions[i].Active = false
			m.sessions[i].LogoutAt = &at
			count++
		}
	}
	return count, nil
}

func (m *memorySessionRepo) End(ctx context.Context, token string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.Token == token && s.Active {
			m.sessions[i].Active = false
			m.sessions[i].LogoutAt = &at
		}
	}
	return nil
}

func (m *memorySessionRepo) Touch(ctx context.Context, sessionID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.ID == sessionID {
			m.sessions[i].LastActivityAt = at
		}
	}
	return nil
}

func (m *memorySessionRepo) setLastActivity(token string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.Token == token {
			m.sessions[i].LastActivityAt = at
		}
	}
}

func (m *memorySessionRepo) setExpiry(token string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.sessions {
		if s.Token == token {
			m.sessions[i].ExpiresAt = at
		}
	}
}

type memoryLoginTokenRepo struct {
	mu     sync.Mutex
	nextID int64
	tokens []domain.LoginToken
}

func newMemoryLoginTokenRepo() *memoryLoginTokenRepo {
	return &memoryLoginTokenRepo{nextID: 1}
}

func (m *memoryLoginTokenRepo) Create(ctx context.Context, token domain.LoginToken) (domain.LoginToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token.ID = m.nextID
	m.nextID++
	token.CreatedAt = time.Now().UTC()
	m.tokens = append(m.tokens, token)
	return token, nil
}

func (m *memoryLoginTokenRepo) MarkSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tokens {
		if t.ID == id {
			m.tokens[i].Status = domain.LoginTokenSent
			return nil
		}
	}
	return pgx.ErrNoRows
}

func (m *memoryLoginTokenRepo) Consume(ctx context.Context, token string, at time.Time) (domain.LoginToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tokens {
		if t.Token == token && !t.Used && at.Before(t.ExpiresAt) {
			m.tokens[i].Used = true
			m.tokens[i].UsedAt = &at
			m.tokens[i].Status = domain.LoginTokenConsumed
			return m.tokens[i], nil
		}
	}
	return domain.LoginToken{}, pgx.ErrNoRows
}

func (m *memoryLoginTokenRepo) setExpiry(token string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tokens {
		if t.Token == token {
			m.tokens[i].ExpiresAt = at
		}
	}
}

type memoryClientRepo struct {
	clients map[string]domain.OAuthClient
}

func newMemoryClientRepo(clients ...domain.OAuthClient) *memoryClientRepo {
	repo := &memoryClientRepo{clients: map[string]domain.OAuthClient{}}
	for _, c := range clients {
		repo.clients[c.ClientID] = c
	}
	return repo
}

func (m *memoryClientRepo) GetByClientID(ctx context.Context, clientID string) (domain.OAuthClient, error) {
	c, ok := m.clients[clientID]
	if !ok {
		return domain.OAuthClient{}, pgx.ErrNoRows
	}
	return c, nil
}

type memoryCodeRepo struct {
	mu    sync.Mutex
	codes []domain.OAuthCode
}

func (m *memoryCodeRepo) Create(ctx context.Context, code domain.OAuthCode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, code)
	return nil
}

func (m *memoryCodeRepo) Consume(ctx context.Context, code string, at time.Time) (domain.OAuthCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.codes {
		if c.Code == code && !c.Used && at.Before(c.ExpiresAt) {
			m.codes[i].Used = true
			return m.codes[i], nil
		}
	}
	return domain.OAuthCode{}, pgx.ErrNoRows
}

type memoryTokenRepo struct {
	mu           sync.Mutex
	nextAccessID int64
	access       []domain.AccessToken
	nextRefresh  int64
	refresh      []domain.RefreshToken
}

func newMemoryTokenRepo() *memoryTokenRepo {
	return &memoryTokenRepo{nextAccessID: 1, nextRefresh: 1}
}

func (m *memoryTokenRepo) CreateAccess(ctx context.Context, token domain.AccessToken) (domain.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token.ID = m.nextAccessID
	m.nextAccessID++
	m.access = append(m.access, token)
	return token, nil
}

func (m *memoryTokenRepo) GetAccessByToken(ctx context.Context, token string) (domain.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.access {
		if t.Token == token {
			return t, nil
		}
	}
	return domain.AccessToken{}, pgx.ErrNoRows
}

func (m *memoryTokenRepo) RevokeAccess(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.access {
		if t.ID == id {
			m.access[i].Revoked = true
		}
	}
	return nil
}

func (m *memoryTokenRepo) RevokeAccessByToken(ctx context.Context, clientID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.access {
		if t.ClientID == clientID && t.Token == token {
			m.access[i].Revoked = true
		}
	}
	return nil
}

func (m *memoryTokenRepo) CreateRefresh(ctx context.Context, token domain.RefreshToken) (domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token.ID = m.nextRefresh
	m.nextRefresh++
	m.refresh = append(m.refresh, token)
	return token, nil
}

func (m *memoryTokenRepo) GetRefreshByToken(ctx context.Context, token string) (domain.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.refresh {
		if t.Token == token {
			return t, nil
		}
	}
	return domain.RefreshToken{}, pgx.ErrNoRows
}

func (m *memoryTokenRepo) RelinkRefresh(ctx context.Context, refreshID, accessTokenID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.refresh {
		if t.ID == refreshID {
			m.refresh[i].AccessTokenID = accessTokenID
		}
	}
	return nil
}

func (m *memoryTokenRepo) RevokeRefreshByToken(ctx context.Context, clientID, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.refresh {
		if t.ClientID == clientID && t.Token == token {
			m.refresh[i].Revoked = true
		}
	}
	return nil
}

func (m *memoryTokenRepo) accessByID(id int64) (domain.AccessToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.access {
		if t.ID == id {
			return t, true
		}
	}
	return domain.AccessToken{}, false
}

type memoryConsentRepo struct {
	mu       sync.Mutex
	nextID   int64
	consents []domain.Consent
}

func newMemoryConsentRepo() *memoryConsentRepo {
	return &memoryConsentRepo{nextID: 1}
}

func (m *memoryConsentRepo) Get(ctx context.Context, userID int64, clientID string) (domain.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.consents {
		if c.UserID == userID && c.ClientID == clientID {
			return c, nil
		}
	}
	return domain.Consent{}, pgx.ErrNoRows
}

func (m *memoryConsentRepo) Upsert(ctx context.Context, consent domain.Consent) (domain.Consent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	for i, c := range m.consents {
		if c.UserID == consent.UserID && c.ClientID == consent.ClientID {
			m.consents[i].Scope = consent.Scope
			m.consents[i].UpdatedAt = now
			return m.consents[i], nil
		}
	}
	consent.ID = m.nextID
	m.nextID++
	consent.GrantedAt = now
	consent.UpdatedAt = now
	m.consents = append(m.consents, consent)
	return consent, nil
}

type memorySSOTokenRepo struct {
	mu     sync.Mutex
	tokens []domain.SSOToken
}

func (m *memorySSOTokenRepo) Create(ctx context.Context, token domain.SSOToken) (domain.SSOToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token.CreatedAt = time.Now().UTC()
	m.tokens = append(m.tokens, token)
	return token, nil
}

func (m *memorySSOTokenRepo) GetByTokenAndService(ctx context.Context, token, service string) (domain.SSOToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.tokens) - 1; i >= 0; i-- {
		if m.tokens[i].Token == token && m.tokens[i].Service == service {
			return m.tokens[i], nil
		}
	}
	return domain.SSOToken{}, pgx.ErrNoRows
}

func (m *memorySSOTokenRepo) GetByID(ctx context.Context, id string) (domain.SSOToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.SSOToken{}, pgx.ErrNoRows
}

func (m *memorySSOTokenRepo) Consume(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tokens {
		if t.ID == id {
			if t.Used {
				return false, nil
			}
			m.tokens[i].Used = true
			m.tokens[i].UsedAt = &at
			return true, nil
		}
	}
	return false, nil
}

func (m *memorySSOTokenRepo) ListActiveForUser(ctx context.Context, userID int64, now time.Time) ([]domain.SSOToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SSOToken
	for _, t := range m.tokens {
		if t.UserID == userID && !t.Used && now.Before(t.ExpiresAt) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memorySSOTokenRepo) setExpiry(id string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, t := range m.tokens {
		if t.ID == id {
			m.tokens[i].ExpiresAt = at
		}
	}
}

type captureSender struct {
	mu    sync.Mutex
	sent  []string
	email string
}

func (c *captureSender) SendLoginLink(ctx context.Context, email, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.email = email
	c.sent = append(c.sent, token)
	return nil
}

func (c *captureSender) lastToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sent) == 0 {
		return ""
	}
	return c.sent[len(c.sent)-1]
}

type recorderStub struct {
	mu       sync.Mutex
	logins   int
	failures map[string]int
	issued   map[string]int
	handoffs map[string]int
}

func newRecorderStub() *recorderStub {
	return &recorderStub{
		failures: map[string]int{},
		issued:   map[string]int{},
		handoffs: map[string]int{},
	}
}

func (r *recorderStub) RecordLogin() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logins++
}

func (r *recorderStub) RecordLoginFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[reason]++
}

func (r *recorderStub) RecordTokenIssued(grant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[grant]++
}

func (r *recorderStub) RecordSSOHandoff(service, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handoffs[service+"/"+outcome]++
}
