// Package token signs and verifies the compact HMAC tokens used across the
// subsystem: session tokens, OAuth access and ID tokens, and SSO handoff
// tokens. Each token type carries a typ claim and an audience so a token
// minted for one consumer is never accepted by another.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Token type discriminators carried in the typ claim.
const (
	TypeSession = "session"
	TypeAccess  = "access"
	TypeID      = "id"
	TypeSSO     = "sso"
)

var (
	// ErrExpired marks a token past its exp claim.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers bad signatures, malformed tokens, and claim
	// mismatches (wrong issuer, audience, or type).
	ErrInvalid = errors.New("token invalid")
)

// Claims is the union claim set for every token the hub mints. Unused
// fields are omitted from the payload.
type Claims struct {
	jwt.Claims
	Type          string `json:"typ"`
	Email         string `json:"email,omitempty"`
	Name          string `json:"name,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
	Scope         string `json:"scope,omitempty"`
	Nonce         string `json:"nonce,omitempty"`
	Service       string `json:"service,omitempty"`
}

// Codec signs and verifies tokens with a single HS256 secret. It is
// stateless and safe for concurrent use.
type Codec struct {
	secret []byte
	issuer string
}

// NewCodec builds a codec from the shared signing secret and issuer URL.
func NewCodec(secret, issuer string) *Codec {
	return &Codec{secret: []byte(secret), issuer: issuer}
}

// Issuer returns the iss value stamped on every signed token.
func (c *Codec) Issuer() string {
	return c.issuer
}

// Sign stamps issuer, issue time, and expiry on claims and returns the
// serialized compact JWT.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims.Issuer = c.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.Expiry = jwt.NewNumericDate(now.Add(ttl))

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: c.secret},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("build signer: %w", err)
	}

	raw, err := jwt.Signed(signer).Claims(claims).Serialize()
	if err != nil {
		return "", fmt.Errorf("serialize token: %w", err)
	}
	return raw, nil
}

// Verify checks signature, expiry, issuer, the typ claim, and, when
// audience is non-empty, the aud claim. An OAuth access token presented
// where a session token is expected fails here on the typ check.
func (c *Codec) Verify(raw, tokenType, audience string) (Claims, error) {
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, ErrInvalid
	}

	var claims Claims
	if err := parsed.Claims(c.secret, &claims); err != nil {
		return Claims{}, ErrInvalid
	}

	expected := jwt.Expected{Issuer: c.issuer, Time: time.Now().UTC()}
	if audience != "" {
		expected.AnyAudience = jwt.Audience{audience}
	}
	if err := claims.Validate(expected); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}

	if claims.Type != tokenType {
		return Claims{}, ErrInvalid
	}
	return claims, nil
}
