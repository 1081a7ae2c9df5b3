package domain

import "time"

// OAuthClient is a registered application. Rows are administrative: runtime
// flows only read them. ClientSecretHash is a bcrypt hash; the plaintext
// secret is shown once at registration and never stored.
type OAuthClient struct {
	ID               int64
	ClientID         string
	ClientSecretHash string
	Name             string
	LogoURL          string
	RedirectURIs     []string
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AllowsRedirectURI reports whether uri is one of the client's registered
// redirect URIs. Comparison is exact; no prefix or wildcard matching.
func (c OAuthClient) AllowsRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}
