package service

import "fmt"

// DiscoveryService builds the OIDC discovery document. The document is
// pure configuration; nothing here touches the store.
type DiscoveryService struct {
	issuer string
}

func NewDiscoveryService(issuer string) *DiscoveryService {
	return &DiscoveryService{issuer: issuer}
}

// OpenIDConfiguration matches the OIDC discovery document.
type OpenIDConfiguration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	RevocationEndpoint                string   `json:"revocation_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
}

// Document returns the discovery metadata derived from configuration.
func (s *DiscoveryService) Document() OpenIDConfiguration {
	return OpenIDConfiguration{
		Issuer:                            s.issuer,
		AuthorizationEndpoint:             fmt.Sprintf("%s/oauth/authorize", s.issuer),
		TokenEndpoint:                     fmt.Sprintf("%s/oauth/token", s.issuer),
		UserinfoEndpoint:                  fmt.Sprintf("%s/oauth/userinfo", s.issuer),
		RevocationEndpoint:                fmt.Sprintf("%s/oauth/revoke", s.issuer),
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported:     []string{"S256"},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{"HS256"},
		ScopesSupported:                   []string{"openid", "profile", "email"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_post"},
		ClaimsSupported:                   []string{"sub", "email", "name", "email_verified"},
	}
}
