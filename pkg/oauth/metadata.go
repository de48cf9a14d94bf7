package oauth

// Metadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414),
// extended with the deployment's client_id so OAuth-aware callers can start
// a flow without separate registration.
type Metadata struct {
	Issuer                        string   `json:"issuer"`
	AuthorizationEndpoint         string   `json:"authorization_endpoint"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint,omitempty"`
	UserinfoEndpoint              string   `json:"userinfo_endpoint,omitempty"`
	ScopesSupported               []string `json:"scopes_supported,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported,omitempty"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported,omitempty"`
	ClientID                      string   `json:"client_id,omitempty"`
}

// Grant types advertised in the metadata document.
var supportedGrantTypes = []string{
	"authorization_code",
	"refresh_token",
	"client_credentials",
	"password",
	"urn:ietf:params:oauth:grant-type:jwt-bearer",
}

// NewMetadata builds the discovery document for the given endpoints.
func NewMetadata(endpoints Endpoints, clientID string, scopes []string) *Metadata {
	return &Metadata{
		Issuer:                        endpoints.Issuer,
		AuthorizationEndpoint:         endpoints.Authorize,
		TokenEndpoint:                 endpoints.Token,
		RevocationEndpoint:            endpoints.Revoke,
		UserinfoEndpoint:              endpoints.UserInfo,
		ScopesSupported:               append([]string(nil), scopes...),
		ResponseTypesSupported:        []string{"code", "token"},
		GrantTypesSupported:           append([]string(nil), supportedGrantTypes...),
		CodeChallengeMethodsSupported: []string{PKCEMethodS256},
		ClientID:                      clientID,
	}
}

// SupportsPKCE returns true if the server advertises S256.
func (m *Metadata) SupportsPKCE() bool {
	for _, method := range m.CodeChallengeMethodsSupported {
		if method == PKCEMethodS256 {
			return true
		}
	}
	return false
}
