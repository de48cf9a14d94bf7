package oauth

import (
	"fmt"
	"time"
)

// DefaultTokenType is used when the provider omits token_type.
const DefaultTokenType = "Bearer"

// TokenRecord is the credential held for one owner.
//
// Records are values: the store keeps its own copy and hands out copies, and a
// refresh produces a new record rather than updating fields in place.
type TokenRecord struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	InstanceURL  string    `json:"instance_url"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	OwnerID      string    `json:"owner_id"`

	// IdentityURL is the Salesforce "id" URL returned with the token.
	IdentityURL string    `json:"identity_url,omitempty"`
	IssuedAt    time.Time `json:"issued_at,omitzero"`
}

// CanRefresh reports whether the record can be silently renewed.
// A record without a refresh token requires a full re-authorization once it expires.
func (r TokenRecord) CanRefresh() bool {
	return r.RefreshToken != ""
}

// HasExpiry reports whether the provider supplied an expiry.
func (r TokenRecord) HasExpiry() bool {
	return !r.ExpiresAt.IsZero()
}

// WithOwner returns a copy of the record bound to ownerID.
func (r TokenRecord) WithOwner(ownerID string) TokenRecord {
	r.OwnerID = ownerID
	return r
}

// String never includes token values.
func (r TokenRecord) String() string {
	return fmt.Sprintf("TokenRecord{owner=%s instance=%s access_token=%s refresh_token=%s expires_at=%s}",
		r.OwnerID, r.InstanceURL,
		NewRedactedToken(r.AccessToken), NewRedactedToken(r.RefreshToken),
		r.ExpiresAt.Format(time.RFC3339))
}

// GoString mirrors String for %#v.
func (r TokenRecord) GoString() string {
	return r.String()
}

// PendingAuthorization binds an issued state value to the owner that started
// the flow. It exists from the moment an authorization URL is issued until the
// first matching callback or the state timeout, whichever comes first.
type PendingAuthorization struct {
	State     string    `json:"state"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`

	// CodeVerifier is the PKCE verifier. It never leaves the server.
	CodeVerifier string `json:"code_verifier,omitempty"`
}

// UserIdentity is the authenticated user as reported by the identity endpoint.
type UserIdentity struct {
	SubjectID      string `json:"subject_id"`
	Username       string `json:"username"`
	Email          string `json:"email"`
	OrganizationID string `json:"organization_id"`
	DisplayName    string `json:"display_name"`
}

// StableKey returns the token store key for this identity: email, falling back
// to username, falling back to the provider subject id.
func (u UserIdentity) StableKey() string {
	switch {
	case u.Email != "":
		return u.Email
	case u.Username != "":
		return u.Username
	default:
		return u.SubjectID
	}
}

// CallbackParams are the parameters delivered to the redirect URI, merged from
// the query string and the URL fragment.
type CallbackParams struct {
	State            string
	Code             string
	Error            string
	ErrorDescription string

	// Implicit flow fields.
	AccessToken  string
	RefreshToken string
	InstanceURL  string
	Scope        string
	TokenType    string
	IdentityURL  string
	IssuedAt     string
	ExpiresIn    string
}

// IsImplicit reports whether the callback carries a token directly.
func (p CallbackParams) IsImplicit() bool {
	return p.AccessToken != "" && p.Code == ""
}

// FlowResult is the outcome of a completed authorization flow.
type FlowResult struct {
	// OwnerID is the identity-derived key the record was stored under.
	OwnerID string

	// RequestedOwner is the owner hint bound to the state. It may be a
	// disposable placeholder.
	RequestedOwner string

	Identity UserIdentity
	Token    TokenRecord
}
