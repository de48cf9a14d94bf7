package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	pkgoauth "github.com/the-answerai/mcp-server-salesforce/pkg/oauth"
)

// IdentityFetcher resolves the user behind an access token.
type IdentityFetcher interface {
	Resolve(ctx context.Context, record TokenRecord) (*UserIdentity, error)
}

// IdentityResolver queries the Salesforce identity service.
type IdentityResolver struct {
	httpClient *http.Client
}

// NewIdentityResolver creates a resolver. A nil client uses a default with
// DefaultHTTPTimeout.
func NewIdentityResolver(httpClient *http.Client) *IdentityResolver {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &IdentityResolver{httpClient: httpClient}
}

// identityResponse covers both the "id" URL document and the OpenID userinfo
// document, which name the same attributes differently.
type identityResponse struct {
	Sub               string `json:"sub"`
	UserID            string `json:"user_id"`
	OrganizationID    string `json:"organization_id"`
	Username          string `json:"username"`
	PreferredUsername string `json:"preferred_username"`
	Email             string `json:"email"`
	DisplayName       string `json:"display_name"`
	Name              string `json:"name"`
}

func (r identityResponse) identity() UserIdentity {
	id := UserIdentity{
		SubjectID:      firstNonEmpty(r.UserID, r.Sub),
		Username:       firstNonEmpty(r.Username, r.PreferredUsername),
		Email:          r.Email,
		OrganizationID: r.OrganizationID,
		DisplayName:    firstNonEmpty(r.DisplayName, r.Name),
	}
	return id
}

// IdentityURL returns the URL Resolve will query for record: the token's
// "id" URL when present, otherwise the instance userinfo endpoint.
func IdentityURL(record TokenRecord) string {
	if record.IdentityURL != "" {
		return record.IdentityURL
	}
	if base := pkgoauth.NormalizeBaseURL(record.InstanceURL); base != "" {
		return base + pkgoauth.UserInfoPath
	}
	return ""
}

// Resolve fetches the identity for record's access token.
func (r *IdentityResolver) Resolve(ctx context.Context, record TokenRecord) (*UserIdentity, error) {
	endpoint := IdentityURL(record)
	if endpoint == "" {
		return nil, NewError(KindIdentityResolutionFailed, "token has neither an identity URL nor an instance URL", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, NewError(KindIdentityResolutionFailed, "failed to create identity request", err)
	}
	req.Header.Set("Authorization", "Bearer "+record.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, NewError(KindNetwork, "identity request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, NewError(KindIdentityResolutionFailed, "failed to read identity response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			Kind:       KindIdentityResolutionFailed,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("identity endpoint returned status %d", resp.StatusCode),
			Err:        NewAPIError(resp.StatusCode, body),
		}
	}

	var raw identityResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, NewError(KindIdentityResolutionFailed, "failed to parse identity response", err)
	}

	identity := raw.identity()
	if identity.StableKey() == "" {
		return nil, NewError(KindIdentityResolutionFailed, "identity response carries no usable user attribute", nil)
	}
	return &identity, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
