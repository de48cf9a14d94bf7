package session

import (
	"fmt"
	"strings"
)

// AuthMode selects how a session's credential is obtained.
type AuthMode string

const (
	// ModeRefreshToken uses the owner's stored token, refreshing it with its
	// own refresh token when needed. The pre-provisioned refresh token only
	// seeds the default owner.
	ModeRefreshToken AuthMode = "refresh_token"

	// ModePassword logs in with username, password and security token.
	ModePassword AuthMode = "password"

	// ModeClientCredentials uses the connected app's client credentials.
	ModeClientCredentials AuthMode = "client_credentials"

	// ModeAccessToken passes a caller-supplied access token through.
	ModeAccessToken AuthMode = "access_token"

	// ModeJWTBearer signs a JWT assertion for the owner.
	ModeJWTBearer AuthMode = "jwt_bearer"
)

// AuthModes lists every supported mode.
var AuthModes = []AuthMode{ModeRefreshToken, ModePassword, ModeClientCredentials, ModeAccessToken, ModeJWTBearer}

// ParseAuthMode parses a mode name. An empty name selects ModeRefreshToken.
func ParseAuthMode(name string) (AuthMode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ModeRefreshToken, nil
	}
	for _, mode := range AuthModes {
		if string(mode) == name {
			return mode, nil
		}
	}
	return "", fmt.Errorf("unknown auth mode %q", name)
}

// Key addresses one pool slot.
type Key struct {
	OwnerID string
	Mode    AuthMode
}

// String returns "owner|mode".
func (k Key) String() string {
	return k.OwnerID + "|" + string(k.Mode)
}

// AuthParams carries mode-specific credentials. Zero fields fall back to the
// pool's configured defaults.
type AuthParams struct {
	Username      string
	Password      string
	SecurityToken string
	RefreshToken  string
	AccessToken   string
	InstanceURL   string

	// Subject is the username asserted in jwt_bearer mode. Defaults to
	// Username, then the owner id.
	Subject string
}

// merge returns p with empty fields filled from defaults.
func (p AuthParams) merge(defaults AuthParams) AuthParams {
	fill := func(v *string, d string) {
		if *v == "" {
			*v = d
		}
	}
	fill(&p.Username, defaults.Username)
	fill(&p.Password, defaults.Password)
	fill(&p.SecurityToken, defaults.SecurityToken)
	fill(&p.RefreshToken, defaults.RefreshToken)
	fill(&p.AccessToken, defaults.AccessToken)
	fill(&p.InstanceURL, defaults.InstanceURL)
	fill(&p.Subject, defaults.Subject)
	return p
}
