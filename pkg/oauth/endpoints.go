package oauth

import (
	"strings"
)

// DefaultLoginURL is the production Salesforce login host.
const DefaultLoginURL = "https://login.salesforce.com"

// Salesforce OAuth endpoint paths, relative to the login or instance URL.
const (
	AuthorizePath = "/services/oauth2/authorize"
	TokenPath     = "/services/oauth2/token"
	RevokePath    = "/services/oauth2/revoke"
	UserInfoPath  = "/services/oauth2/userinfo"
)

// Endpoints holds the absolute OAuth endpoint URLs for one login host.
type Endpoints struct {
	Issuer    string
	Authorize string
	Token     string
	Revoke    string
	UserInfo  string
}

// NormalizeBaseURL trims whitespace and trailing slashes and defaults the
// scheme to https.
func NormalizeBaseURL(raw string) string {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return ""
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "https://" + base
	}
	return base
}

// EndpointsFor derives the OAuth endpoints from a login URL such as
// https://login.salesforce.com or https://test.salesforce.com.
// An empty login URL selects DefaultLoginURL.
func EndpointsFor(loginURL string) Endpoints {
	base := NormalizeBaseURL(loginURL)
	if base == "" {
		base = DefaultLoginURL
	}
	return Endpoints{
		Issuer:    base,
		Authorize: base + AuthorizePath,
		Token:     base + TokenPath,
		Revoke:    base + RevokePath,
		UserInfo:  base + UserInfoPath,
	}
}
