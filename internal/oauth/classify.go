package oauth

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"golang.org/x/oauth2"
)

// Class is the retry-relevant category of a failure.
type Class int

const (
	ClassFatal Class = iota
	ClassExpiredSession
	ClassOAuth
	ClassTransient
)

// String returns the class name.
func (c Class) String() string {
	switch c {
	case ClassExpiredSession:
		return "expired_session"
	case ClassOAuth:
		return "oauth"
	case ClassTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// Classify maps err onto a Class. Predicates are checked in priority order:
// expired session, then OAuth error, then transient.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassFatal
	case IsExpiredSession(err):
		return ClassExpiredSession
	case IsOAuthError(err):
		return ClassOAuth
	case IsRetryableTransient(err):
		return ClassTransient
	default:
		return ClassFatal
	}
}

// Salesforce REST error codes meaning the session is no longer valid.
var sessionInvalidCodes = map[string]bool{
	"INVALID_SESSION_ID":  true,
	"INVALID_AUTH_HEADER": true,
	"invalid_token":       true,
}

var expiredSessionPatterns = []string{
	"session expired",
	"session has expired",
	"invalid session",
	"invalid_session_id",
	"expired access/refresh token",
	"access token expired",
	"token expired",
	"token has expired",
	"authentication expired",
}

// IsExpiredSession reports whether err means the session token is stale and a
// fresh session may succeed.
func IsExpiredSession(err error) bool {
	if err == nil {
		return false
	}

	var oe *Error
	if errors.As(err, &oe) {
		// Typed lifecycle errors are authoritative.
		return oe.Kind == KindSessionExpired
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized || sessionInvalidCodes[apiErr.ErrorCode] {
			return true
		}
	}

	return containsAny(err.Error(), expiredSessionPatterns)
}

var oauthErrorCodes = map[string]bool{
	"invalid_grant":  true,
	"invalid_client": true,
	"access_denied":  true,
}

// IsOAuthError reports whether err is a provider-side OAuth failure.
func IsOAuthError(err error) bool {
	if err == nil {
		return false
	}

	var oe *Error
	if errors.As(err, &oe) {
		switch oe.Kind {
		case KindOAuthAuthorizationFailed, KindCodeExchangeFailed, KindTokenRefreshFailed:
			return true
		}
		return oauthErrorCodes[oe.Code]
	}

	var re *oauth2.RetrieveError
	if errors.As(err, &re) && oauthErrorCodes[re.ErrorCode] {
		return true
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) && oauthErrorCodes[apiErr.ErrorCode] {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "oauth") {
		return true
	}
	for code := range oauthErrorCodes {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}

var transientPatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"timeout",
	"etimedout",
	"econnreset",
	"econnrefused",
	"server_unavailable",
	"temporarily unavailable",
}

// IsRetryableTransient reports whether err is a network-level failure, a
// timeout or a 5xx/429 response. Validation and authentication failures are
// never transient.
func IsRetryableTransient(err error) bool {
	if err == nil {
		return false
	}

	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind == KindNetwork
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "validation") || strings.Contains(msg, "unauthorized") {
		return false
	}
	return containsAny(msg, transientPatterns)
}

func containsAny(s string, patterns []string) bool {
	lower := strings.ToLower(s)
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
