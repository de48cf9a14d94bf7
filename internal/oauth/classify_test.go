package oauth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"testing"

	"golang.org/x/oauth2"
)

func TestIsExpiredSession(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed session expired", NewError(KindSessionExpired, "session expired", nil), true},
		{"api 401", &APIError{StatusCode: http.StatusUnauthorized, Message: "nope"}, true},
		{"invalid session id code", &APIError{StatusCode: http.StatusBadRequest, ErrorCode: "INVALID_SESSION_ID"}, true},
		{"wrapped api 401", fmt.Errorf("query failed: %w", &APIError{StatusCode: 401}), true},
		{"message text", errors.New("Session expired or invalid"), true},
		{"token expired text", errors.New("access token expired"), true},
		{"missing credentials never expired", NewError(KindMissingCredentials, "session expired", nil), false},
		{"authorization failed never expired", NewError(KindOAuthAuthorizationFailed, "token expired", nil), false},
		{"refresh failed never expired", &Error{Kind: KindTokenRefreshFailed, Code: "invalid_grant", Message: "expired access/refresh token"}, false},
		{"api 500", &APIError{StatusCode: 500}, false},
		{"unrelated", errors.New("MALFORMED_QUERY"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsExpiredSession(tt.err); got != tt.want {
				t.Errorf("IsExpiredSession(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsOAuthError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"authorization failed", NewError(KindOAuthAuthorizationFailed, "denied", nil), true},
		{"refresh failed", NewError(KindTokenRefreshFailed, "failed", nil), true},
		{"retrieve invalid_grant", &oauth2.RetrieveError{ErrorCode: "invalid_grant"}, true},
		{"api invalid_client", &APIError{StatusCode: 400, ErrorCode: "invalid_client"}, true},
		{"text oauth", errors.New("OAuth handshake failed"), true},
		{"text access_denied", errors.New("error=access_denied"), true},
		{"missing credentials", NewError(KindMissingCredentials, "no oauth client id", nil), false},
		{"network", NewError(KindNetwork, "dial", nil), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsOAuthError(tt.err); got != tt.want {
				t.Errorf("IsOAuthError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var _ net.Error = timeoutError{}

func TestIsRetryableTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network kind", NewError(KindNetwork, "dial", nil), true},
		{"api 503", &APIError{StatusCode: 503}, true},
		{"api 429", &APIError{StatusCode: 429}, true},
		{"api 400", &APIError{StatusCode: 400, ErrorCode: "INVALID_FIELD"}, false},
		{"api 401", &APIError{StatusCode: 401}, false},
		{"net error", &net.OpError{Op: "dial", Err: timeoutError{}}, true},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), true},
		{"conn reset", fmt.Errorf("read: %w", syscall.ECONNRESET), true},
		{"text timeout", errors.New("ETIMEDOUT while reading"), true},
		{"validation text", errors.New("validation failed: timeout must be positive"), false},
		{"session expired kind", NewError(KindSessionExpired, "", nil), false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryableTransient(tt.err); got != tt.want {
				t.Errorf("IsRetryableTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_Priority(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, ClassFatal},
		{"401 is expired session first", &APIError{StatusCode: 401, ErrorCode: "invalid_grant"}, ClassExpiredSession},
		{"oauth before transient", errors.New("oauth timeout"), ClassOAuth},
		{"transient", &APIError{StatusCode: 502}, ClassTransient},
		{"missing credentials fatal", NewError(KindMissingCredentials, "", nil), ClassFatal},
		{"authorization failed is oauth", NewError(KindOAuthAuthorizationFailed, "", nil), ClassOAuth},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
