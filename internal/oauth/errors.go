package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pkgstrings "github.com/the-answerai/mcp-server-salesforce/pkg/strings"
)

// ErrStateNotFound is returned when a state value was never issued or has
// already been consumed.
var ErrStateNotFound = errors.New("oauth state not found")

// ErrStateExpired is returned when a state value was issued but is older than
// the state timeout. The entry is removed either way.
var ErrStateExpired = errors.New("oauth state expired")

// Kind classifies failures of the credential lifecycle.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidState
	KindStateExpired
	KindOAuthAuthorizationFailed
	KindCodeExchangeFailed
	KindTokenRefreshFailed
	KindSessionExpired
	KindMissingCredentials
	KindNetwork
	KindIdentityResolutionFailed
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidState:
		return "InvalidStateParameter"
	case KindStateExpired:
		return "StateExpired"
	case KindOAuthAuthorizationFailed:
		return "OAuthAuthorizationFailed"
	case KindCodeExchangeFailed:
		return "CodeExchangeFailed"
	case KindTokenRefreshFailed:
		return "TokenRefreshFailed"
	case KindSessionExpired:
		return "SessionExpired"
	case KindMissingCredentials:
		return "MissingCredentials"
	case KindNetwork:
		return "NetworkError"
	case KindIdentityResolutionFailed:
		return "IdentityResolutionFailed"
	default:
		return "Unknown"
	}
}

// Code returns a stable machine-readable code for the kind.
func (k Kind) Code() string {
	switch k {
	case KindInvalidState:
		return "invalid_state_parameter"
	case KindStateExpired:
		return "state_expired"
	case KindOAuthAuthorizationFailed:
		return "oauth_authorization_failed"
	case KindCodeExchangeFailed:
		return "code_exchange_failed"
	case KindTokenRefreshFailed:
		return "token_refresh_failed"
	case KindSessionExpired:
		return "session_expired"
	case KindMissingCredentials:
		return "missing_credentials"
	case KindNetwork:
		return "network_error"
	case KindIdentityResolutionFailed:
		return "identity_resolution_failed"
	default:
		return "unknown_error"
	}
}

// RequiresReauth reports whether an error of this kind leaves the owner
// without a usable credential.
func (k Kind) RequiresReauth() bool {
	switch k {
	case KindStateExpired, KindOAuthAuthorizationFailed, KindCodeExchangeFailed,
		KindTokenRefreshFailed, KindSessionExpired, KindMissingCredentials:
		return true
	default:
		return false
	}
}

// Error is a classified failure of the credential lifecycle.
type Error struct {
	Kind Kind

	// Code is the provider error code (e.g. "invalid_grant"), if any.
	Code string

	// StatusCode is the HTTP status of the failing response, if any.
	StatusCode int

	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Code())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " (%s)", e.Code)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error of the given kind.
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// APIError is a failed response from the Salesforce REST API.
type APIError struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("salesforce API error %d %s: %s", e.StatusCode, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("salesforce API error %d: %s", e.StatusCode, e.Message)
}

// restError is one element of the REST error body,
// e.g. [{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}].
type restError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// NewAPIError builds an APIError from a non-2xx response body. Both the REST
// array form and the OAuth {"error","error_description"} form are understood.
func NewAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var list []restError
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		apiErr.ErrorCode = list[0].ErrorCode
		apiErr.Message = list[0].Message
		return apiErr
	}

	var oauthBody struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &oauthBody); err == nil && oauthBody.Error != "" {
		apiErr.ErrorCode = oauthBody.Error
		apiErr.Message = oauthBody.ErrorDescription
		return apiErr
	}

	apiErr.Message = pkgstrings.Truncate(string(body), pkgstrings.MaxErrorBodyLen)
	return apiErr
}

// ReauthRequiredError wraps an error whose credential is unusable with
// guidance to restart the authorization flow.
type ReauthRequiredError struct {
	OriginalError error
	AuthURL       string
	Message       string
}

// Error implements the error interface.
func (e *ReauthRequiredError) Error() string {
	msg := e.OriginalError.Error() + "\n" + e.Message
	if e.AuthURL != "" {
		msg += "\nPlease authenticate at: " + e.AuthURL
	}
	return msg
}

// Unwrap returns the original error for error chain inspection.
func (e *ReauthRequiredError) Unwrap() error {
	return e.OriginalError
}

const reauthGuidance = "Re-authentication required: restart the Salesforce authorization flow."

// WithReauthGuidance annotates err with re-authentication guidance when it
// means the owner's credential is unusable. Other errors are returned as is.
func WithReauthGuidance(err error) error {
	return WithReauthURL(err, "")
}

// WithReauthURL is WithReauthGuidance with an authorization URL to visit.
func WithReauthURL(err error, authURL string) error {
	if err == nil {
		return nil
	}
	var already *ReauthRequiredError
	if errors.As(err, &already) {
		return err
	}
	if !RequiresReauth(err) {
		return err
	}
	return &ReauthRequiredError{
		OriginalError: err,
		AuthURL:       authURL,
		Message:       reauthGuidance,
	}
}

// RequiresReauth reports whether err leaves the owner without a usable credential.
func RequiresReauth(err error) bool {
	if err == nil {
		return false
	}
	if KindOf(err).RequiresReauth() {
		return true
	}
	return IsExpiredSession(err)
}
