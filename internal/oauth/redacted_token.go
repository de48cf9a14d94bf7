package oauth

// RedactedToken wraps a token string so it cannot leak through fmt, slog or
// encoding/json. Use Value only when building an Authorization header.
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token value. Never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

// String returns "[REDACTED]", or "[EMPTY]" for an empty token so logs still
// show whether a token was present.
func (t RedactedToken) String() string {
	if t.value == "" {
		return "[EMPTY]"
	}
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (t RedactedToken) GoString() string {
	return "oauth.RedactedToken{" + t.String() + "}"
}

// IsEmpty returns true if the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// MarshalText implements encoding.TextMarshaler.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// MarshalJSON implements json.Marshaler.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}
