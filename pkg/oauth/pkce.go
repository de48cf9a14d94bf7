package oauth

import (
	"golang.org/x/oauth2"
)

// PKCEMethodS256 is the only code challenge method this server issues.
const PKCEMethodS256 = "S256"

// PKCEChallenge contains PKCE code verifier and challenge for OAuth 2.0.
type PKCEChallenge struct {
	// CodeVerifier is the random string used to generate the challenge.
	// It stays on the server and is sent only with the token request.
	CodeVerifier string

	// CodeChallenge is the S256 hash of the verifier, base64url-encoded.
	CodeChallenge string

	// CodeChallengeMethod is always "S256".
	CodeChallengeMethod string
}

// GeneratePKCE generates a new PKCE code verifier and S256 challenge.
// The verifier carries 256 bits of entropy.
func GeneratePKCE() (*PKCEChallenge, error) {
	verifier := oauth2.GenerateVerifier()
	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       oauth2.S256ChallengeFromVerifier(verifier),
		CodeChallengeMethod: PKCEMethodS256,
	}, nil
}
