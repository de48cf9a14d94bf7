package auth

import "time"

// StatusResourceURI is the URI of the authorization status resource.
const StatusResourceURI = "auth://status"

// Owner states reported in OwnerStatus.Status.
const (
	StatusConnected    = "connected"
	StatusRefreshable  = "refreshable"
	StatusAuthRequired = "auth_required"
)

// StatusResponse is the document returned by the auth://status resource.
type StatusResponse struct {
	// Issuer is the Salesforce login host tokens are issued by.
	Issuer string `json:"issuer"`

	Owners []OwnerStatus `json:"owners"`
}

// OwnerStatus describes the stored credential of one owner.
type OwnerStatus struct {
	Owner       string    `json:"owner"`
	Status      string    `json:"status"`
	InstanceURL string    `json:"instance_url,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitzero"`

	// AuthChallenge is present when Status == StatusAuthRequired
	AuthChallenge *ChallengeInfo `json:"auth_challenge,omitempty"`
}

// ChallengeInfo tells a client how to obtain a new credential.
type ChallengeInfo struct {
	Issuer string `json:"issuer"`

	// AuthToolName is the tool to call for browser-based auth
	AuthToolName string `json:"auth_tool_name"`
}
