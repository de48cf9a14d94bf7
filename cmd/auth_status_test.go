package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/stretchr/testify/assert"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

func init() {
	text.DisableColors()
}

func TestPrintTokenStatus(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		status   oauth.TokenStatus
		contains []string
		absent   []string
	}{
		{
			name:     "not authenticated",
			status:   oauth.TokenStatus{OwnerID: "alice"},
			contains: []string{"Owner:     alice", "Not authenticated"},
			absent:   []string{"Instance:", "Refresh:"},
		},
		{
			name: "valid with refresh",
			status: oauth.TokenStatus{
				OwnerID: "alice", Present: true, CanRefresh: true,
				InstanceURL: "https://na1.salesforce.com", ExpiresAt: now.Add(90 * time.Second),
			},
			contains: []string{"Authenticated", "https://na1.salesforce.com", "(in 1m30s)", "Refresh:   Available"},
		},
		{
			name:     "expired without refresh",
			status:   oauth.TokenStatus{OwnerID: "bob", Present: true, Expired: true, ExpiresAt: now.Add(-time.Minute)},
			contains: []string{"Status:    Expired", "(expired)", "Not available"},
		},
		{
			name:     "no expiry",
			status:   oauth.TokenStatus{OwnerID: "carol", Present: true, CanRefresh: true},
			contains: []string{"unknown (session timeout set by the org)"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printTokenStatus(&buf, tt.status, now)
			for _, want := range tt.contains {
				assert.Contains(t, buf.String(), want)
			}
			for _, unwanted := range tt.absent {
				assert.NotContains(t, buf.String(), unwanted)
			}
		})
	}
}

func TestRenderTokenTable(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	renderTokenTable(&buf, nil, now)
	assert.Contains(t, buf.String(), "No stored credentials")

	buf.Reset()
	renderTokenTable(&buf, []oauth.TokenStatus{
		{OwnerID: "alice@example.com", Present: true, CanRefresh: true, InstanceURL: "https://na1.salesforce.com"},
		{OwnerID: "bob@example.com", Present: true, Expired: true, CanRefresh: true},
	}, now)

	out := buf.String()
	assert.Contains(t, out, "OWNER")
	assert.Contains(t, out, "alice@example.com")
	assert.Contains(t, out, "Expired (will refresh)")
	assert.Equal(t, 2, strings.Count(out, "yes"))
}
