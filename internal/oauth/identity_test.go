package oauth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityResolver_IDURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/id/00Dxx/005xx", r.URL.Path)
		assert.Equal(t, "Bearer 00D!access", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":         "005xx",
			"organization_id": "00Dxx",
			"username":        "jane@acme.example",
			"email":           "jane@example.com",
			"display_name":    "Jane Doe",
		})
	}))
	defer srv.Close()

	resolver := NewIdentityResolver(srv.Client())
	identity, err := resolver.Resolve(context.Background(), TokenRecord{
		AccessToken: "00D!access",
		IdentityURL: srv.URL + "/id/00Dxx/005xx",
	})
	require.NoError(t, err)

	assert.Equal(t, UserIdentity{
		SubjectID:      "005xx",
		Username:       "jane@acme.example",
		Email:          "jane@example.com",
		OrganizationID: "00Dxx",
		DisplayName:    "Jane Doe",
	}, *identity)
}

func TestIdentityResolver_UserInfoFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/services/oauth2/userinfo", r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"sub":                "https://login.salesforce.com/id/00Dxx/005xx",
			"preferred_username": "jane@acme.example",
			"name":               "Jane Doe",
		})
	}))
	defer srv.Close()

	identity, err := NewIdentityResolver(srv.Client()).Resolve(context.Background(), TokenRecord{
		AccessToken: "tok",
		InstanceURL: srv.URL + "/",
	})
	require.NoError(t, err)

	assert.Equal(t, "jane@acme.example", identity.StableKey())
	assert.Equal(t, "Jane Doe", identity.DisplayName)
}

func TestIdentityResolver_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, []map[string]string{{
			"message":   "Session expired or invalid",
			"errorCode": "INVALID_SESSION_ID",
		}})
	}))
	defer srv.Close()

	_, err := NewIdentityResolver(srv.Client()).Resolve(context.Background(), TokenRecord{
		AccessToken: "tok",
		InstanceURL: srv.URL,
	})

	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, KindIdentityResolutionFailed, oe.Kind)
	assert.Equal(t, http.StatusUnauthorized, oe.StatusCode)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "INVALID_SESSION_ID", apiErr.ErrorCode)
}

func TestIdentityResolver_NoEndpoint(t *testing.T) {
	_, err := NewIdentityResolver(nil).Resolve(context.Background(), TokenRecord{AccessToken: "tok"})
	assert.True(t, IsKind(err, KindIdentityResolutionFailed))
}

func TestUserIdentity_StableKey(t *testing.T) {
	tests := []struct {
		name     string
		identity UserIdentity
		want     string
	}{
		{"email first", UserIdentity{SubjectID: "005", Username: "u", Email: "e@x"}, "e@x"},
		{"username next", UserIdentity{SubjectID: "005", Username: "u"}, "u"},
		{"subject last", UserIdentity{SubjectID: "005"}, "005"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.identity.StableKey())
		})
	}
}
