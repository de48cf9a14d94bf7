package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

func TestDataPath(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"sobjects", "/services/data/v60.0/sobjects"},
		{"/query?q=SELECT+Id+FROM+Account", "/services/data/v60.0/query?q=SELECT+Id+FROM+Account"},
		{"/services/oauth2/userinfo", "/services/oauth2/userinfo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DataPath(tt.in), tt.in)
	}
}

func TestRESTHandle_DoSetsBearerAndResolvesPath(t *testing.T) {
	var gotAuth, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"totalSize": 1})
	}))
	defer server.Close()

	h := NewRESTHandle(oauth.TokenRecord{AccessToken: "00D!abc", InstanceURL: server.URL + "/"}, server.Client(), nil)

	var out struct {
		TotalSize int `json:"totalSize"`
	}
	require.NoError(t, DoJSON(context.Background(), h, http.MethodGet, "query", nil, &out))

	assert.Equal(t, "Bearer 00D!abc", gotAuth)
	assert.Equal(t, "/services/data/v60.0/query", gotPath)
	assert.Equal(t, 1, out.TotalSize)
}

func TestRESTHandle_DoReturnsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`[{"message":"Session expired or invalid","errorCode":"INVALID_SESSION_ID"}]`))
	}))
	defer server.Close()

	h := NewRESTHandle(oauth.TokenRecord{AccessToken: "stale", InstanceURL: server.URL}, server.Client(), nil)

	err := DoJSON(context.Background(), h, http.MethodGet, "sobjects", nil, nil)
	require.Error(t, err)

	var apiErr *oauth.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "INVALID_SESSION_ID", apiErr.ErrorCode)
	assert.True(t, oauth.IsExpiredSession(err))
}

func TestRESTHandle_DoNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	h := NewRESTHandle(oauth.TokenRecord{AccessToken: "t", InstanceURL: url}, nil, nil)

	err := DoJSON(context.Background(), h, http.MethodGet, "sobjects", nil, nil)
	require.Error(t, err)
	assert.True(t, oauth.IsKind(err, oauth.KindNetwork))
	assert.True(t, oauth.IsRetryableTransient(err))
}

func TestRESTHandle_DoJSONSendsBody(t *testing.T) {
	var got map[string]string
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	h := NewRESTHandle(oauth.TokenRecord{AccessToken: "t", InstanceURL: server.URL}, server.Client(), nil)

	var out map[string]any
	err := DoJSON(context.Background(), h, http.MethodPatch, "sobjects/Account/001", map[string]string{"Name": "Acme"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "Acme", got["Name"])
	assert.Nil(t, out)
}

func TestRESTHandle_Refresh(t *testing.T) {
	h := NewRESTHandle(oauth.TokenRecord{AccessToken: "old", InstanceURL: "https://a.my.salesforce.com"}, nil,
		func(context.Context) (*oauth.TokenRecord, error) {
			return &oauth.TokenRecord{AccessToken: "new", InstanceURL: "https://b.my.salesforce.com"}, nil
		})

	require.NoError(t, h.Refresh(context.Background()))
	assert.Equal(t, "new", h.AccessToken())
	assert.Equal(t, "https://b.my.salesforce.com", h.Endpoint())
	assert.Equal(t, "new", h.Record().AccessToken)

	failing := NewRESTHandle(oauth.TokenRecord{AccessToken: "old"}, nil,
		func(context.Context) (*oauth.TokenRecord, error) { return nil, errors.New("refresh failed") })
	assert.Error(t, failing.Refresh(context.Background()))
	assert.Equal(t, "old", failing.AccessToken())
}
