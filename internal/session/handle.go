package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
	pkgoauth "github.com/the-answerai/mcp-server-salesforce/pkg/oauth"
)

// DefaultAPIVersion is the REST API version used for relative data paths.
const DefaultAPIVersion = "v60.0"

// ErrRefreshUnsupported is returned by Refresh when the handle has no way to
// mint a new access token.
var ErrRefreshUnsupported = errors.New("session refresh is not supported")

// Handle is a live, authenticated connection to one Salesforce org.
//
// Do sends req with the session's bearer token. Relative request URLs are
// resolved against Endpoint. Non-2xx responses are returned as
// *oauth.APIError with the body consumed, so callers can hand the error
// straight to the classifier.
type Handle interface {
	Endpoint() string
	AccessToken() string
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
	Refresh(ctx context.Context) error
}

// RefreshFunc mints a new token record for a handle.
type RefreshFunc func(ctx context.Context) (*oauth.TokenRecord, error)

// RESTHandle is the Handle implementation for the Salesforce REST API.
type RESTHandle struct {
	mu       sync.RWMutex
	endpoint string
	token    oauth.RedactedToken
	record   oauth.TokenRecord

	httpClient *http.Client
	refresh    RefreshFunc
}

// NewRESTHandle creates a handle for record. refresh may be nil.
func NewRESTHandle(record oauth.TokenRecord, httpClient *http.Client, refresh RefreshFunc) *RESTHandle {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: oauth.DefaultHTTPTimeout}
	}
	return &RESTHandle{
		endpoint:   pkgoauth.NormalizeBaseURL(record.InstanceURL),
		token:      oauth.NewRedactedToken(record.AccessToken),
		record:     record,
		httpClient: httpClient,
		refresh:    refresh,
	}
}

// Endpoint returns the instance URL.
func (h *RESTHandle) Endpoint() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.endpoint
}

// AccessToken returns the current bearer token.
func (h *RESTHandle) AccessToken() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token.Value()
}

// Record returns a copy of the token record behind the handle.
func (h *RESTHandle) Record() oauth.TokenRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.record
}

// Do sends req with the bearer token.
func (h *RESTHandle) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	h.mu.RLock()
	endpoint, token := h.endpoint, h.token.Value()
	h.mu.RUnlock()

	out := req.Clone(ctx)
	if !out.URL.IsAbs() {
		base, err := url.Parse(endpoint)
		if err != nil || endpoint == "" {
			return nil, fmt.Errorf("session has no usable endpoint: %q", endpoint)
		}
		out.URL = base.ResolveReference(out.URL)
		out.Host = ""
	}
	out.Header.Set("Authorization", "Bearer "+token)
	if out.Header.Get("Accept") == "" {
		out.Header.Set("Accept", "application/json")
	}

	resp, err := h.httpClient.Do(out)
	if err != nil {
		return nil, oauth.NewError(oauth.KindNetwork, "salesforce request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return nil, oauth.NewAPIError(resp.StatusCode, body)
	}
	return resp, nil
}

// Refresh replaces the handle's token using its refresh hook.
func (h *RESTHandle) Refresh(ctx context.Context) error {
	if h.refresh == nil {
		return ErrRefreshUnsupported
	}
	record, err := h.refresh(ctx)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.record = *record
	h.token = oauth.NewRedactedToken(record.AccessToken)
	if base := pkgoauth.NormalizeBaseURL(record.InstanceURL); base != "" {
		h.endpoint = base
	}
	return nil
}

// DataPath expands a path relative to the REST data API, e.g. "sobjects"
// becomes "/services/data/v60.0/sobjects". Paths already under /services/
// are returned unchanged.
func DataPath(path string) string {
	if strings.HasPrefix(path, "/services/") {
		return path
	}
	return "/services/data/" + DefaultAPIVersion + "/" + strings.TrimPrefix(path, "/")
}

// DoJSON sends a JSON request through h and decodes the response into out.
// body and out may be nil.
func DoJSON(ctx context.Context, h Handle, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, DataPath(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
