package oauth

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// Paths served by Handler.
const (
	CallbackPath          = "/oauth/callback"
	ImplicitPath          = "/oauth/implicit"
	AuthorizeRedirectPath = "/oauth/authorize"
	MetadataPath          = "/.well-known/oauth-authorization-server"
)

// maxCallbackFormBytes bounds a form-encoded callback body.
const maxCallbackFormBytes = 16 << 10

// Handler serves the browser-facing OAuth endpoints.
type Handler struct {
	flow *Flow
}

// NewHandler creates a new OAuth HTTP handler.
func NewHandler(flow *Flow) *Handler {
	return &Handler{flow: flow}
}

// Register mounts the handler's endpoints on mux. callback wraps the
// callback handler, e.g. with rate limiting; nil leaves it unwrapped.
func (h *Handler) Register(mux *http.ServeMux, callback func(http.Handler) http.Handler) {
	var cb http.Handler = http.HandlerFunc(h.HandleCallback)
	if callback != nil {
		cb = callback(cb)
	}
	mux.Handle("GET "+CallbackPath, cb)
	mux.Handle("POST "+CallbackPath, cb)
	mux.HandleFunc("GET "+ImplicitPath, h.HandleImplicit)
	mux.HandleFunc("GET "+AuthorizeRedirectPath, h.HandleAuthorize)
	mux.HandleFunc("GET "+MetadataPath, h.HandleMetadata)
}

// HandleCallback handles the redirect URI for the authorization code flow.
// It also accepts implicit tokens posted as a form by HandleImplicit, which
// keeps them out of URLs and access logs.
func (h *Handler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.RawQuery
	if r.Method == http.MethodPost {
		r.Body = http.MaxBytesReader(w, r.Body, maxCallbackFormBytes)
		if err := r.ParseForm(); err != nil {
			logging.Warn("OAuth", "OAuth callback with unreadable form: %v", err)
			h.renderErrorPage(w, http.StatusBadRequest, "Invalid callback: malformed parameters")
			return
		}
		raw = r.PostForm.Encode()
	}

	params, err := ParseCallback(raw)
	if err != nil {
		logging.Warn("OAuth", "OAuth callback with malformed parameters: %v", err)
		h.renderErrorPage(w, http.StatusBadRequest, "Invalid callback: malformed parameters")
		return
	}

	result, err := h.flow.HandleCallback(r.Context(), params)
	if err != nil {
		logging.Warn("OAuth", "OAuth callback failed: %v", err)
		h.renderErrorPage(w, statusForKind(KindOf(err)), callbackMessage(err))
		return
	}

	logging.Info("OAuth", "Successfully authenticated owner=%s", logging.TruncateID(result.OwnerID))
	h.renderSuccessPage(w, result.Identity)
}

// HandleImplicit serves a page that posts the URL fragment to the callback as
// a form, since fragments never reach the server. The fragment is dropped from
// the browser history first.
func (h *Handler) HandleImplicit(w http.ResponseWriter, r *http.Request) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Security-Policy", "default-src 'none'; script-src 'unsafe-inline'; form-action 'self'")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, `<!DOCTYPE html>
<html lang="en">
<head><meta charset="UTF-8"><title>Completing sign-in</title></head>
<body>
<noscript>JavaScript is required to complete sign-in.</noscript>
<script>
var params = new URLSearchParams(window.location.hash.substring(1));
history.replaceState(null, "", window.location.pathname);
var form = document.createElement("form");
form.method = "POST";
form.action = %q;
params.forEach(function (value, name) {
  var input = document.createElement("input");
  input.type = "hidden";
  input.name = name;
  input.value = value;
  form.appendChild(input);
});
document.body.appendChild(form);
form.submit();
</script>
</body>
</html>`, CallbackPath)
}

// HandleMetadata serves the authorization server metadata document.
func (h *Handler) HandleMetadata(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if err := json.NewEncoder(w).Encode(h.flow.Metadata()); err != nil {
		logging.Error("OAuth", err, "Failed to encode metadata")
	}
}

// HandleAuthorize issues a state for ?owner= and redirects to Salesforce.
func (h *Handler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	authURL, _, err := h.flow.AuthorizationURL(r.Context(), r.URL.Query().Get("owner"), AuthURLOptions{
		Prompt: r.URL.Query().Get("prompt"),
	})
	if err != nil {
		logging.Error("OAuth", err, "Failed to build authorization URL")
		h.renderErrorPage(w, http.StatusInternalServerError, "Could not start authentication. Please try again.")
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

func statusForKind(kind Kind) int {
	switch kind {
	case KindInvalidState, KindStateExpired, KindOAuthAuthorizationFailed:
		return http.StatusBadRequest
	case KindNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// callbackMessage returns a user-facing message that never echoes provider
// error bodies.
func callbackMessage(err error) string {
	switch KindOf(err) {
	case KindInvalidState:
		return "Invalid or already used authentication link. Please start again."
	case KindStateExpired:
		return "Authentication session expired. Please try again."
	case KindOAuthAuthorizationFailed:
		return "Salesforce did not authorize the request."
	case KindCodeExchangeFailed:
		return "Failed to complete authentication. Please try again."
	case KindIdentityResolutionFailed:
		return "Signed in, but the Salesforce user could not be identified."
	case KindNetwork:
		return "Salesforce could not be reached. Please try again."
	default:
		return "Authentication failed."
	}
}

// setSecurityHeaders sets recommended security headers for HTML responses.
func setSecurityHeaders(w http.ResponseWriter) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
}

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>%s - Salesforce MCP</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: #f3f3f3;
            min-height: 100vh;
            display: flex;
            align-items: center;
            justify-content: center;
            color: #181818;
        }
        .container {
            text-align: center;
            padding: 3rem;
            background: #fff;
            border-radius: 12px;
            box-shadow: 0 2px 8px rgba(0, 0, 0, 0.1);
            max-width: 500px;
        }
        .icon { font-size: 2.5rem; color: %s; }
        p { color: #444; line-height: 1.6; margin-top: 1rem; }
    </style>
</head>
<body>
    <div class="container">
        <div class="icon">%s</div>
        <h1>%s</h1>
        <p>%s</p>
        <p>%s</p>
    </div>
</body>
</html>`

func (h *Handler) renderSuccessPage(w http.ResponseWriter, identity UserIdentity) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	who := html.EscapeString(firstNonEmpty(identity.DisplayName, identity.StableKey()))
	fmt.Fprintf(w, pageTemplate,
		"Authentication Successful", "#2e844a", "&#10003;",
		"Authentication Successful",
		"You are signed in to Salesforce as "+who+".",
		"You can close this window and retry the previous command.")
}

func (h *Handler) renderErrorPage(w http.ResponseWriter, status int, message string) {
	setSecurityHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)

	fmt.Fprintf(w, pageTemplate,
		"Authentication Failed", "#ba0517", "&#10007;",
		"Authentication Failed",
		html.EscapeString(message),
		"Please return to your client and start the authorization again.")
}
