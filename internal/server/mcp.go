package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
	"github.com/the-answerai/mcp-server-salesforce/pkg/auth"
	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

// MCP tool names.
const (
	ToolAuthURL      = "salesforce_auth_url"
	ToolAuthCallback = "salesforce_auth_callback"
	ToolAuthStatus   = "salesforce_auth_status"
	ToolLogout       = "salesforce_logout"
	ToolRequest      = "salesforce_request"
)

// MCPServer exposes the credential service as MCP tools over stdio.
type MCPServer struct {
	backend   Backend
	mcpServer *server.MCPServer
}

// NewMCPServer creates an MCP server for backend.
func NewMCPServer(backend Backend, version string) *MCPServer {
	mcpServer := server.NewMCPServer(
		"salesforce-mcp",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	m := &MCPServer{backend: backend, mcpServer: mcpServer}
	m.registerTools()
	return m
}

// Start serves MCP over stdin/stdout until the client disconnects.
func (m *MCPServer) Start(ctx context.Context) error {
	return server.ServeStdio(m.mcpServer)
}

func (m *MCPServer) registerTools() {
	m.mcpServer.AddTool(mcp.NewTool(ToolAuthURL,
		mcp.WithDescription("Start a Salesforce authorization and return the URL the user must open"),
		mcp.WithString("owner",
			mcp.Description("Owner the authorization is started for; optional"),
		),
	), m.handleAuthURL)

	m.mcpServer.AddTool(mcp.NewTool(ToolAuthCallback,
		mcp.WithDescription("Complete a Salesforce authorization from the URL the browser was redirected to"),
		mcp.WithString("redirect_url",
			mcp.Required(),
			mcp.Description("Full redirect URL including the query string or fragment"),
		),
	), m.handleAuthCallback)

	m.mcpServer.AddTool(mcp.NewTool(ToolAuthStatus,
		mcp.WithDescription("Report whether an owner has a usable Salesforce credential"),
		mcp.WithString("owner",
			mcp.Description("Owner to inspect; defaults to the configured owner"),
		),
	), m.handleAuthStatus)

	m.mcpServer.AddTool(mcp.NewTool(ToolLogout,
		mcp.WithDescription("Revoke and forget an owner's Salesforce credential"),
		mcp.WithString("owner",
			mcp.Description("Owner to log out; defaults to the configured owner"),
		),
	), m.handleLogout)

	m.mcpServer.AddTool(mcp.NewTool(ToolRequest,
		mcp.WithDescription("Send a request to the Salesforce REST API. Expired sessions are renewed and retried once."),
		mcp.WithString("owner",
			mcp.Description("Owner whose credential is used; defaults to the configured owner"),
		),
		mcp.WithString("method",
			mcp.Description("HTTP method"),
			mcp.Enum(http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete),
		),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Path relative to /services/data/<version>/, e.g. \"query?q=SELECT+Id+FROM+Account\", or an absolute /services/ path"),
		),
		mcp.WithObject("body",
			mcp.Description("JSON request body"),
		),
	), m.handleRequest)

	m.mcpServer.AddResource(mcp.NewResource(
		auth.StatusResourceURI,
		"Salesforce authorization status",
		mcp.WithResourceDescription("Stored Salesforce credentials per owner and the tool that starts a new authorization"),
		mcp.WithMIMEType("application/json"),
	), m.handleAuthStatusResource)
}

// handleAuthStatusResource reports every stored credential. Token values
// are never included.
func (m *MCPServer) handleAuthStatusResource(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	issuer := m.backend.Issuer()
	statuses := m.backend.Statuses()
	response := auth.StatusResponse{Issuer: issuer, Owners: make([]auth.OwnerStatus, 0, len(statuses))}

	for _, s := range statuses {
		owner := auth.OwnerStatus{
			Owner:       s.OwnerID,
			InstanceURL: s.InstanceURL,
			ExpiresAt:   s.ExpiresAt,
		}
		switch {
		case !s.Usable():
			owner.Status = auth.StatusAuthRequired
			owner.AuthChallenge = &auth.ChallengeInfo{Issuer: issuer, AuthToolName: ToolAuthURL}
		case s.Expired:
			owner.Status = auth.StatusRefreshable
		default:
			owner.Status = auth.StatusConnected
		}
		response.Owners = append(response.Owners, owner)
	}

	data, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}

	logging.Debug("MCPServer", "Returning auth status for %d owners", len(response.Owners))

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      auth.StatusResourceURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (m *MCPServer) handleAuthURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	authURL, err := m.backend.AuthorizationURL(ctx, request.GetString("owner", ""))
	if err != nil {
		return toolError("Failed to start authorization", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Open this URL to authorize Salesforce access:\n%s", authURL)), nil
}

func (m *MCPServer) handleAuthCallback(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	redirectURL, err := request.RequireString("redirect_url")
	if err != nil {
		return mcp.NewToolResultError("redirect_url argument is required"), nil
	}

	result, err := m.backend.CompleteAuthorization(ctx, redirectURL)
	if err != nil {
		return toolError("Authorization failed", err), nil
	}
	return jsonResult(map[string]any{
		"owner":        result.OwnerID,
		"username":     result.Identity.Username,
		"organization": result.Identity.OrganizationID,
		"instance_url": result.Token.InstanceURL,
	})
}

func (m *MCPServer) handleAuthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := m.backend.Status(request.GetString("owner", ""))
	return jsonResult(struct {
		oauth.TokenStatus
		Usable bool `json:"usable"`
	}{status, status.Usable()})
}

func (m *MCPServer) handleLogout(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := request.GetString("owner", "")
	if err := m.backend.Revoke(ctx, owner); err != nil {
		return mcp.NewToolResultText(fmt.Sprintf("Local credential cleared; remote revocation failed: %v", err)), nil
	}
	return mcp.NewToolResultText("Logged out"), nil
}

func (m *MCPServer) handleRequest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError("path argument is required"), nil
	}
	method := strings.ToUpper(request.GetString("method", http.MethodGet))

	var body any
	if raw, ok := request.GetArguments()["body"]; ok && raw != nil {
		if _, isObject := raw.(map[string]any); !isObject {
			return mcp.NewToolResultError("body must be a JSON object"), nil
		}
		body = raw
	}

	out, err := m.backend.Request(ctx, request.GetString("owner", ""), method, path, body)
	if err != nil {
		return toolError("Salesforce request failed", err), nil
	}
	if len(out) == 0 {
		return mcp.NewToolResultText("{}"), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// toolError renders err with its stable error code so clients can branch on it.
func toolError(prefix string, err error) *mcp.CallToolResult {
	code := oauth.KindOf(err).Code()
	return mcp.NewToolResultError(fmt.Sprintf("%s [%s]: %v", prefix, code, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
