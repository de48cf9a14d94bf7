// Package auth defines the authorization status document served to MCP
// clients through the auth://status resource.
//
// Clients read it to learn which owners hold a usable Salesforce credential
// and which tool starts a new authorization for the others.
package auth
