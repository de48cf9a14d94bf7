package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// authStatusCmd represents the auth status command
var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored credential of an owner",
	Long: `Shows whether an owner has a usable Salesforce credential.

Exits with code 2 when the owner must authorize again.`,
	Args: cobra.NoArgs,
	RunE: runAuthStatus,
}

func runAuthStatus(cmd *cobra.Command, args []string) error {
	application, err := openApplication(cmd.Context(), false)
	if err != nil {
		return err
	}
	defer application.Close()

	status := application.Service().Status(authOwner)
	printTokenStatus(cmd.OutOrStdout(), status, time.Now())

	if !status.Usable() {
		return oauth.NewError(oauth.KindMissingCredentials,
			fmt.Sprintf("no usable credential for %s, run 'salesforce-mcp auth login'", status.OwnerID), nil)
	}
	return nil
}

func printTokenStatus(out io.Writer, status oauth.TokenStatus, now time.Time) {
	fmt.Fprintf(out, "Owner:     %s\n", status.OwnerID)
	fmt.Fprintf(out, "  Status:    %s\n", statusLabel(status))
	if !status.Present {
		return
	}
	if status.InstanceURL != "" {
		fmt.Fprintf(out, "  Instance:  %s\n", status.InstanceURL)
	}
	if status.Scope != "" {
		fmt.Fprintf(out, "  Scope:     %s\n", status.Scope)
	}
	fmt.Fprintf(out, "  Expires:   %s\n", formatExpiry(status.ExpiresAt, now))
	if status.CanRefresh {
		fmt.Fprintf(out, "  Refresh:   %s\n", text.FgGreen.Sprint("Available"))
	} else {
		fmt.Fprintf(out, "  Refresh:   %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
	}
}

func statusLabel(status oauth.TokenStatus) string {
	switch {
	case !status.Present:
		return text.FgYellow.Sprint("Not authenticated")
	case !status.Expired:
		return text.FgGreen.Sprint("Authenticated")
	case status.CanRefresh:
		return text.FgYellow.Sprint("Expired (will refresh)")
	default:
		return text.FgRed.Sprint("Expired")
	}
}

func formatExpiry(expiresAt, now time.Time) string {
	if expiresAt.IsZero() {
		return "unknown (session timeout set by the org)"
	}
	remaining := expiresAt.Sub(now).Round(time.Second)
	if remaining <= 0 {
		return fmt.Sprintf("%s (expired)", expiresAt.Local().Format(time.RFC3339))
	}
	return fmt.Sprintf("%s (in %s)", expiresAt.Local().Format(time.RFC3339), remaining)
}
