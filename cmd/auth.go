package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/the-answerai/mcp-server-salesforce/pkg/logging"
)

var (
	authOwner     string
	authLogoutAll bool
)

// authCmd represents the auth command group
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage Salesforce authorization",
	Long: `Manage the Salesforce credentials stored by salesforce-mcp.

Examples:
  salesforce-mcp auth login                     # Authorize a Salesforce user
  salesforce-mcp auth status                    # Show the default owner's credential
  salesforce-mcp auth status --owner <id>       # Show a specific owner
  salesforce-mcp auth logout --owner <id>       # Revoke and forget a credential
  salesforce-mcp auth logout --all              # Revoke and forget every credential`,
}

// authLogoutCmd represents the auth logout command
var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke and clear stored credentials",
	Long: `Revokes the owner's token at Salesforce and removes it locally.

The local credential is removed even when Salesforce cannot be reached.`,
	Args: cobra.NoArgs,
	RunE: runAuthLogout,
}

func runAuthLogout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	application, err := openApplication(ctx, false)
	if err != nil {
		return err
	}
	defer application.Close()
	service := application.Service()

	owners := []string{service.Owner(authOwner)}
	if authLogoutAll {
		owners = service.Tokens().ListOwners()
	}
	if len(owners) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No stored credentials.")
		return nil
	}

	var errs []error
	for _, owner := range owners {
		if err := service.Revoke(ctx, owner); err != nil {
			logging.Warn("CLI", "Logout of %s: %v", logging.TruncateID(owner), err)
			errs = append(errs, fmt.Errorf("%s: %w", owner, err))
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s (remote revocation failed)\n", owner)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Logged out %s\n", owner)
	}
	return errors.Join(errs...)
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd)
	authCmd.AddCommand(authStatusCmd)
	authCmd.AddCommand(authLogoutCmd)

	authCmd.PersistentFlags().StringVar(&authOwner, "owner", "", "Owner id (defaults to the configured default owner)")
	authLogoutCmd.Flags().BoolVar(&authLogoutAll, "all", false, "Log out every stored owner")
}
