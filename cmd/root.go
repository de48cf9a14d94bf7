package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/the-answerai/mcp-server-salesforce/internal/app"
	"github.com/the-answerai/mcp-server-salesforce/internal/config"
	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeAuthRequired indicates authentication is required but not available.
	ExitCodeAuthRequired = 2
	// ExitCodeAuthFailed indicates the OAuth flow failed.
	ExitCodeAuthFailed = 3
)

// Global flags shared by every command.
var (
	rootDebug      bool
	rootConfigPath string
	rootEnvFile    string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "salesforce-mcp",
	Short: "Salesforce credentials and REST access for MCP clients",
	Long: `salesforce-mcp authorizes users against Salesforce, keeps their tokens
fresh and exposes the Salesforce REST API to MCP clients.

Run 'salesforce-mcp auth login' once to connect an account, then
'salesforce-mcp serve --mcp' from your MCP client configuration.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "salesforce-mcp version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}

	switch oauth.KindOf(err) {
	case oauth.KindMissingCredentials, oauth.KindSessionExpired,
		oauth.KindTokenRefreshFailed, oauth.KindStateExpired:
		return ExitCodeAuthRequired
	case oauth.KindOAuthAuthorizationFailed, oauth.KindCodeExchangeFailed,
		oauth.KindInvalidState, oauth.KindIdentityResolutionFailed:
		return ExitCodeAuthFailed
	}
	return ExitCodeError
}

// appConfig builds the application configuration from the global flags.
func appConfig() *app.Config {
	cfg := app.NewConfig(rootDebug, rootConfigPath)
	cfg.EnvFile = rootEnvFile
	return cfg
}

// openApplication loads the application. validate is false for commands
// that only inspect or clear stored credentials.
func openApplication(ctx context.Context, validate bool) (*app.Application, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if validate {
		return app.NewApplication(ctx, appConfig())
	}
	return app.OpenApplication(ctx, appConfig())
}

// reportConfigErrors writes the full validation report to w when err carries
// configuration errors. Other errors are left to cobra.
func reportConfigErrors(w io.Writer, err error) {
	var collection *config.ConfigurationErrorCollection
	if !errors.As(err, &collection) || !collection.HasErrors() {
		return
	}
	fmt.Fprintln(w, collection.GetDetailedReport())
	if missing := collection.GetErrorsByType(config.ErrorTypeMissingCredentials); len(missing) > 0 {
		fmt.Fprintf(w, "\n%d credential setting(s) missing for the selected auth mode. Set them in the config file or the environment.\n", len(missing))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&rootDebug, "debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "", "Config file (default is $HOME/.config/salesforce-mcp/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootEnvFile, "env-file", "", "Environment file loaded before the config (default is ./.env)")

	rootCmd.AddCommand(newVersionCmd())
}
