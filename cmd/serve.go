package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/the-answerai/mcp-server-salesforce/internal/app"
)

// serveMCP additionally serves the MCP tools over stdio.
var serveMCP bool

// serveCmd defines the serve command structure.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the OAuth callback endpoints and, optionally, the MCP tools",
	Long: `Starts the HTTP server that completes Salesforce authorizations in the
browser and periodically sweeps expired state and tokens.

With --mcp the Salesforce tools are also served over stdin/stdout, which is
how MCP clients launch the server:

  {
    "mcpServers": {
      "salesforce": { "command": "salesforce-mcp", "args": ["serve", "--mcp"] }
    }
  }

Logs always go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := openApplication(ctx, true)
	if err != nil {
		reportConfigErrors(cmd.ErrOrStderr(), err)
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer application.Close()

	return application.Run(ctx, app.RunOptions{
		Stdio:   serveMCP,
		Version: GetVersion(),
	})
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&serveMCP, "mcp", false, "Also serve the MCP tools over stdio")
}
