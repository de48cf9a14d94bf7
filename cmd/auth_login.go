package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// loginRedirectURL completes the flow without prompting.
var loginRedirectURL string

// authLoginCmd represents the auth login command
var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize a Salesforce user",
	Long: `Starts the Salesforce authorization flow.

The command prints the authorization URL. Open it in a browser and sign in.
If 'salesforce-mcp serve' is running, the browser completes the flow on its
own; otherwise paste the URL the browser was redirected to.

Examples:
  salesforce-mcp auth login
  salesforce-mcp auth login --owner alice@example.com
  salesforce-mcp auth login --redirect-url 'http://localhost:8787/oauth/callback?code=...&state=...'`,
	Args: cobra.NoArgs,
	RunE: runAuthLogin,
}

func runAuthLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	application, err := openApplication(ctx, true)
	if err != nil {
		reportConfigErrors(cmd.ErrOrStderr(), err)
		return err
	}
	defer application.Close()
	service := application.Service()

	out := cmd.OutOrStdout()
	redirectURL := loginRedirectURL
	if redirectURL == "" {
		authURL, err := service.AuthorizationURL(ctx, authOwner)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Open this URL in your browser to authorize Salesforce access:\n\n  %s\n\n", authURL)

		redirectURL, err = promptRedirectURL(cmd.InOrStdin(), out)
		if err != nil {
			return err
		}
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	s.Suffix = " Completing authorization..."
	s.Start()
	result, err := service.CompleteAuthorization(ctx, redirectURL)
	s.Stop()
	if err != nil {
		fmt.Fprintln(out, text.FgRed.Sprint("Authorization failed"))
		return err
	}

	printFlowResult(out, result)
	return nil
}

// promptRedirectURL reads the pasted redirect URL.
func promptRedirectURL(in io.Reader, out io.Writer) (string, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "Redirect URL: ",
		InterruptPrompt: "^C",
		Stdin:           io.NopCloser(in),
		Stdout:          out,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	line, err := rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", errors.New("login cancelled")
	}
	if err != nil {
		return "", fmt.Errorf("readline error: %w", err)
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", oauth.NewError(oauth.KindInvalidState, "no redirect URL entered", nil)
	}
	return line, nil
}

func printFlowResult(out io.Writer, result *oauth.FlowResult) {
	fmt.Fprintln(out, text.FgGreen.Sprint("Authorization complete"))
	fmt.Fprintf(out, "  Owner:        %s\n", result.OwnerID)
	if result.Identity.Username != "" {
		fmt.Fprintf(out, "  Username:     %s\n", result.Identity.Username)
	}
	if result.Identity.OrganizationID != "" {
		fmt.Fprintf(out, "  Organization: %s\n", result.Identity.OrganizationID)
	}
	fmt.Fprintf(out, "  Instance:     %s\n", result.Token.InstanceURL)
	if !result.Token.CanRefresh() {
		fmt.Fprintf(out, "  Refresh:      %s\n", text.FgYellow.Sprint("Not available (re-auth required on expiry)"))
	}
}

func init() {
	authLoginCmd.Flags().StringVar(&loginRedirectURL, "redirect-url", "", "Complete a flow from this redirect URL instead of prompting")
}
