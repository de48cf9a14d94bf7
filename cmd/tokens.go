package cmd

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/the-answerai/mcp-server-salesforce/internal/oauth"
)

// tokensCmd groups commands that inspect the token store.
var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "Inspect stored Salesforce tokens",
}

var tokensListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every stored credential",
	Long:  `Lists the owners with a stored credential. Token values are never shown.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := openApplication(cmd.Context(), false)
		if err != nil {
			return err
		}
		defer application.Close()

		renderTokenTable(cmd.OutOrStdout(), application.Service().Statuses(), time.Now())
		return nil
	},
}

func renderTokenTable(out io.Writer, statuses []oauth.TokenStatus, now time.Time) {
	if len(statuses) == 0 {
		io.WriteString(out, text.FgYellow.Sprint("No stored credentials")+"\n")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("OWNER"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("INSTANCE"),
		text.FgHiCyan.Sprint("EXPIRES"),
		text.FgHiCyan.Sprint("REFRESH"),
	})
	for _, status := range statuses {
		refresh := "no"
		if status.CanRefresh {
			refresh = "yes"
		}
		t.AppendRow(table.Row{
			status.OwnerID,
			statusLabel(status),
			status.InstanceURL,
			formatExpiry(status.ExpiresAt, now),
			refresh,
		})
	}
	t.Render()
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensListCmd)
}
