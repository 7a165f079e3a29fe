package commands

import (
	"fmt"
	"os"

	"roomwatch/internal/tui"

	"github.com/spf13/cobra"
)

// TUICmd opens the terminal dashboard
var TUICmd = &cobra.Command{
	Use:   "tui",
	Short: "Watch a running dashboard from the terminal",
	Long: `Connects to a roomwatch dashboard, shows every room's latest verdict and
alert state, and follows live events until you press q.`,
	RunE: runTUI,
}

func init() {
	TUICmd.Flags().String("url", "http://localhost:8501", "Dashboard base URL")
	TUICmd.Flags().String("token", "", "Dashboard access token (defaults to $ROOMWATCH_TOKEN)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	target, _ := cmd.Flags().GetString("url")
	token, _ := cmd.Flags().GetString("token")
	if token == "" {
		token = os.Getenv("ROOMWATCH_TOKEN")
	}

	client, err := tui.NewClient(target, token)
	if err != nil {
		return fmt.Errorf("invalid --url: %w", err)
	}

	ctx, stop := signalContext()
	defer stop()

	return tui.Run(ctx, client, target)
}
