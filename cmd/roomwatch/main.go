package main

import (
	"fmt"
	"os"

	"roomwatch/internal/commands"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "roomwatch",
	Short: "Home camera monitoring with a vision language model",
	Long: `roomwatch watches room cameras and raises an alert when a vision model
decides that one of the room's instructions is being broken.

Run the three processes side by side, sharing one Redis:
  roomwatch stream    --rooms rooms/   capture frames
  roomwatch watch     --rooms rooms/   decide and alert
  roomwatch dashboard --rooms rooms/   view rooms in a browser`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&commands.RoomFiles, "rooms", nil, "Room YAML files or directories")
	rootCmd.PersistentFlags().StringVar(&commands.SettingsFile, "settings", "", "Settings file (yaml, json, toml or .env)")
	rootCmd.PersistentFlags().BoolVarP(&commands.Verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(commands.StreamCmd)
	rootCmd.AddCommand(commands.WatchCmd)
	rootCmd.AddCommand(commands.DashboardCmd)
	rootCmd.AddCommand(commands.TUICmd)
	rootCmd.AddCommand(commands.CheckCmd)
	rootCmd.AddCommand(commands.TokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
