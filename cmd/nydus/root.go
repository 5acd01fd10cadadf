package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "nydus",
	Short: "Nydus - session proxy for bot-versus-engine matches",
	Long: `Nydus is a session proxy that sits between autonomous game-playing
bots and headless game engine processes.

It owns the engine lifecycle and every byte on the wire, providing:
  - Per-match engine process launching on pooled ports
  - Byte-exact frame bridging with policy enforcement
  - Per-participant call, action-rate and time budgets
  - A JSON-line control plane with a live statistics feed
  - Durable match result records`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
