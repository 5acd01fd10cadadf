package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nydus-hq/nydus/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Load the configuration file, apply defaults and environment
overrides, and report whether the result is usable. Nothing is
started.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Configuration valid\n")
		fmt.Printf("  game listener:    %s\n", cfg.Proxy.ListenAddress)
		fmt.Printf("  control listener: %s\n", cfg.Control.ListenAddress)
		fmt.Printf("  engine ports:     %d-%d\n", cfg.Ports.Min, cfg.Ports.Max)
		fmt.Printf("  results backend:  %s\n", cfg.Results.Backend)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
