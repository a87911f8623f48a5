package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "navguard",
	Short: "Navigation risk-arbitration engine",
	Long: "Companion daemon for browser extensions that intercept navigations.\n" +
		"Classifies destinations against a remote risk service in two tiers,\n" +
		"arbitrates allow/warn/block per tab, and honors time-limited user\n" +
		"overrides.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config YAML (default ~/.navguard/config.yaml)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
