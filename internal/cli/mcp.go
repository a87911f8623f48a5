package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/navguard/internal/config"
	"github.com/ppiankov/navguard/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as an MCP server on stdio",
	Long: "Exposes navguard_check, navguard_bypass, and navguard_status as MCP\n" +
		"tools so agents can pre-check destinations before fetching them.",
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	srv, err := mcp.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	return srv.Run(cmd.Context())
}
