package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/navguard/internal/config"
)

var bypassAddr string

func init() {
	rootCmd.AddCommand(bypassCmd)
	bypassCmd.Flags().StringVar(&bypassAddr, "addr", "", "Address of a running daemon (default from config)")
}

var bypassCmd = &cobra.Command{
	Use:   "bypass <url>",
	Short: "Register a time-limited bypass on a running daemon",
	Long: "Sends a BYPASS_URL message to the daemon so upcoming navigations to\n" +
		"the exact URL load unchecked until the entry expires.",
	Args: cobra.ExactArgs(1),
	RunE: runBypass,
}

func runBypass(cmd *cobra.Command, args []string) error {
	addr := bypassAddr
	if addr == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		addr = cfg.Server.Addr
	}

	body, _ := json.Marshal(map[string]string{"action": "BYPASS_URL", "url": args[0]})
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post("http://"+addr+"/bypass", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("daemon unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("daemon rejected bypass: HTTP %d", resp.StatusCode)
	}

	fmt.Printf("bypass registered for %s\n", args[0])
	return nil
}
