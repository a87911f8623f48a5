package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ppiankov/navguard/internal/classify"
	"github.com/ppiankov/navguard/internal/config"
	"github.com/ppiankov/navguard/internal/model"
	"github.com/ppiankov/navguard/internal/policy"
	"github.com/ppiankov/navguard/internal/skip"
)

var checkJSON bool

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "Emit the decision as JSON")
}

var checkCmd = &cobra.Command{
	Use:   "check <url>",
	Short: "Classify one URL and print the decision",
	Long: "Runs a one-shot URL-only classification against the configured\n" +
		"remote service and prints the resulting decision.\n\n" +
		"Exit code 0 for allow, 2 for warn, 3 for block.",
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

var (
	colorAllow = color.New(color.FgGreen).SprintFunc()
	colorWarn  = color.New(color.FgYellow).SprintFunc()
	colorBlock = color.New(color.FgRed).SprintFunc()
	colorInfo  = color.New(color.FgCyan).SprintFunc()
)

func runCheck(cmd *cobra.Command, args []string) error {
	url := args[0]

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	rules, err := skip.Load(cfg.AllowlistPath)
	if err != nil {
		return err
	}
	if rules.ShouldSkip(url) {
		if checkJSON {
			out, _ := json.MarshalIndent(map[string]any{"action": "allow", "skipped": true}, "", "  ")
			fmt.Println(string(out))
		} else {
			fmt.Printf("[%s] %s (exempt destination, not checked)\n", colorAllow("ALLOW"), url)
		}
		return nil
	}

	client := classify.NewClient(cfg.Classifier.BaseURL, cfg.Classifier.Phase1Timeout.D(), cfg.Classifier.Phase2Timeout.D())
	v, err := client.CheckURL(cmd.Context(), url)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	d := policy.Decide(v, cfg.Thresholds)

	if checkJSON {
		out, _ := json.MarshalIndent(map[string]any{
			"action":     d.Action,
			"badge":      d.Badge,
			"risk_pct":   v.RiskScore,
			"risk_level": v.RiskLevel,
			"overridden": v.Overridden,
			"message":    v.Message,
		}, "", "  ")
		fmt.Println(string(out))
	} else {
		printDecision(url, v, d)
	}

	switch d.Action {
	case model.Warn:
		os.Exit(2)
	case model.Block:
		os.Exit(3)
	}
	return nil
}

func printDecision(url string, v *model.Verdict, d model.Decision) {
	label := colorAllow("ALLOW")
	switch d.Action {
	case model.Warn:
		label = colorWarn("WARN")
	case model.Block:
		label = colorBlock("BLOCK")
	}

	fmt.Printf("[%s] %s\n", label, url)
	fmt.Printf("  Risk: %s (%.1f%%)\n", colorInfo(string(v.RiskLevel)), v.RiskScore)
	if v.Overridden {
		fmt.Printf("  Override: %s\n", v.OverrideReason)
	}
	if v.Message != "" {
		fmt.Printf("  %s\n", v.Message)
	}
}
