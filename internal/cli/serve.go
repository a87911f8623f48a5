package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/navguard/internal/config"
	"github.com/ppiankov/navguard/internal/logging"
	"github.com/ppiankov/navguard/internal/server"
)

var (
	serveAddr     string
	serveAuditLog string
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides config)")
	serveCmd.Flags().StringVar(&serveAuditLog, "audit-log", "", "Path to audit log JSONL file (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the companion HTTP daemon",
	Long: "Runs the arbitration engine behind the extension-facing HTTP API.\n" +
		"Supports hot-reload of thresholds and the skip allowlist.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if serveAuditLog != "" {
		cfg.AuditLogPath = serveAuditLog
	}

	cleanup, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()

	engine, err := server.NewEngine(cfg, configPath)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer engine.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx)
	})

	g.Go(func() error {
		return engine.BypassRegistry().Run(gctx, 30*time.Second)
	})

	reloader, err := server.NewReloader(engine, []string{configPath, cfg.AllowlistPath})
	if err != nil {
		slog.Warn("hot-reload disabled", "err", err)
	} else {
		g.Go(func() error {
			return reloader.Run(gctx)
		})
	}

	slog.Info("navguard listening", "addr", cfg.Server.Addr, "classifier", cfg.Classifier.BaseURL)
	return g.Wait()
}
