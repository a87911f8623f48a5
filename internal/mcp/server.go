// Package mcp exposes navguard's arbitration as MCP tools so agents can
// pre-check destinations and manage bypasses over stdio.
package mcp

import (
	"context"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/navguard/internal/bypass"
	"github.com/ppiankov/navguard/internal/classify"
	"github.com/ppiankov/navguard/internal/config"
	"github.com/ppiankov/navguard/internal/policy"
	"github.com/ppiankov/navguard/internal/skip"
)

// Server wraps the MCP SDK server around the classifier client and policy.
type Server struct {
	mcpServer  *mcpsdk.Server
	client     *classify.Client
	cache      *classify.VerdictCache
	rules      *skip.Rules
	bypassReg  *bypass.Registry
	thresholds policy.Thresholds
}

// New creates an MCP server from configuration.
func New(cfg *config.Config) (*Server, error) {
	rules, err := skip.Load(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}

	s := &Server{
		client:     classify.NewClient(cfg.Classifier.BaseURL, cfg.Classifier.Phase1Timeout.D(), cfg.Classifier.Phase2Timeout.D()),
		cache:      classify.NewVerdictCache(cfg.Classifier.CacheSize, cfg.Classifier.CacheTTL.D()),
		rules:      rules,
		bypassReg:  bypass.NewRegistry(cfg.BypassTTL.D()),
		thresholds: cfg.Thresholds,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "navguard",
			Version: "0.1.0",
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Run starts the MCP server on stdio transport. Blocks until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// registerTools adds all navguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "navguard_check",
		Description: "Classify a URL with the remote risk service and return the allow/warn/block decision without navigating.",
	}, s.handleCheck)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "navguard_bypass",
		Description: "Register a time-limited bypass for an exact URL so upcoming navigations to it are not checked.",
	}, s.handleBypass)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "navguard_status",
		Description: "Report engine status: live bypass entries and verdict cache occupancy.",
	}, s.handleStatus)
}
