// Package config loads the navguard configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/navguard/internal/logging"
	"github.com/ppiankov/navguard/internal/policy"
)

// Classifier configures the remote prediction service.
type Classifier struct {
	BaseURL       string   `yaml:"base_url"`
	Phase1Timeout Duration `yaml:"phase1_timeout"`
	Phase2Timeout Duration `yaml:"phase2_timeout"`
	SettleDelay   Duration `yaml:"settle_delay"`
	CacheSize     int      `yaml:"cache_size"`
	CacheTTL      Duration `yaml:"cache_ttl"`
}

// Server configures the extension-facing HTTP listener.
type Server struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Config holds all configurable engine parameters.
type Config struct {
	Classifier Classifier        `yaml:"classifier"`
	Server     Server            `yaml:"server"`
	Thresholds policy.Thresholds `yaml:"thresholds"`

	// AllowlistPath points at the skip-filter rules YAML; empty uses the
	// default location, missing file uses built-in defaults.
	AllowlistPath string `yaml:"allowlist"`
	// AuditLogPath enables the JSONL decision log when set.
	AuditLogPath string `yaml:"audit_log"`

	// BypassTTL bounds how long a user override suppresses checks.
	BypassTTL Duration `yaml:"bypass_ttl"`
	// SessionStaleAfter bounds same-domain re-navigation suppression for
	// idle tabs; zero keeps suppression until the domain changes.
	SessionStaleAfter Duration `yaml:"session_stale_after"`

	Logging logging.Config `yaml:"logging"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Classifier: Classifier{
			BaseURL:       "http://localhost:5000",
			Phase1Timeout: Duration(5 * time.Second),
			Phase2Timeout: Duration(8 * time.Second),
			SettleDelay:   Duration(1500 * time.Millisecond),
			CacheSize:     512,
			CacheTTL:      Duration(5 * time.Minute),
		},
		Server: Server{
			Addr: "127.0.0.1:7745",
		},
		Thresholds:        policy.DefaultThresholds(),
		BypassTTL:         Duration(60 * time.Second),
		SessionStaleAfter: Duration(30 * time.Minute),
		Logging:           logging.DefaultConfig(),
	}
}

// Load reads configuration from a YAML file. Empty path falls back to
// ~/.navguard/config.yaml. Missing file returns defaults. Invalid YAML
// returns an error.
func Load(path string) (*Config, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Default(), nil
		}
		path = filepath.Join(home, ".navguard", "config.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	// Start with defaults; YAML overwrites only specified fields
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, nil
}
