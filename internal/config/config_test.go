package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Classifier.BaseURL != "http://localhost:5000" {
		t.Errorf("classifier base URL = %q", cfg.Classifier.BaseURL)
	}
	if cfg.Classifier.Phase1Timeout.D() != 5*time.Second {
		t.Errorf("phase1 timeout = %v", cfg.Classifier.Phase1Timeout.D())
	}
	if cfg.Classifier.Phase2Timeout.D() != 8*time.Second {
		t.Errorf("phase2 timeout = %v", cfg.Classifier.Phase2Timeout.D())
	}
	if cfg.Classifier.SettleDelay.D() != 1500*time.Millisecond {
		t.Errorf("settle delay = %v", cfg.Classifier.SettleDelay.D())
	}
	if cfg.Thresholds.WarnPct != 40 || cfg.Thresholds.BlockPct != 80 || cfg.Thresholds.Phase1HighPct != 60 {
		t.Errorf("thresholds = %+v", cfg.Thresholds)
	}
	if cfg.BypassTTL.D() != time.Minute {
		t.Errorf("bypass TTL = %v", cfg.BypassTTL.D())
	}
	if cfg.SessionStaleAfter.D() != 30*time.Minute {
		t.Errorf("session stale after = %v", cfg.SessionStaleAfter.D())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Addr != Default().Server.Addr {
		t.Errorf("addr = %q, want default", cfg.Server.Addr)
	}
}

func TestLoadOverlaysOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
classifier:
  base_url: http://classifier.internal:9000
  settle_delay: 500ms
thresholds:
  warn_pct: 30
server:
  addr: 127.0.0.1:9999
bypass_ttl: 120
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Classifier.BaseURL != "http://classifier.internal:9000" {
		t.Errorf("base URL = %q", cfg.Classifier.BaseURL)
	}
	if cfg.Classifier.SettleDelay.D() != 500*time.Millisecond {
		t.Errorf("settle delay = %v", cfg.Classifier.SettleDelay.D())
	}
	if cfg.Classifier.Phase1Timeout.D() != 5*time.Second {
		t.Error("unspecified fields must keep their defaults")
	}
	if cfg.Thresholds.WarnPct != 30 {
		t.Errorf("warn pct = %v", cfg.Thresholds.WarnPct)
	}
	if cfg.Thresholds.BlockPct != 80 {
		t.Error("unspecified threshold must keep its default")
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if cfg.BypassTTL.D() != 2*time.Minute {
		t.Errorf("bypass TTL = %v, want bare integers read as seconds", cfg.BypassTTL.D())
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("classifier: [not: a map"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestDurationParsing(t *testing.T) {
	cases := []struct {
		yaml string
		want time.Duration
		err  bool
	}{
		{"1.5s", 1500 * time.Millisecond, false},
		{"30m", 30 * time.Minute, false},
		{"90", 90 * time.Second, false},
		{"soon", 0, true},
	}

	for _, c := range cases {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "bypass_ttl: " + c.yaml + "\n"
		if err := os.WriteFile(path, []byte(data), 0644); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if c.err {
			if err == nil {
				t.Errorf("bypass_ttl %q: expected error", c.yaml)
			}
			continue
		}
		if err != nil {
			t.Errorf("bypass_ttl %q: %v", c.yaml, err)
			continue
		}
		if cfg.BypassTTL.D() != c.want {
			t.Errorf("bypass_ttl %q = %v, want %v", c.yaml, cfg.BypassTTL.D(), c.want)
		}
	}
}
