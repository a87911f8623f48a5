package model

import (
	"strings"
	"time"
)

// RiskLevel classifies how dangerous the classifier considers a destination.
type RiskLevel string

const (
	LevelSafe           RiskLevel = "SAFE"
	LevelLow            RiskLevel = "LOW"
	LevelMedium         RiskLevel = "MEDIUM"
	LevelVerySuspicious RiskLevel = "VERY_SUSPICIOUS"
)

// LevelRank maps risk levels to a comparable integer for OR-of-severity
// reconciliation with the numeric score.
var LevelRank = map[RiskLevel]int{
	LevelSafe:           0,
	LevelLow:            1,
	LevelMedium:         2,
	LevelVerySuspicious: 3,
}

// ParseRiskLevel normalizes the classifier's free-form level labels
// ("VERY SAFE", "POSSIBLY MALICIOUS", "VERY SUSPICIOUS", ...) onto the
// four-level enum. Unrecognized labels map to LevelSafe so the numeric
// score alone drives the decision.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "VERY SUSPICIOUS", "VERY_SUSPICIOUS", "HIGH", "CRITICAL":
		return LevelVerySuspicious
	case "POSSIBLY MALICIOUS", "POSSIBLY_MALICIOUS", "MEDIUM", "SUSPICIOUS":
		return LevelMedium
	case "LOW", "LOW RISK", "LOW_RISK":
		return LevelLow
	default:
		return LevelSafe
	}
}

// Phase identifies which evaluation tier produced a verdict.
type Phase string

const (
	PhaseURLOnly Phase = "url_only"
	PhaseFull    Phase = "full"
)

// Verdict is the classifier's risk assessment for one navigation attempt.
// Immutable once received.
type Verdict struct {
	URL            string    `json:"url"`
	RiskScore      float64   `json:"risk_score"` // percentage in [0,100]
	RiskLevel      RiskLevel `json:"risk_level"`
	URLScore       float64   `json:"url_score"`
	ContentScore   *float64  `json:"content_score,omitempty"`
	Overridden     bool      `json:"overridden"`
	OverrideReason string    `json:"override_reason,omitempty"`
	Whitelisted    bool      `json:"whitelisted"`
	Message        string    `json:"message,omitempty"`
	SourcePhase    Phase     `json:"source_phase"`

	// Final marks a verdict that will not be superseded for this navigation:
	// either a severe Phase 1 short-circuit or any Phase 2 result.
	Final bool `json:"final"`
}

// Action is the arbitration outcome for one navigation.
type Action string

const (
	Allow Action = "allow"
	Warn  Action = "warn"
	Block Action = "block"
)

// ActionRank maps actions to a comparable integer; higher is more severe.
var ActionRank = map[Action]int{
	Allow: 0,
	Warn:  1,
	Block: 2,
}

// MoreSevere returns the more severe of two actions.
func MoreSevere(a, b Action) Action {
	if ActionRank[b] > ActionRank[a] {
		return b
	}
	return a
}

// Badge is the per-tab indicator directive consumed by the rendering side.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// Decision maps a verdict to what the user sees. Never persisted; recomputed
// whenever a verdict is produced.
type Decision struct {
	Action Action `json:"action"`
	Badge  Badge  `json:"badge"`
}

// NavigationEvent is one navigation attempt as reported by the browser.
// Ephemeral: processed, never stored.
type NavigationEvent struct {
	TabID     int       `json:"tab_id"`
	URL       string    `json:"url"`
	MainFrame bool      `json:"main_frame"`
	At        time.Time `json:"at"`
}
