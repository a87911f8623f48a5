// Package policy maps verdicts to user-facing decisions. Pure and total:
// every verdict yields exactly one decision.
package policy

import (
	"github.com/ppiankov/navguard/internal/model"
)

// Thresholds defines the risk-percentage boundaries for decisions.
// Configuration, not hardcoded policy: loaded from the config file and
// hot-reloadable.
type Thresholds struct {
	// WarnPct: scores strictly above this warn.
	WarnPct float64 `yaml:"warn_pct"`
	// BlockPct: scores strictly above this block.
	BlockPct float64 `yaml:"block_pct"`
	// Phase1HighPct: scores strictly above this at Phase 1 short-circuit
	// Phase 2 entirely (fail-fast on clear danger in URL-only mode).
	Phase1HighPct float64 `yaml:"phase1_high_pct"`
}

// DefaultThresholds returns the built-in boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		WarnPct:       40,
		BlockPct:      80,
		Phase1HighPct: 60,
	}
}

// Badge directives. Colors follow the extension's palette.
var (
	BadgeSafe     = model.Badge{Text: "SAFE", Color: "#28a745"}
	BadgeWarn     = model.Badge{Text: "WARN", Color: "#f0ad4e"}
	BadgeBlock    = model.Badge{Text: "SUS", Color: "#d9534f"}
	BadgeVerified = model.Badge{Text: "SAFE", Color: "#17a2b8"}
	BadgeError    = model.Badge{Text: "ERR", Color: "#6c757d"}
)

// Decide maps a verdict to a decision.
//
// Order (must not be changed):
//  1. Override — the false-positive escape hatch wins over any score.
//  2. Severity — numeric score and level label are judged independently
//     and the more severe outcome wins (OR-of-severity, never AND).
func Decide(v *model.Verdict, t Thresholds) model.Decision {
	if v.Overridden {
		return model.Decision{Action: model.Allow, Badge: BadgeVerified}
	}

	action := model.MoreSevere(actionFromScore(v.RiskScore, t), actionFromLevel(v.RiskLevel))
	switch action {
	case model.Block:
		return model.Decision{Action: model.Block, Badge: BadgeBlock}
	case model.Warn:
		return model.Decision{Action: model.Warn, Badge: BadgeWarn}
	default:
		return model.Decision{Action: model.Allow, Badge: BadgeSafe}
	}
}

// Severe reports whether a Phase 1 verdict is alarming enough to skip
// Phase 2 and finalize immediately.
func Severe(v *model.Verdict, t Thresholds) bool {
	if v.Overridden {
		return false
	}
	return v.RiskScore > t.Phase1HighPct || v.RiskLevel == model.LevelVerySuspicious
}

// ErrorDecision is applied when classification failed: the page loads
// unhindered (fail-open) with an error badge.
func ErrorDecision() model.Decision {
	return model.Decision{Action: model.Allow, Badge: BadgeError}
}

func actionFromScore(pct float64, t Thresholds) model.Action {
	switch {
	case pct > t.BlockPct:
		return model.Block
	case pct > t.WarnPct:
		return model.Warn
	default:
		return model.Allow
	}
}

func actionFromLevel(l model.RiskLevel) model.Action {
	switch l {
	case model.LevelVerySuspicious:
		return model.Block
	case model.LevelMedium:
		return model.Warn
	default:
		return model.Allow
	}
}
