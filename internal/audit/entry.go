package audit

// Event categorizes an audit entry.
type Event string

const (
	// EventDecision records a provisional or final decision for a check.
	EventDecision Event = "decision"
	// EventBypass records a user override.
	EventBypass Event = "bypass"
	// EventError records a check that failed open.
	EventError Event = "error"
)

// Entry is one line in the hash-chained JSONL audit log.
// All fields are scalars (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing.
type Entry struct {
	Timestamp string  `json:"ts"`
	Event     Event   `json:"event"`
	CheckID   string  `json:"check_id,omitempty"`
	TabID     int     `json:"tab_id"`
	URL       string  `json:"url"`
	Phase     string  `json:"phase,omitempty"`
	Stage     string  `json:"stage,omitempty"` // provisional | final
	RiskPct   float64 `json:"risk_pct"`
	RiskLevel string  `json:"risk_level,omitempty"`
	Action    string  `json:"action,omitempty"`
	Detail    string  `json:"detail,omitempty"`
	PrevHash  string  `json:"prev_hash"`
}
