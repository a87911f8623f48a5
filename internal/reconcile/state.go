package reconcile

// State is the per-tab position in the check lifecycle. A closed tab simply
// has no state: CLOSED is absence from the map, so dangling work cannot
// resurrect it.
type State int

const (
	// StateIdle: no check in flight, nothing awaiting display.
	StateIdle State = iota
	// StateChecking: Phase 1 in flight.
	StateChecking
	// StateProvisional: Phase 1 verdict shown optimistically, Phase 2 pending.
	StateProvisional
	// StateResolved: final verdict produced; a deferred notification may
	// still be awaiting page-load-complete.
	StateResolved
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateChecking:
		return "checking"
	case StateProvisional:
		return "provisional"
	case StateResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// tabState is everything the reconciler tracks per open tab beyond the
// session store: machine position, whether the page finished loading (so a
// late final verdict is delivered immediately instead of waiting for a
// page-complete event that already fired), and the cancel handle for the
// tab's in-flight evaluation.
type tabState struct {
	state   State
	loaded  bool
	checkID string
	cancel  func()
}
