// Package reconcile wires the skip filter, session store, evaluator, and
// decision policy to navigation and tab lifecycle events. Race outcomes
// between the event sources are defined transitions of a per-tab state
// machine, not emergent behavior.
package reconcile

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ppiankov/navguard/internal/audit"
	"github.com/ppiankov/navguard/internal/bypass"
	"github.com/ppiankov/navguard/internal/model"
	"github.com/ppiankov/navguard/internal/policy"
	"github.com/ppiankov/navguard/internal/session"
	"github.com/ppiankov/navguard/internal/skip"
)

// Evaluator is the tiered-check collaborator.
type Evaluator interface {
	Evaluate(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error
}

// UISink receives UI directives for the rendering side. Implementations must
// be cheap and non-blocking; the reconciler calls them with its lock held
// released.
type UISink interface {
	// SetBadge replaces the tab's badge directive.
	SetBadge(tabID int, b model.Badge)
	// Notify delivers the overlay/notification directive, at most once per
	// resolved navigation.
	Notify(tabID int, d model.Decision, v model.Verdict)
	// ClearBadge removes any badge for the tab (skipped or system pages).
	ClearBadge(tabID int)
}

// Config assembles a Reconciler.
type Config struct {
	Rules      *skip.Rules
	Sessions   *session.Store
	Bypass     *bypass.Registry
	Evaluator  Evaluator
	Thresholds policy.Thresholds
	UI         UISink
	AuditLog   *audit.Log   // optional
	Logger     *slog.Logger // optional
}

// Reconciler is the stateful coordinator deciding, per tab and per
// navigation, which checks run and what the user sees.
type Reconciler struct {
	sessions  *session.Store
	bypass    *bypass.Registry
	evaluator Evaluator
	ui        UISink
	auditLog  *audit.Log
	logger    *slog.Logger

	mu         sync.Mutex
	rules      *skip.Rules
	thresholds policy.Thresholds
	tabs       map[int]*tabState
}

// New creates a Reconciler.
func New(cfg Config) *Reconciler {
	if cfg.Rules == nil {
		cfg.Rules = skip.NewDefault()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Thresholds == (policy.Thresholds{}) {
		cfg.Thresholds = policy.DefaultThresholds()
	}
	return &Reconciler{
		sessions:   cfg.Sessions,
		bypass:     cfg.Bypass,
		evaluator:  cfg.Evaluator,
		ui:         cfg.UI,
		auditLog:   cfg.AuditLog,
		logger:     cfg.Logger,
		rules:      cfg.Rules,
		thresholds: cfg.Thresholds,
		tabs:       make(map[int]*tabState),
	}
}

// SetRules swaps the skip rules (hot reload).
func (r *Reconciler) SetRules(rules *skip.Rules) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = rules
}

// SetThresholds swaps the decision thresholds (hot reload).
func (r *Reconciler) SetThresholds(t policy.Thresholds) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.thresholds = t
}

// Thresholds returns the current decision thresholds.
func (r *Reconciler) Thresholds() policy.Thresholds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.thresholds
}

// HandleNavigation processes a navigation-start event. Sub-frame loads are
// ignored. Exempt or bypassed destinations never reach the evaluator.
func (r *Reconciler) HandleNavigation(ctx context.Context, ev model.NavigationEvent) {
	if !ev.MainFrame {
		return
	}

	r.mu.Lock()
	rules := r.rules
	r.mu.Unlock()

	if rules.ShouldSkip(ev.URL) {
		r.logger.Debug("navigation exempt", "tab", ev.TabID, "url", ev.URL)
		r.ui.ClearBadge(ev.TabID)
		return
	}

	if r.bypass != nil && r.bypass.Allowed(ev.URL) {
		r.logger.Info("bypass live, navigation unchecked", "tab", ev.TabID, "url", ev.URL)
		r.ui.SetBadge(ev.TabID, policy.BadgeVerified)
		return
	}

	if !r.sessions.ShouldCheck(ev.TabID, session.Domain(ev.URL)) {
		r.logger.Debug("same-domain renavigation suppressed", "tab", ev.TabID, "url", ev.URL)
		return
	}

	checkID := uuid.NewString()
	r.sessions.BeginCheck(ev.TabID, ev.URL)

	checkCtx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	ts, ok := r.tabs[ev.TabID]
	if !ok {
		ts = &tabState{}
		r.tabs[ev.TabID] = ts
	}
	if ts.cancel != nil {
		// A new navigation abandons interest in the previous in-flight
		// check. The network call is not forcibly aborted server-side; the
		// stale-result guard discards its outcome either way.
		ts.cancel()
	}
	ts.state = StateChecking
	ts.loaded = false
	ts.checkID = checkID
	ts.cancel = cancel
	r.mu.Unlock()

	r.logger.Info("check started", "check", checkID, "tab", ev.TabID, "url", ev.URL)

	go func() {
		defer cancel()
		err := r.evaluator.Evaluate(checkCtx, ev.TabID, ev.URL, func(v model.Verdict) {
			r.onVerdict(ev.TabID, ev.URL, checkID, v)
		})
		if err != nil && checkCtx.Err() == nil {
			r.onCheckError(ev.TabID, ev.URL, checkID, err)
		}
	}()
}

// onVerdict reconciles one verdict (provisional or final) with the tab's
// current state. Stale verdicts have zero observable effect.
func (r *Reconciler) onVerdict(tabID int, url, checkID string, v model.Verdict) {
	if !r.sessions.CompleteCheck(tabID, url, &v) {
		// Expected whenever the user navigated again before the check
		// finished, or closed the tab. Not an error.
		r.logger.Debug("stale verdict discarded", "check", checkID, "tab", tabID, "url", url)
		return
	}

	r.mu.Lock()
	thresholds := r.thresholds
	ts, ok := r.tabs[tabID]
	if !ok || ts.checkID != checkID {
		r.mu.Unlock()
		r.logger.Debug("verdict for closed or superseded tab discarded", "check", checkID, "tab", tabID)
		return
	}

	d := policy.Decide(&v, thresholds)

	if !v.Final {
		ts.state = StateProvisional
		r.mu.Unlock()

		// Optimistic badge only; the notification waits for the final word.
		r.ui.SetBadge(tabID, d.Badge)
		r.record(checkID, tabID, &v, d, "provisional")
		return
	}

	ts.state = StateResolved
	deliverNow := d.Action == model.Block || ts.loaded
	r.mu.Unlock()

	r.ui.SetBadge(tabID, d.Badge)
	r.record(checkID, tabID, &v, d, "final")

	if deliverNow {
		// Severe verdicts interrupt the render; non-severe ones landing
		// after page-complete would otherwise wait for an event that
		// already fired.
		if taken := r.sessions.TakeVerdict(tabID); taken != nil {
			r.deliver(tabID, d, *taken)
		}
	}
}

// HandlePageComplete processes a page-load-complete event: the natural
// checkpoint for delivering a deferred verdict.
func (r *Reconciler) HandlePageComplete(tabID int) {
	r.mu.Lock()
	ts, ok := r.tabs[tabID]
	if !ok {
		r.mu.Unlock()
		return
	}
	ts.loaded = true
	resolved := ts.state == StateResolved
	thresholds := r.thresholds
	r.mu.Unlock()

	if !resolved {
		// Phase 2 still pending; its final verdict will deliver itself.
		return
	}

	if v := r.sessions.TakeVerdict(tabID); v != nil {
		r.deliver(tabID, policy.Decide(v, thresholds), *v)
	}
}

// HandleTabRemoved absorbs any state into CLOSED: session destroyed, state
// dropped, in-flight work cancelled. Its eventual result is discarded by the
// stale-result guard.
func (r *Reconciler) HandleTabRemoved(tabID int) {
	r.mu.Lock()
	ts, ok := r.tabs[tabID]
	if ok {
		delete(r.tabs, tabID)
	}
	r.mu.Unlock()

	if ok && ts.cancel != nil {
		ts.cancel()
	}
	r.sessions.Destroy(tabID)
	r.logger.Debug("tab closed", "tab", tabID)
}

// HandleBypass registers a user override for the exact URL and returns the
// affected tabs to IDLE so their next navigation to it skips checking.
func (r *Reconciler) HandleBypass(url string) {
	if r.bypass != nil {
		r.bypass.Add(url)
	}

	tabs := r.sessions.ResetForURL(url)

	r.mu.Lock()
	for _, id := range tabs {
		if ts, ok := r.tabs[id]; ok {
			if ts.cancel != nil {
				ts.cancel()
				ts.cancel = nil
			}
			ts.state = StateIdle
			ts.checkID = ""
		}
	}
	r.mu.Unlock()

	r.logger.Info("bypass registered", "url", url, "tabs", len(tabs))
	if r.auditLog != nil {
		r.auditLog.Record(audit.Entry{
			Event: audit.EventBypass,
			URL:   url,
		})
	}
}

// onCheckError applies the failure semantics: transition back to IDLE and
// fail open with an error badge. Stale errors are ignored.
func (r *Reconciler) onCheckError(tabID int, url, checkID string, err error) {
	if !r.sessions.FailCheck(tabID, url) {
		return
	}

	r.mu.Lock()
	ts, ok := r.tabs[tabID]
	if ok && ts.checkID == checkID {
		ts.state = StateIdle
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	r.logger.Warn("check failed open", "check", checkID, "tab", tabID, "url", url, "err", err)
	r.ui.SetBadge(tabID, policy.BadgeError)
	if r.auditLog != nil {
		r.auditLog.Record(audit.Entry{
			Event:   audit.EventError,
			CheckID: checkID,
			TabID:   tabID,
			URL:     url,
			Detail:  err.Error(),
		})
	}
}

// deliver pushes the notification and returns the tab to IDLE: the
// navigation is fully arbitrated.
func (r *Reconciler) deliver(tabID int, d model.Decision, v model.Verdict) {
	r.ui.Notify(tabID, d, v)

	r.mu.Lock()
	if ts, ok := r.tabs[tabID]; ok && ts.state == StateResolved {
		ts.state = StateIdle
	}
	r.mu.Unlock()
}

// TabState reports the current machine state for a tab. Closed or never-seen
// tabs are IDLE.
func (r *Reconciler) TabState(tabID int) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ts, ok := r.tabs[tabID]; ok {
		return ts.state
	}
	return StateIdle
}

func (r *Reconciler) record(checkID string, tabID int, v *model.Verdict, d model.Decision, stage string) {
	if r.auditLog == nil {
		return
	}
	r.auditLog.Record(audit.Entry{
		Event:     audit.EventDecision,
		CheckID:   checkID,
		TabID:     tabID,
		URL:       v.URL,
		Phase:     string(v.SourcePhase),
		Stage:     stage,
		RiskPct:   v.RiskScore,
		RiskLevel: string(v.RiskLevel),
		Action:    string(d.Action),
		Detail:    v.Message,
	})
}
