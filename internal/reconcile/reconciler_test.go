package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/navguard/internal/bypass"
	"github.com/ppiankov/navguard/internal/model"
	"github.com/ppiankov/navguard/internal/policy"
	"github.com/ppiankov/navguard/internal/session"
)

type evalFunc func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error

func (f evalFunc) Evaluate(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
	return f(ctx, tabID, url, emit)
}

// recordingUI captures directives for assertions.
type recordingUI struct {
	mu      sync.Mutex
	badges  map[int][]model.Badge
	cleared map[int]int
	notices map[int][]model.Decision
}

func newRecordingUI() *recordingUI {
	return &recordingUI{
		badges:  make(map[int][]model.Badge),
		cleared: make(map[int]int),
		notices: make(map[int][]model.Decision),
	}
}

func (u *recordingUI) SetBadge(tabID int, b model.Badge) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.badges[tabID] = append(u.badges[tabID], b)
}

func (u *recordingUI) Notify(tabID int, d model.Decision, v model.Verdict) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notices[tabID] = append(u.notices[tabID], d)
}

func (u *recordingUI) ClearBadge(tabID int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.cleared[tabID]++
}

func (u *recordingUI) lastBadge(tabID int) (model.Badge, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	bs := u.badges[tabID]
	if len(bs) == 0 {
		return model.Badge{}, false
	}
	return bs[len(bs)-1], true
}

func (u *recordingUI) noticeCount(tabID int) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.notices[tabID])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func nav(tabID int, url string) model.NavigationEvent {
	return model.NavigationEvent{TabID: tabID, URL: url, MainFrame: true, At: time.Now()}
}

func newReconciler(eval Evaluator, ui UISink) *Reconciler {
	return New(Config{
		Sessions:  session.NewStore(0),
		Bypass:    bypass.NewRegistry(time.Minute),
		Evaluator: eval,
		UI:        ui,
	})
}

func TestExemptNavigationClearsBadge(t *testing.T) {
	ui := newRecordingUI()
	called := false
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		called = true
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://github.com/ppiankov/navguard"))

	if called {
		t.Error("exempt destination must not be evaluated")
	}
	ui.mu.Lock()
	defer ui.mu.Unlock()
	if ui.cleared[1] != 1 {
		t.Errorf("ClearBadge calls = %d, want 1", ui.cleared[1])
	}
	if r.TabState(1) != StateIdle {
		t.Errorf("state = %s, want IDLE", r.TabState(1))
	}
}

func TestSubFrameIgnored(t *testing.T) {
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		t.Error("sub-frame navigation must not start a check")
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), model.NavigationEvent{TabID: 1, URL: "https://ad.example/frame", MainFrame: false})
}

func TestSevereVerdictDeliversImmediately(t *testing.T) {
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		emit(model.Verdict{URL: url, RiskScore: 92, RiskLevel: model.LevelVerySuspicious, SourcePhase: model.PhaseURLOnly, Final: true})
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://phish.test/login"))

	waitFor(t, func() bool { return ui.noticeCount(1) == 1 })

	b, _ := ui.lastBadge(1)
	if b != policy.BadgeBlock {
		t.Errorf("badge = %+v, want block badge", b)
	}
	waitFor(t, func() bool { return r.TabState(1) == StateIdle })
}

func TestDeferredDeliveryAtPageComplete(t *testing.T) {
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		emit(model.Verdict{URL: url, RiskScore: 45, RiskLevel: model.LevelMedium, SourcePhase: model.PhaseURLOnly})
		emit(model.Verdict{URL: url, RiskScore: 20, RiskLevel: model.LevelSafe, SourcePhase: model.PhaseFull, Final: true})
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://maybe.test/"))

	waitFor(t, func() bool { return r.TabState(1) == StateResolved })
	if n := ui.noticeCount(1); n != 0 {
		t.Fatalf("notification delivered before page complete: %d", n)
	}

	r.HandlePageComplete(1)

	if ui.noticeCount(1) != 1 {
		t.Fatal("expected notification at page complete")
	}
	ui.mu.Lock()
	d := ui.notices[1][0]
	ui.mu.Unlock()
	if d.Action != model.Allow {
		t.Errorf("delivered action = %s, want allow (phase 2 downgraded)", d.Action)
	}
	if r.TabState(1) != StateIdle {
		t.Errorf("state = %s, want IDLE after delivery", r.TabState(1))
	}
}

func TestLateFinalDeliversAfterLoad(t *testing.T) {
	release := make(chan struct{})
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		emit(model.Verdict{URL: url, RiskScore: 45, RiskLevel: model.LevelMedium, SourcePhase: model.PhaseURLOnly})
		<-release
		emit(model.Verdict{URL: url, RiskScore: 20, SourcePhase: model.PhaseFull, Final: true})
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://slow.test/"))
	waitFor(t, func() bool { return r.TabState(1) == StateProvisional })

	// Page finishes loading while phase 2 is still in flight.
	r.HandlePageComplete(1)
	if ui.noticeCount(1) != 0 {
		t.Fatal("nothing to deliver yet")
	}

	close(release)

	// The final verdict must not wait for a page-complete that already fired.
	waitFor(t, func() bool { return ui.noticeCount(1) == 1 })
}

func TestSupersededCheckDiscarded(t *testing.T) {
	release := make(chan struct{})
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		if url == "https://first.test/" {
			<-release
			emit(model.Verdict{URL: url, RiskScore: 95, RiskLevel: model.LevelVerySuspicious, Final: true})
			return nil
		}
		emit(model.Verdict{URL: url, RiskScore: 5, SourcePhase: model.PhaseFull, Final: true})
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://first.test/"))
	r.HandleNavigation(context.Background(), nav(1, "https://second.test/"))

	waitFor(t, func() bool { return r.TabState(1) == StateResolved })
	close(release)

	// Give the stale verdict a chance to (incorrectly) surface.
	time.Sleep(50 * time.Millisecond)

	b, ok := ui.lastBadge(1)
	if !ok || b != policy.BadgeSafe {
		t.Errorf("badge = %+v, want safe badge from the live check only", b)
	}
	if ui.noticeCount(1) != 0 {
		t.Error("superseded check must not notify")
	}
}

func TestTabRemovedDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		<-release
		emit(model.Verdict{URL: url, RiskScore: 95, RiskLevel: model.LevelVerySuspicious, Final: true})
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(3, "https://gone.test/"))
	r.HandleTabRemoved(3)
	close(release)

	time.Sleep(50 * time.Millisecond)

	if _, ok := ui.lastBadge(3); ok {
		t.Error("closed tab must receive no directives")
	}
	if r.TabState(3) != StateIdle {
		t.Errorf("state = %s, want IDLE for closed tab", r.TabState(3))
	}
}

func TestBypassSkipsRecheck(t *testing.T) {
	ui := newRecordingUI()
	calls := 0
	var mu sync.Mutex
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		mu.Lock()
		calls++
		mu.Unlock()
		emit(model.Verdict{URL: url, RiskScore: 95, RiskLevel: model.LevelVerySuspicious, Final: true})
		return nil
	}), ui)

	const target = "https://flagged.test/login"
	r.HandleNavigation(context.Background(), nav(1, target))
	waitFor(t, func() bool { return ui.noticeCount(1) == 1 })

	r.HandleBypass(target)
	if r.TabState(1) != StateIdle {
		t.Fatalf("state = %s, want IDLE after bypass", r.TabState(1))
	}

	r.HandleNavigation(context.Background(), nav(1, target))

	mu.Lock()
	got := calls
	mu.Unlock()
	if got != 1 {
		t.Errorf("evaluator calls = %d, want 1 (renavigation inside TTL is unchecked)", got)
	}
	b, _ := ui.lastBadge(1)
	if b != policy.BadgeVerified {
		t.Errorf("badge = %+v, want verified badge", b)
	}
}

func TestCheckErrorFailsOpen(t *testing.T) {
	ui := newRecordingUI()
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		return errors.New("classifier unreachable")
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://a.test/"))

	waitFor(t, func() bool {
		b, ok := ui.lastBadge(1)
		return ok && b == policy.BadgeError
	})
	if r.TabState(1) != StateIdle {
		t.Errorf("state = %s, want IDLE after failure", r.TabState(1))
	}
	if ui.noticeCount(1) != 0 {
		t.Error("failed check must not notify")
	}
}

func TestSameDomainRenavigationSuppressed(t *testing.T) {
	ui := newRecordingUI()
	calls := 0
	var mu sync.Mutex
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		mu.Lock()
		calls++
		mu.Unlock()
		emit(model.Verdict{URL: url, RiskScore: 5, SourcePhase: model.PhaseFull, Final: true})
		return nil
	}), ui)

	r.HandleNavigation(context.Background(), nav(1, "https://shop.example.io/"))
	waitFor(t, func() bool { return r.TabState(1) == StateResolved })

	r.HandleNavigation(context.Background(), nav(1, "https://shop.example.io/cart"))

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Errorf("evaluator calls = %d, want 1", calls)
	}
}

func TestThresholdHotSwap(t *testing.T) {
	r := newReconciler(evalFunc(func(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
		return nil
	}), newRecordingUI())

	next := policy.Thresholds{WarnPct: 20, BlockPct: 50, Phase1HighPct: 30}
	r.SetThresholds(next)

	if got := r.Thresholds(); got != next {
		t.Errorf("Thresholds = %+v, want %+v", got, next)
	}
}
