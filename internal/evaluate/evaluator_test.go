package evaluate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ppiankov/navguard/internal/bypass"
	"github.com/ppiankov/navguard/internal/classify"
	"github.com/ppiankov/navguard/internal/model"
)

type fakeClassifier struct {
	urlVerdict  *model.Verdict
	urlErr      error
	fullVerdict *model.Verdict
	fullErr     error

	urlCalls  int
	fullCalls int
	lastHTML  string
}

func (f *fakeClassifier) CheckURL(ctx context.Context, url string) (*model.Verdict, error) {
	f.urlCalls++
	if f.urlErr != nil {
		return nil, f.urlErr
	}
	v := *f.urlVerdict
	v.URL = url
	v.SourcePhase = model.PhaseURLOnly
	return &v, nil
}

func (f *fakeClassifier) CheckFull(ctx context.Context, url, html string) (*model.Verdict, error) {
	f.fullCalls++
	f.lastHTML = html
	if f.fullErr != nil {
		return nil, f.fullErr
	}
	v := *f.fullVerdict
	v.URL = url
	v.SourcePhase = model.PhaseFull
	return &v, nil
}

type fixedCapturer struct {
	html string
	err  error
}

func (f fixedCapturer) Capture(ctx context.Context, tabID int) (string, error) {
	return f.html, f.err
}

func collect(dst *[]model.Verdict) func(model.Verdict) {
	return func(v model.Verdict) { *dst = append(*dst, v) }
}

func TestSeverePhase1ShortCircuits(t *testing.T) {
	fc := &fakeClassifier{
		urlVerdict: &model.Verdict{RiskScore: 92, RiskLevel: model.LevelVerySuspicious},
	}
	e := New(Config{Classifier: fc, SettleDelay: time.Millisecond})

	var got []model.Verdict
	if err := e.Evaluate(context.Background(), 1, "https://phish.test/", collect(&got)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("emitted %d verdicts, want 1", len(got))
	}
	if !got[0].Final {
		t.Error("severe phase 1 verdict must be final")
	}
	if got[0].SourcePhase != model.PhaseURLOnly {
		t.Errorf("source phase = %q", got[0].SourcePhase)
	}
	if fc.fullCalls != 0 {
		t.Error("severe phase 1 must skip phase 2 entirely")
	}
}

func TestProvisionalThenFinal(t *testing.T) {
	fc := &fakeClassifier{
		urlVerdict:  &model.Verdict{RiskScore: 45, RiskLevel: model.LevelMedium},
		fullVerdict: &model.Verdict{RiskScore: 20, RiskLevel: model.LevelSafe},
	}
	e := New(Config{
		Classifier:  fc,
		Capturer:    fixedCapturer{html: "<html>ok</html>"},
		SettleDelay: time.Millisecond,
	})

	var got []model.Verdict
	if err := e.Evaluate(context.Background(), 1, "https://maybe.test/", collect(&got)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("emitted %d verdicts, want provisional + final", len(got))
	}
	if got[0].Final || got[0].RiskScore != 45 {
		t.Errorf("first verdict = %+v, want provisional phase 1", got[0])
	}
	if !got[1].Final || got[1].RiskScore != 20 {
		t.Errorf("second verdict = %+v, want final phase 2", got[1])
	}
	if fc.lastHTML != "<html>ok</html>" {
		t.Errorf("phase 2 html = %q, want captured markup", fc.lastHTML)
	}
}

func TestPhase2FailureFinalizesPhase1(t *testing.T) {
	fc := &fakeClassifier{
		urlVerdict: &model.Verdict{RiskScore: 45, RiskLevel: model.LevelMedium},
		fullErr:    errors.New("classifier restarting"),
	}
	e := New(Config{Classifier: fc, SettleDelay: time.Millisecond})

	var got []model.Verdict
	if err := e.Evaluate(context.Background(), 1, "https://maybe.test/", collect(&got)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("emitted %d verdicts, want 2", len(got))
	}
	final := got[1]
	if !final.Final {
		t.Error("fallback verdict must be final")
	}
	if final.RiskScore != 45 || final.SourcePhase != model.PhaseURLOnly {
		t.Errorf("fallback = %+v, want the phase 1 verdict", final)
	}
}

func TestPhase1FailurePropagates(t *testing.T) {
	fc := &fakeClassifier{urlErr: errors.New("connection refused")}
	e := New(Config{Classifier: fc, SettleDelay: time.Millisecond})

	var got []model.Verdict
	err := e.Evaluate(context.Background(), 1, "https://a.test/", collect(&got))
	if err == nil {
		t.Fatal("expected phase 1 error to propagate")
	}
	if len(got) != 0 {
		t.Errorf("no verdicts should be emitted on phase 1 failure, got %d", len(got))
	}
}

func TestBypassShortCircuits(t *testing.T) {
	reg := bypass.NewRegistry(time.Minute)
	reg.Add("https://flagged.test/")

	fc := &fakeClassifier{urlVerdict: &model.Verdict{RiskScore: 99}}
	e := New(Config{Classifier: fc, Bypass: reg, SettleDelay: time.Millisecond})

	var got []model.Verdict
	if err := e.Evaluate(context.Background(), 1, "https://flagged.test/", collect(&got)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if len(got) != 0 {
		t.Errorf("bypassed navigation must emit no verdicts, got %d", len(got))
	}
	if fc.urlCalls != 0 || fc.fullCalls != 0 {
		t.Error("bypassed navigation must make no classifier calls")
	}
}

func TestCaptureFailureDegradesToURLOnly(t *testing.T) {
	fc := &fakeClassifier{
		urlVerdict:  &model.Verdict{RiskScore: 45, RiskLevel: model.LevelMedium},
		fullVerdict: &model.Verdict{RiskScore: 45, RiskLevel: model.LevelMedium},
	}
	e := New(Config{
		Classifier:  fc,
		Capturer:    fixedCapturer{err: errors.New("tab navigated away")},
		SettleDelay: time.Millisecond,
	})

	var got []model.Verdict
	if err := e.Evaluate(context.Background(), 1, "https://a.test/", collect(&got)); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}

	if fc.fullCalls != 1 {
		t.Fatal("phase 2 must still run after a capture failure")
	}
	if fc.lastHTML != "" {
		t.Errorf("phase 2 html = %q, want empty after capture failure", fc.lastHTML)
	}
}

func TestCancellationDuringSettle(t *testing.T) {
	fc := &fakeClassifier{
		urlVerdict: &model.Verdict{RiskScore: 45, RiskLevel: model.LevelMedium},
	}
	e := New(Config{Classifier: fc, SettleDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	var got []model.Verdict

	done := make(chan error, 1)
	go func() {
		done <- e.Evaluate(ctx, 1, "https://a.test/", collect(&got))
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Evaluate did not return after cancellation")
	}

	if fc.fullCalls != 0 {
		t.Error("cancelled evaluation must not reach phase 2")
	}
}

func TestPhase1CacheHitSkipsNetwork(t *testing.T) {
	cache := classify.NewVerdictCache(8, time.Minute)
	fc := &fakeClassifier{
		urlVerdict:  &model.Verdict{RiskScore: 10},
		fullVerdict: &model.Verdict{RiskScore: 10},
	}
	e := New(Config{Classifier: fc, Cache: cache, SettleDelay: time.Millisecond})

	var got []model.Verdict
	for i := 0; i < 2; i++ {
		if err := e.Evaluate(context.Background(), 1, "https://a.test/", collect(&got)); err != nil {
			t.Fatalf("Evaluate #%d: %v", i, err)
		}
	}

	if fc.urlCalls != 1 {
		t.Errorf("phase 1 network calls = %d, want 1 (second should hit cache)", fc.urlCalls)
	}
	// Content-free phase 2 results are shareable too.
	if fc.fullCalls != 1 {
		t.Errorf("phase 2 network calls = %d, want 1", fc.fullCalls)
	}
}
