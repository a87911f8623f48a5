// Package evaluate orchestrates the two-phase check against the remote
// classifier: a fast URL-only pass, then a slower content-inclusive pass
// whose result supersedes the first for display purposes.
package evaluate

import (
	"context"
	"log/slog"
	"time"

	"github.com/ppiankov/navguard/internal/bypass"
	"github.com/ppiankov/navguard/internal/classify"
	"github.com/ppiankov/navguard/internal/model"
	"github.com/ppiankov/navguard/internal/policy"
)

// DefaultSettleDelay is how long to wait before capturing page content,
// letting dynamic rendering finish. Skipping it degrades capture quality,
// not correctness.
const DefaultSettleDelay = 1500 * time.Millisecond

// Capturer returns a page's current rendered markup. Capture may fail for
// restricted pages or when navigation has already moved on; failure degrades
// the check to URL-only mode.
type Capturer interface {
	Capture(ctx context.Context, tabID int) (string, error)
}

// NopCapturer always reports capture as unavailable.
type NopCapturer struct{}

func (NopCapturer) Capture(ctx context.Context, tabID int) (string, error) { return "", nil }

// Classifier is the remote scoring collaborator.
type Classifier interface {
	CheckURL(ctx context.Context, url string) (*model.Verdict, error)
	CheckFull(ctx context.Context, url, html string) (*model.Verdict, error)
}

// Evaluator runs tiered checks. It never touches UI; its only side effects
// are network calls and the capture request.
type Evaluator struct {
	classifier  Classifier
	cache       *classify.VerdictCache
	bypass      *bypass.Registry
	capturer    Capturer
	settleDelay time.Duration
	thresholds  func() policy.Thresholds
	logger      *slog.Logger
}

// Config assembles an Evaluator.
type Config struct {
	Classifier  Classifier
	Cache       *classify.VerdictCache // optional
	Bypass      *bypass.Registry       // optional
	Capturer    Capturer               // optional, defaults to NopCapturer
	SettleDelay time.Duration          // <= 0 uses DefaultSettleDelay
	Thresholds  func() policy.Thresholds
	Logger      *slog.Logger // optional
}

// New creates an Evaluator.
func New(cfg Config) *Evaluator {
	if cfg.Capturer == nil {
		cfg.Capturer = NopCapturer{}
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Thresholds == nil {
		def := policy.DefaultThresholds()
		cfg.Thresholds = func() policy.Thresholds { return def }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Evaluator{
		classifier:  cfg.Classifier,
		cache:       cfg.Cache,
		bypass:      cfg.Bypass,
		capturer:    cfg.Capturer,
		settleDelay: cfg.SettleDelay,
		thresholds:  cfg.Thresholds,
		logger:      cfg.Logger,
	}
}

// Evaluate runs the tiered check for one navigation, calling emit for each
// verdict produced (one provisional at most, one final at most). It blocks
// until the evaluation finishes; callers run it on its own goroutine, one
// per navigation. For a single navigation Phase 1 always completes or errors
// before Phase 2 begins.
//
// A live bypass entry short-circuits the whole evaluation: no verdicts, no
// network calls. A Phase 1 error aborts with that error so the caller can
// fail open. A Phase 2 error finalizes on the Phase 1 provisional verdict
// instead of escalating.
func (e *Evaluator) Evaluate(ctx context.Context, tabID int, url string, emit func(model.Verdict)) error {
	if e.bypass != nil && e.bypass.Allowed(url) {
		e.logger.Debug("bypass live, skipping evaluation", "tab", tabID, "url", url)
		return nil
	}

	p1, err := e.phase1(ctx, url)
	if err != nil {
		return err
	}

	if policy.Severe(p1, e.thresholds()) {
		final := *p1
		final.Final = true
		emit(final)
		return nil
	}

	provisional := *p1
	provisional.Final = false
	emit(provisional)

	// Settle delay: a pure timer. Cancellation here only abandons a check
	// whose result would be discarded by the stale guard anyway.
	select {
	case <-time.After(e.settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}

	html, err := e.capturer.Capture(ctx, tabID)
	if err != nil {
		e.logger.Debug("content capture failed, degrading to URL-only", "tab", tabID, "err", err)
		html = ""
	}

	p2, err := e.phase2(ctx, url, html)
	if err != nil {
		e.logger.Warn("phase 2 failed, finalizing on phase 1 verdict", "tab", tabID, "url", url, "err", err)
		fallback := *p1
		fallback.Final = true
		emit(fallback)
		return nil
	}

	final := *p2
	final.Final = true
	emit(final)
	return nil
}

func (e *Evaluator) phase1(ctx context.Context, url string) (*model.Verdict, error) {
	if e.cache != nil {
		if v, ok := e.cache.Get(model.PhaseURLOnly, url); ok {
			return v, nil
		}
	}
	v, err := e.classifier.CheckURL(ctx, url)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Put(model.PhaseURLOnly, url, v)
	}
	return v, nil
}

func (e *Evaluator) phase2(ctx context.Context, url, html string) (*model.Verdict, error) {
	// Only content-free results are safe to share across navigations; a
	// capture is specific to whatever the tab rendered at that moment.
	if html == "" && e.cache != nil {
		if v, ok := e.cache.Get(model.PhaseFull, url); ok {
			return v, nil
		}
	}
	v, err := e.classifier.CheckFull(ctx, url, html)
	if err != nil {
		return nil, err
	}
	if html == "" && e.cache != nil {
		e.cache.Put(model.PhaseFull, url, v)
	}
	return v, nil
}
