// Package server assembles the arbitration engine and exposes the
// extension-facing HTTP API: lifecycle events in, UI directives out.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/ppiankov/navguard/internal/audit"
	"github.com/ppiankov/navguard/internal/bypass"
	"github.com/ppiankov/navguard/internal/classify"
	"github.com/ppiankov/navguard/internal/config"
	"github.com/ppiankov/navguard/internal/evaluate"
	"github.com/ppiankov/navguard/internal/model"
	"github.com/ppiankov/navguard/internal/policy"
	"github.com/ppiankov/navguard/internal/reconcile"
	"github.com/ppiankov/navguard/internal/session"
	"github.com/ppiankov/navguard/internal/skip"
)

// Engine wires every component of the arbitration pipeline behind one HTTP
// surface.
type Engine struct {
	cfg        *config.Config
	configPath string

	sessions   *session.Store
	bypassReg  *bypass.Registry
	directives *DirectiveBuffer
	capture    *CaptureBuffer
	reconciler *reconcile.Reconciler
	auditLog   *audit.Log
	logger     *slog.Logger

	httpServer *http.Server
}

// NewEngine builds an Engine from configuration.
func NewEngine(cfg *config.Config, configPath string) (*Engine, error) {
	rules, err := skip.Load(cfg.AllowlistPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load allowlist: %w", err)
	}

	var auditLog *audit.Log
	if cfg.AuditLogPath != "" {
		auditLog, err = audit.Open(cfg.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open audit log: %w", err)
		}
	}

	sessions := session.NewStore(cfg.SessionStaleAfter.D())
	bypassReg := bypass.NewRegistry(cfg.BypassTTL.D())
	directives := NewDirectiveBuffer()
	capture := NewCaptureBuffer()

	client := classify.NewClient(cfg.Classifier.BaseURL, cfg.Classifier.Phase1Timeout.D(), cfg.Classifier.Phase2Timeout.D())
	cache := classify.NewVerdictCache(cfg.Classifier.CacheSize, cfg.Classifier.CacheTTL.D())

	e := &Engine{
		cfg:        cfg,
		configPath: configPath,
		sessions:   sessions,
		bypassReg:  bypassReg,
		directives: directives,
		capture:    capture,
		auditLog:   auditLog,
		logger:     slog.Default(),
	}

	evaluator := evaluate.New(evaluate.Config{
		Classifier:  client,
		Cache:       cache,
		Bypass:      bypassReg,
		Capturer:    capture,
		SettleDelay: cfg.Classifier.SettleDelay.D(),
		Thresholds:  func() policy.Thresholds { return e.reconciler.Thresholds() },
	})

	e.reconciler = reconcile.New(reconcile.Config{
		Rules:      rules,
		Sessions:   sessions,
		Bypass:     bypassReg,
		Evaluator:  evaluator,
		Thresholds: cfg.Thresholds,
		UI:         directives,
		AuditLog:   auditLog,
	})

	e.httpServer = &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      e.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return e, nil
}

// Handler builds the HTTP routing table with CORS for the extension origin.
func (e *Engine) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", e.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/events/navigation", e.handleNavigation).Methods(http.MethodPost)
	r.HandleFunc("/events/complete", e.handleComplete).Methods(http.MethodPost)
	r.HandleFunc("/events/tab-removed", e.handleTabRemoved).Methods(http.MethodPost)
	r.HandleFunc("/bypass", e.handleBypass).Methods(http.MethodPost)
	r.HandleFunc("/tabs/{id}/directives", e.handleDirectives).Methods(http.MethodGet)

	origins := e.cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"chrome-extension://*", "moz-extension://*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(r)
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (e *Engine) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.httpServer.Shutdown(shutdownCtx)
}

// Bypass registers a user override directly (CLI and MCP surfaces).
func (e *Engine) Bypass(url string) {
	e.reconciler.HandleBypass(url)
}

// Sessions exposes the session store for status surfaces.
func (e *Engine) Sessions() *session.Store { return e.sessions }

// BypassRegistry exposes the bypass registry for status surfaces and sweeps.
func (e *Engine) BypassRegistry() *bypass.Registry { return e.bypassReg }

// Reconciler exposes the reconciler for test drivers.
func (e *Engine) Reconciler() *reconcile.Reconciler { return e.reconciler }

// Reload re-reads the config and allowlist files and swaps thresholds and
// skip rules atomically. Listener address and classifier endpoint changes
// require a restart and are ignored here.
func (e *Engine) Reload() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	rules, err := skip.Load(cfg.AllowlistPath)
	if err != nil {
		return fmt.Errorf("reload allowlist: %w", err)
	}
	e.reconciler.SetThresholds(cfg.Thresholds)
	e.reconciler.SetRules(rules)
	e.logger.Info("configuration reloaded", "path", e.configPath)
	return nil
}

// Close releases engine resources.
func (e *Engine) Close() error {
	if e.auditLog != nil {
		return e.auditLog.Close()
	}
	return nil
}

// --- Handlers ---

type navigationRequest struct {
	TabID     int    `json:"tab_id"`
	URL       string `json:"url"`
	MainFrame bool   `json:"main_frame"`
}

type completeRequest struct {
	TabID int    `json:"tab_id"`
	HTML  string `json:"html,omitempty"`
}

type tabRemovedRequest struct {
	TabID int `json:"tab_id"`
}

type bypassRequest struct {
	Action string `json:"action"`
	URL    string `json:"url"`
}

func (e *Engine) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Engine) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var req navigationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "tab_id and url are required")
		return
	}

	e.capture.Invalidate(req.TabID)
	e.reconciler.HandleNavigation(r.Context(), model.NavigationEvent{
		TabID:     req.TabID,
		URL:       req.URL,
		MainFrame: req.MainFrame,
		At:        time.Now(),
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (e *Engine) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	if req.HTML != "" {
		e.capture.Put(req.TabID, req.HTML)
	}
	e.reconciler.HandlePageComplete(req.TabID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Engine) handleTabRemoved(w http.ResponseWriter, r *http.Request) {
	var req tabRemovedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	e.reconciler.HandleTabRemoved(req.TabID)
	e.capture.Invalidate(req.TabID)
	e.directives.Drop(req.TabID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Engine) handleBypass(w http.ResponseWriter, r *http.Request) {
	var req bypassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Action != "" && req.Action != "BYPASS_URL" {
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	e.reconciler.HandleBypass(req.URL)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (e *Engine) handleDirectives(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid tab id")
		return
	}
	writeJSON(w, http.StatusOK, e.directives.Take(id))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
