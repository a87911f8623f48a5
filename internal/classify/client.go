// Package classify is the HTTP client for the remote risk classifier.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ppiankov/navguard/internal/model"
)

const (
	// DefaultPhase1Timeout bounds the fast URL-only request.
	DefaultPhase1Timeout = 5 * time.Second
	// DefaultPhase2Timeout bounds the content-inclusive request, which
	// carries full page markup and takes longer server-side.
	DefaultPhase2Timeout = 8 * time.Second
)

// request is the wire format of POST /predict.
type request struct {
	URL          string  `json:"url"`
	HTMLContent  *string `json:"html_content"`
	HTMLCaptured bool    `json:"html_captured"`
}

// response is the classifier's wire format.
type response struct {
	RiskLevel      string   `json:"risk_level"`
	FinalRiskPct   float64  `json:"final_risk_pct"`
	URLProb        float64  `json:"url_prob"`
	ContentProb    *float64 `json:"content_prob"`
	Overridden     bool     `json:"overridden"`
	OverrideReason *string  `json:"override_reason"`
	Message        *string  `json:"message"`
	Whitelisted    bool     `json:"whitelisted"`
}

// Client calls the remote classifier over HTTP.
type Client struct {
	baseURL       string
	httpClient    *http.Client
	phase1Timeout time.Duration
	phase2Timeout time.Duration
}

// NewClient creates a classifier client. Zero timeouts use the defaults.
func NewClient(baseURL string, phase1, phase2 time.Duration) *Client {
	if phase1 <= 0 {
		phase1 = DefaultPhase1Timeout
	}
	if phase2 <= 0 {
		phase2 = DefaultPhase2Timeout
	}
	return &Client{
		baseURL:       baseURL,
		httpClient:    &http.Client{},
		phase1Timeout: phase1,
		phase2Timeout: phase2,
	}
}

// CheckURL runs the fast URL-only classification (Phase 1).
func (c *Client) CheckURL(ctx context.Context, url string) (*model.Verdict, error) {
	v, err := c.predict(ctx, request{URL: url}, c.phase1Timeout)
	if err != nil {
		return nil, err
	}
	v.SourcePhase = model.PhaseURLOnly
	return v, nil
}

// CheckFull runs the content-inclusive classification (Phase 2). An empty
// html means capture failed; the request is still sent and the classifier
// degrades to URL-only scoring.
func (c *Client) CheckFull(ctx context.Context, url, html string) (*model.Verdict, error) {
	req := request{URL: url, HTMLCaptured: html != ""}
	if html != "" {
		req.HTMLContent = &html
	}
	v, err := c.predict(ctx, req, c.phase2Timeout)
	if err != nil {
		return nil, err
	}
	v.SourcePhase = model.PhaseFull
	return v, nil
}

func (c *Client) predict(ctx context.Context, reqBody request, timeout time.Duration) (*model.Verdict, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal predict request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "predict", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &TransportError{Op: "predict", Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var wire response
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, &ParseError{Err: err}
	}

	return verdictFromWire(reqBody.URL, wire), nil
}

func verdictFromWire(url string, w response) *model.Verdict {
	v := &model.Verdict{
		URL:          url,
		RiskScore:    w.FinalRiskPct,
		RiskLevel:    model.ParseRiskLevel(w.RiskLevel),
		URLScore:     w.URLProb,
		ContentScore: w.ContentProb,
		Overridden:   w.Overridden,
		Whitelisted:  w.Whitelisted,
	}
	if w.OverrideReason != nil {
		v.OverrideReason = *w.OverrideReason
	}
	if w.Message != nil {
		v.Message = *w.Message
	}
	return v
}
