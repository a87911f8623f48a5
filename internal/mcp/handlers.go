package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/navguard/internal/model"
	"github.com/ppiankov/navguard/internal/policy"
)

// CheckInput defines parameters for the navguard_check tool.
type CheckInput struct {
	URL string `json:"url" jsonschema:"URL to classify"`
}

// CheckOutput contains the decision for a URL.
type CheckOutput struct {
	Action     string  `json:"action"`
	RiskPct    float64 `json:"risk_pct"`
	RiskLevel  string  `json:"risk_level"`
	Overridden bool    `json:"overridden,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Skipped    bool    `json:"skipped,omitempty"`
	Bypassed   bool    `json:"bypassed,omitempty"`
}

// BypassInput defines parameters for the navguard_bypass tool.
type BypassInput struct {
	URL string `json:"url" jsonschema:"exact URL to exempt from checking"`
}

// BypassOutput confirms the bypass.
type BypassOutput struct {
	URL    string `json:"url"`
	Status string `json:"status"`
}

// StatusInput is empty — no parameters needed.
type StatusInput struct{}

// StatusOutput reports engine counters.
type StatusOutput struct {
	BypassEntries  int `json:"bypass_entries"`
	CachedVerdicts int `json:"cached_verdicts"`
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if s.rules.ShouldSkip(input.URL) {
		return nil, CheckOutput{Action: string(model.Allow), Skipped: true, Reason: "exempt destination"}, nil
	}
	if s.bypassReg.Allowed(input.URL) {
		return nil, CheckOutput{Action: string(model.Allow), Bypassed: true, Reason: "live bypass entry"}, nil
	}

	v, ok := s.cache.Get(model.PhaseURLOnly, input.URL)
	if !ok {
		var err error
		v, err = s.client.CheckURL(ctx, input.URL)
		if err != nil {
			return nil, CheckOutput{}, err
		}
		s.cache.Put(model.PhaseURLOnly, input.URL, v)
	}

	d := policy.Decide(v, s.thresholds)
	out := CheckOutput{
		Action:     string(d.Action),
		RiskPct:    v.RiskScore,
		RiskLevel:  string(v.RiskLevel),
		Overridden: v.Overridden,
		Reason:     v.Message,
	}
	if v.Overridden && v.OverrideReason != "" {
		out.Reason = v.OverrideReason
	}
	if d.Action == model.Block {
		return &mcpsdk.CallToolResult{IsError: true}, out, nil
	}
	return nil, out, nil
}

func (s *Server) handleBypass(ctx context.Context, req *mcpsdk.CallToolRequest, input BypassInput) (*mcpsdk.CallToolResult, BypassOutput, error) {
	s.bypassReg.Add(input.URL)
	return nil, BypassOutput{URL: input.URL, Status: "registered"}, nil
}

func (s *Server) handleStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input StatusInput) (*mcpsdk.CallToolResult, StatusOutput, error) {
	return nil, StatusOutput{
		BypassEntries:  s.bypassReg.Len(),
		CachedVerdicts: s.cache.Len(),
	}, nil
}
