package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/sixfinger/sixfinger/internal/fingerprint"
	"github.com/sixfinger/sixfinger/internal/risk"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *Client
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *Client) *Handlers {
	return &Handlers{client: client}
}

// HandleSubmitFingerprint records a visit.
func (h *Handlers) HandleSubmitFingerprint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash := req.GetString("hash", "")
	if hash == "" {
		return mcp.NewToolResultError("hash is required"), nil
	}
	components, err := componentsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := h.client.Submit(ctx, hash, components)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to submit fingerprint: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fingerprint %s recorded.\n", resp.Hash)
	fmt.Fprintf(&sb, "Verdict: %s (risk score %.0f)\n", verdict(resp.IsBot), resp.RiskScore)
	fmt.Fprintf(&sb, "Visits: %d (first seen %s)", resp.VisitCount, resp.FirstSeen.Format(time.RFC3339))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetFingerprint returns a stored record.
func (h *Handlers) HandleGetFingerprint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash := req.GetString("hash", "")
	if hash == "" {
		return mcp.NewToolResultError("hash is required"), nil
	}

	fp, err := h.client.Get(ctx, hash)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get fingerprint: %v", err)), nil
	}
	return mcp.NewToolResultText(formatFingerprint(fp)), nil
}

// HandleGetRiskScore explains a stored fingerprint's score.
func (h *Handlers) HandleGetRiskScore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hash := req.GetString("hash", "")
	if hash == "" {
		return mcp.NewToolResultError("hash is required"), nil
	}

	a, err := h.client.RiskScore(ctx, hash)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get risk score: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Fingerprint: %s\n", a.Hash)
	fmt.Fprintf(&sb, "Verdict: %s (risk score %.0f, confidence %.0f%%)\n", verdict(a.IsBot), a.RiskScore, a.Confidence*100)
	sb.WriteString(formatFactors(a.Factors))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleEvaluateComponents scores components without recording them.
func (h *Handlers) HandleEvaluateComponents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	components, err := componentsArg(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	visits := req.GetInt("visit_count", 1)
	if visits < 0 {
		return mcp.NewToolResultError("visit_count must not be negative"), nil
	}

	ev, err := h.client.Evaluate(ctx, components, visits)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to evaluate components: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Verdict: %s (risk score %.0f, confidence %.0f%%)\n", verdict(ev.IsBot), ev.RiskScore, ev.Confidence*100)
	sb.WriteString(formatFactors(ev.Factors))
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleListFingerprints pages through stored fingerprints.
func (h *Handlers) HandleListFingerprints(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 20)
	cursor := req.GetString("cursor", "")
	botsOnly := req.GetBool("bots_only", false)

	page, err := h.client.List(ctx, limit, cursor, botsOnly)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list fingerprints: %v", err)), nil
	}
	return mcp.NewToolResultText(formatPage(page, botsOnly)), nil
}

// HandleListRules shows the active rule table.
func (h *Handlers) HandleListRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rs, err := h.client.Rules(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list rules: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Bot threshold: %.0f (scores capped at %.0f)\n\n", rs.BotThreshold, rs.MaxScore)
	for _, r := range rs.Rules {
		if r.Factor == risk.FactorRapidVisits {
			fmt.Fprintf(&sb, "- %s: +visit count (max %d) above %d visits\n", r.Factor, r.Cap, r.Threshold)
			continue
		}
		fmt.Fprintf(&sb, "- %s: +%g\n", r.Factor, r.Delta)
	}
	return mcp.NewToolResultText(strings.TrimRight(sb.String(), "\n")), nil
}

// --- Argument and formatting helpers ---

// componentsArg decodes the "components" object argument, rejecting unknown fields.
func componentsArg(req mcp.CallToolRequest) (risk.Components, error) {
	raw, ok := req.GetArguments()["components"]
	if !ok || raw == nil {
		return risk.Components{}, errors.New("components is required")
	}
	if _, ok := raw.(map[string]any); !ok {
		return risk.Components{}, errors.New("components must be an object")
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return risk.Components{}, fmt.Errorf("invalid components: %w", err)
	}
	var c risk.Components
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return risk.Components{}, fmt.Errorf("invalid components: %w", err)
	}
	return c, nil
}

func verdict(isBot bool) string {
	if isBot {
		return "BOT"
	}
	return "human"
}

func formatFingerprint(fp *fingerprint.Fingerprint) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Fingerprint: %s\n", fp.Hash)
	fmt.Fprintf(&sb, "Verdict: %s (risk score %.0f)\n", verdict(fp.IsBot), fp.RiskScore)
	fmt.Fprintf(&sb, "Visits: %d\n", fp.VisitCount)
	fmt.Fprintf(&sb, "First seen: %s\n", fp.FirstSeen.Format(time.RFC3339))
	fmt.Fprintf(&sb, "Last seen: %s", fp.LastSeen.Format(time.RFC3339))
	return sb.String()
}

func formatFactors(f risk.Factors) string {
	keys := f.Keys()
	if len(keys) == 0 {
		return "No risk factors triggered."
	}
	var sb strings.Builder
	sb.WriteString("Factors:")
	for _, k := range keys {
		if v, _ := f.Get(k); k == risk.FactorRapidVisits {
			fmt.Fprintf(&sb, "\n- %s (%v visits)", k, v)
			continue
		}
		fmt.Fprintf(&sb, "\n- %s", k)
	}
	return sb.String()
}

func formatPage(page *fingerprint.Page, botsOnly bool) string {
	if len(page.Fingerprints) == 0 {
		if botsOnly {
			return "No bots found."
		}
		return "No fingerprints found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Found %d fingerprint(s):\n\n", len(page.Fingerprints))
	for i, fp := range page.Fingerprints {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, fp.Hash)
		fmt.Fprintf(&sb, "   %s | Score: %.0f | Visits: %d | Last seen: %s\n",
			verdict(fp.IsBot), fp.RiskScore, fp.VisitCount, fp.LastSeen.Format(time.RFC3339))
	}
	if page.HasMore {
		fmt.Fprintf(&sb, "\nMore results available. Next cursor: %s", page.NextCursor)
	}
	return strings.TrimRight(sb.String(), "\n")
}
