package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sixfinger/sixfinger/internal/fingerprint"
	"github.com/sixfinger/sixfinger/internal/risk"
)

// Config holds the configuration for connecting to a sixfinger server.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // Optional bearer token for deployments behind an auth proxy
}

// Client is a pure HTTP client for the sixfinger /v1 API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the server.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RuleSet is the response of GET /v1/rules.
type RuleSet struct {
	BotThreshold float64         `json:"bot_threshold"`
	MaxScore     float64         `json:"max_score"`
	Rules        []risk.RuleInfo `json:"rules"`
}

// Evaluation is the response of POST /v1/evaluate.
type Evaluation struct {
	RiskScore  float64      `json:"risk_score"`
	IsBot      bool         `json:"is_bot"`
	Confidence float64      `json:"confidence"`
	Factors    risk.Factors `json:"factors"`
}

// do makes an HTTP request and decodes a successful response into out.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Submit records a visit.
func (c *Client) Submit(ctx context.Context, hash string, components risk.Components) (*fingerprint.SubmitResponse, error) {
	var out fingerprint.SubmitResponse
	body := fingerprint.SubmitRequest{Hash: hash, Components: &components}
	if err := c.do(ctx, http.MethodPost, "/v1/fingerprint", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Get returns the stored record for hash.
func (c *Client) Get(ctx context.Context, hash string) (*fingerprint.Fingerprint, error) {
	var out fingerprint.Fingerprint
	if err := c.do(ctx, http.MethodGet, "/v1/fingerprint/"+url.PathEscape(hash), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RiskScore returns a fresh assessment with factors for hash.
func (c *Client) RiskScore(ctx context.Context, hash string) (*fingerprint.Assessment, error) {
	var out fingerprint.Assessment
	if err := c.do(ctx, http.MethodGet, "/v1/risk-score/"+url.PathEscape(hash), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Evaluate scores components without recording them.
func (c *Client) Evaluate(ctx context.Context, components risk.Components, visitCount int) (*Evaluation, error) {
	var out Evaluation
	body := fingerprint.EvaluateRequest{Components: components, VisitCount: &visitCount}
	if err := c.do(ctx, http.MethodPost, "/v1/evaluate", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// List pages through stored fingerprints, most recently seen first.
func (c *Client) List(ctx context.Context, limit int, cursor string, botsOnly bool) (*fingerprint.Page, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if botsOnly {
		q.Set("bots", "true")
	}
	var out fingerprint.Page
	if err := c.do(ctx, http.MethodGet, "/v1/fingerprints", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Rules returns the active rule table.
func (c *Client) Rules(ctx context.Context) (*RuleSet, error) {
	var out RuleSet
	if err := c.do(ctx, http.MethodGet, "/v1/rules", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
