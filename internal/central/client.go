package central

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/metrics"
)

// Package central implements the typed HTTP client for the Central
// Orchestrator: the remote service that decides what queries to run and
// interprets their results. This process only speaks its wire protocol.
//
// Endpoints consumed:
//   GET  /api/tools            dynamic tool catalogue (cached 1 h)
//   GET  /api/plan/<tool>      execution plan, args as query string
//   POST /api/queries/<tool>   initial query batch, body {args}
//   POST /api/analyze/<tool>   analysis turn, body {results, args}
//
// Non-2xx responses abort the tool call; there is no retry.

// catalogueTTL is how long a fetched tool catalogue stays fresh.
const catalogueTTL = time.Hour

// Client talks to the Central Orchestrator.
type Client struct {
	baseURL  string
	apiToken string
	http     *http.Client
	audit    *audit.Logger

	// Tool catalogue cache. Read-mostly; a stale copy is served when the
	// orchestrator is unreachable.
	mu        sync.Mutex
	catalogue []ToolDef
	fetchedAt time.Time
}

// NewClient creates an orchestrator client.
func NewClient(baseURL, apiToken string, auditLog *audit.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		apiToken: apiToken,
		// No explicit timeout: analyze turns against a busy cluster can
		// legitimately run for minutes. Callers impose their own.
		http:  &http.Client{},
		audit: auditLog,
	}
}

// BaseURL returns the configured orchestrator base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// HasToken reports whether an API key is configured.
func (c *Client) HasToken() bool { return c.apiToken != "" }

// Tools returns the orchestrator's tool catalogue, cached for one hour.
// On transport error a stale cache is returned if one exists.
func (c *Client) Tools(ctx context.Context) ([]ToolDef, error) {
	c.mu.Lock()
	if c.catalogue != nil && time.Since(c.fetchedAt) < catalogueTTL {
		tools := c.catalogue
		c.mu.Unlock()
		return tools, nil
	}
	c.mu.Unlock()

	var resp ToolsResponse
	if err := c.get(ctx, "/api/tools", nil, &resp); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.catalogue != nil {
			return c.catalogue, nil
		}
		return nil, fmt.Errorf("fetching tool catalogue: %w", err)
	}

	c.mu.Lock()
	c.catalogue = resp.Tools
	c.fetchedAt = time.Now()
	c.mu.Unlock()

	return resp.Tools, nil
}

// Plan fetches the execution plan for a tool. Args travel as a query
// string; values are stringified.
func (c *Client) Plan(ctx context.Context, tool string, args map[string]interface{}) (*PlanResponse, error) {
	q := url.Values{}
	for k, v := range args {
		q.Set(k, fmt.Sprintf("%v", v))
	}

	var resp PlanResponse
	if err := c.get(ctx, "/api/plan/"+url.PathEscape(tool), q, &resp); err != nil {
		return nil, fmt.Errorf("plan fetch for %s: %w", tool, err)
	}
	return &resp, nil
}

// Queries fetches the initial query batch for a tool call.
func (c *Client) Queries(ctx context.Context, tool string, args map[string]interface{}) (*QueriesResponse, error) {
	body := map[string]interface{}{"args": args}

	var resp QueriesResponse
	if err := c.post(ctx, "/api/queries/"+url.PathEscape(tool), body, &resp); err != nil {
		return nil, fmt.Errorf("queries fetch for %s: %w", tool, err)
	}
	return &resp, nil
}

// Analyze posts accumulated results and receives the next directive.
func (c *Client) Analyze(ctx context.Context, tool string, results, args map[string]interface{}) (*Directive, error) {
	body := map[string]interface{}{"results": results, "args": args}

	var directive Directive
	if err := c.post(ctx, "/api/analyze/"+url.PathEscape(tool), body, &directive); err != nil {
		return nil, fmt.Errorf("analyze for %s: %w", tool, err)
	}
	return &directive, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}

	c.audit.Info(audit.EventCentralRequest, "GET "+path, map[string]interface{}{
		"url": u,
	})

	return c.do(req, path, out)
}

func (c *Client) post(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.audit.Info(audit.EventCentralRequest, "POST "+path, map[string]interface{}{
		"url":  c.baseURL + path,
		"body": audit.SummarizeRequestBody(body),
	})

	return c.do(req, path, out)
}

func (c *Client) do(req *http.Request, path string, out interface{}) error {
	if c.apiToken != "" {
		req.Header.Set("X-API-Key", c.apiToken)
	}

	endpoint := endpointOf(path)
	started := time.Now()
	resp, err := c.http.Do(req)
	metrics.OrchestratorRequestDuration.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.OrchestratorRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		c.audit.Error(audit.EventError, "orchestrator request failed", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return err
	}
	defer resp.Body.Close()
	metrics.OrchestratorRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	c.logResponse(path, resp.StatusCode, raw)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("orchestrator returned %d for %s", resp.StatusCode, path)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding response from %s: %w", path, err)
	}
	return nil
}

// endpointOf reduces a request path to its endpoint family, so metric
// labels stay low-cardinality across tool names.
func endpointOf(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if len(parts) >= 2 {
		return "/" + parts[0] + "/" + parts[1]
	}
	return path
}

func (c *Client) logResponse(path string, status int, raw []byte) {
	data := map[string]interface{}{
		"path":   path,
		"status": status,
	}

	var body map[string]interface{}
	if err := json.Unmarshal(raw, &body); err == nil {
		data["body"] = audit.SummarizeResponseBody(body)
	} else {
		data["bodyBytes"] = len(raw)
	}

	level := audit.LevelInfo
	if status < 200 || status > 299 {
		level = audit.LevelError
	}
	c.audit.Write(level, audit.EventCentralResponse, "response from "+path, data)
}
