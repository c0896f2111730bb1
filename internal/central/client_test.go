package central

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/srdiag/srdiag-mcp/internal/audit"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	auditLog, err := audit.New(audit.Config{Enabled: false})
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	return NewClient(srv.URL, "test-token", auditLog), srv
}

func TestToolsCachesCatalogue(t *testing.T) {
	var hits int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&hits, 1)
		if r.URL.Path != "/api/tools" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("X-API-Key") != "test-token" {
			t.Errorf("missing API key header")
		}
		json.NewEncoder(w).Encode(ToolsResponse{Tools: []ToolDef{{Name: "analyze_storage"}}})
	}))

	for i := 0; i < 3; i++ {
		tools, err := c.Tools(context.Background())
		if err != nil {
			t.Fatalf("Tools: %v", err)
		}
		if len(tools) != 1 || tools[0].Name != "analyze_storage" {
			t.Fatalf("tools = %v", tools)
		}
	}
	if hits != 1 {
		t.Errorf("catalogue fetched %d times within TTL, want 1", hits)
	}
}

func TestToolsServesStaleCacheOnError(t *testing.T) {
	var fail atomic.Bool
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(ToolsResponse{Tools: []ToolDef{{Name: "cached_tool"}}})
	}))

	if _, err := c.Tools(context.Background()); err != nil {
		t.Fatalf("warm-up fetch: %v", err)
	}

	// Expire the cache, then break the backend.
	c.mu.Lock()
	c.fetchedAt = c.fetchedAt.Add(-2 * catalogueTTL)
	c.mu.Unlock()
	fail.Store(true)

	tools, err := c.Tools(context.Background())
	if err != nil {
		t.Fatalf("stale cache should mask the error, got %v", err)
	}
	if len(tools) != 1 || tools[0].Name != "cached_tool" {
		t.Errorf("stale tools = %v", tools)
	}
}

func TestToolsErrorWithoutCache(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := c.Tools(context.Background()); err == nil {
		t.Fatalf("expected an error with no cache to fall back on")
	}
}

func TestPlanSendsArgsAsQueryString(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/plan/analyze_storage" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("hours") != "24" {
			t.Errorf("hours arg missing from query string: %s", r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(PlanResponse{
			RequiresPlan: true,
			Plan:         &Plan{Steps: []PlanStep{{Step: 1, Name: "collect"}}},
		})
	}))

	resp, err := c.Plan(context.Background(), "analyze_storage", map[string]interface{}{"hours": 24})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !resp.RequiresPlan || resp.Plan == nil || len(resp.Plan.Steps) != 1 {
		t.Errorf("plan = %+v", resp)
	}
}

func TestQueriesPostsArgsBody(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/queries/analyze_storage" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		args, _ := body["args"].(map[string]interface{})
		if args["focus"] != "storage" {
			t.Errorf("args not posted: %v", body)
		}
		json.NewEncoder(w).Encode(QueriesResponse{Queries: []Query{{ID: "q1", Type: "sql", SQL: "SELECT 1"}}})
	}))

	resp, err := c.Queries(context.Background(), "analyze_storage", map[string]interface{}{"focus": "storage"})
	if err != nil {
		t.Fatalf("Queries: %v", err)
	}
	if len(resp.Queries) != 1 || resp.Queries[0].SQL != "SELECT 1" {
		t.Errorf("queries = %v", resp.Queries)
	}
}

func TestAnalyzePostsResultsAndArgs(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		if _, ok := body["results"]; !ok {
			t.Errorf("results missing from analyze body")
		}
		if _, ok := body["args"]; !ok {
			t.Errorf("args missing from analyze body")
		}
		w.Write([]byte(`{"status":"success","diagnosis_results":{"summary":"ok"}}`))
	}))

	d, err := c.Analyze(context.Background(), "analyze_storage",
		map[string]interface{}{"q1": []interface{}{}},
		map[string]interface{}{"hours": 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if d.Status != StatusSuccess {
		t.Errorf("status = %s", d.Status)
	}
	if _, ok := d.Extra["diagnosis_results"]; !ok {
		t.Errorf("extras lost through Analyze")
	}
}

func TestNon2xxIsAnError(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))

	_, err := c.Analyze(context.Background(), "analyze_storage", nil, nil)
	if err == nil {
		t.Fatalf("403 should be an error")
	}
	if !strings.Contains(err.Error(), "orchestrator returned 403") {
		t.Errorf("error = %v", err)
	}
}
