package promexec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/metrics"
)

// Package promexec issues instant and range queries against the local
// monitoring system. Failures are folded into the result map as
// structured errors; the orchestration loop never retries them.

// DefaultScrapeInterval is assumed when the targets API yields nothing.
const DefaultScrapeInterval = 15 * time.Second

// Runner executes monitoring queries.
type Runner interface {
	// Execute runs a batch of labelled queries (instant or range) and
	// returns per-id results or error structures.
	Execute(ctx context.Context, queries []central.Query) map[string]interface{}

	// Range runs one range query described by the directive entry.
	Range(ctx context.Context, q central.Query) interface{}

	// DetectScrapeInterval returns the node exporter's scrape interval,
	// falling back to DefaultScrapeInterval.
	DetectScrapeInterval(ctx context.Context) time.Duration
}

// Client implements Runner against a Prometheus endpoint.
type Client struct {
	api   v1.API
	audit *audit.Logger
	now   func() time.Time
}

// New creates a monitoring client for the given base URL.
func New(baseURL string, auditLog *audit.Logger) (*Client, error) {
	apiClient, err := api.NewClient(api.Config{Address: baseURL})
	if err != nil {
		return nil, fmt.Errorf("creating prometheus client: %w", err)
	}
	return &Client{
		api:   v1.NewAPI(apiClient),
		audit: auditLog,
		now:   time.Now,
	}, nil
}

// Execute runs each labelled query and folds results into a map.
func (c *Client) Execute(ctx context.Context, queries []central.Query) map[string]interface{} {
	results := make(map[string]interface{}, len(queries))
	for _, q := range queries {
		switch q.Type {
		case "prometheus_instant":
			results[q.ID] = c.Instant(ctx, q.Query)
		case "prometheus_range":
			results[q.ID] = c.Range(ctx, q)
		}
	}
	return results
}

// Instant runs one instant query at the current time.
func (c *Client) Instant(ctx context.Context, query string) interface{} {
	c.audit.Info(audit.EventPrometheusQuery, "instant query", map[string]interface{}{
		"query": query,
	})

	value, warnings, err := c.api.Query(ctx, query, c.now())
	if err != nil {
		metrics.PrometheusQueriesTotal.WithLabelValues("instant", "error").Inc()
		c.audit.Error(audit.EventPrometheusResult, "instant query failed", map[string]interface{}{
			"query": query,
			"error": err.Error(),
		})
		return errorResult(err, query)
	}
	metrics.PrometheusQueriesTotal.WithLabelValues("instant", "success").Inc()

	c.audit.Info(audit.EventPrometheusResult, "instant query completed", map[string]interface{}{
		"query":    query,
		"warnings": len(warnings),
	})

	return map[string]interface{}{
		"resultType": value.Type().String(),
		"result":     value,
	}
}

// Range runs one range query. Missing bounds default to the last hour at
// one-minute resolution.
func (c *Client) Range(ctx context.Context, q central.Query) interface{} {
	now := c.now()
	start := ParseTimeBound(q.Start, now.Add(-time.Hour), now)
	end := ParseTimeBound(q.End, now, now)
	step := ParseStep(q.Step)

	c.audit.Info(audit.EventPrometheusQuery, "range query", map[string]interface{}{
		"query": q.Query,
		"start": start.Format(time.RFC3339),
		"end":   end.Format(time.RFC3339),
		"step":  step.String(),
	})

	value, warnings, err := c.api.QueryRange(ctx, q.Query, v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	})
	if err != nil {
		metrics.PrometheusQueriesTotal.WithLabelValues("range", "error").Inc()
		c.audit.Error(audit.EventPrometheusResult, "range query failed", map[string]interface{}{
			"query": q.Query,
			"error": err.Error(),
		})
		return errorResult(err, q.Query)
	}
	metrics.PrometheusQueriesTotal.WithLabelValues("range", "success").Inc()

	c.audit.Info(audit.EventPrometheusResult, "range query completed", map[string]interface{}{
		"query":    q.Query,
		"warnings": len(warnings),
	})

	return map[string]interface{}{
		"resultType": value.Type().String(),
		"result":     value,
	}
}

// DetectScrapeInterval inspects the targets API for an active target
// whose job name contains "node" and parses its scrape interval. Used by
// the disk-IO scenario: the query step is one scrape interval and the
// rate() window three.
func (c *Client) DetectScrapeInterval(ctx context.Context) time.Duration {
	targets, err := c.api.Targets(ctx)
	if err != nil {
		return DefaultScrapeInterval
	}

	for _, t := range targets.Active {
		job := string(t.Labels["job"])
		if !strings.Contains(job, "node") {
			continue
		}
		if d, ok := ParseScrapeInterval(t.ScrapeInterval); ok {
			return d
		}
	}
	return DefaultScrapeInterval
}

// errorResult is the failure shape stored under a query's id.
func errorResult(err error, query string) map[string]interface{} {
	return map[string]interface{}{
		"error": err.Error(),
		"query": prefix(query, 100),
	}
}

func prefix(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
