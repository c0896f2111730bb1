package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/executor/cloudcli"
	"github.com/srdiag/srdiag-mcp/internal/executor/filereader"
	"github.com/srdiag/srdiag-mcp/internal/executor/promexec"
	"github.com/srdiag/srdiag-mcp/internal/executor/sqlexec"
	"github.com/srdiag/srdiag-mcp/internal/executor/sshexec"
	"github.com/srdiag/srdiag-mcp/internal/metrics"
	"github.com/srdiag/srdiag-mcp/internal/report"
	"github.com/srdiag/srdiag-mcp/internal/session"
)

// Package loop implements the tool-invocation orchestration loop: one
// tool call is decomposed into phases, each phase driven by a directive
// from the Central Orchestrator, with intermediate results accumulated
// and fed back until the orchestrator returns a terminal directive.
//
// Responsibilities:
//   - Plan gate and user confirmation on turn 0
//   - Session rehydration by id or deterministic key
//   - Initial query batch execution (SQL + monitoring)
//   - Multi-phase analyze loop with status dispatch
//   - Directive dispatch to the primitive executors
//   - Report writing and brief summary on termination
//
// The loop is single-threaded within one tool call. Multiple tool calls
// may run in parallel, each owning an independent results map.

const (
	// MaxPhases bounds the analyze loop so a misbehaving orchestrator
	// cannot spin the agent forever.
	MaxPhases = 10

	// MaxDepth bounds tool-call recursion.
	MaxDepth = 3
)

// Orchestrator is the subset of the central client the loop drives.
type Orchestrator interface {
	Plan(ctx context.Context, tool string, args map[string]interface{}) (*central.PlanResponse, error)
	Queries(ctx context.Context, tool string, args map[string]interface{}) (*central.QueriesResponse, error)
	Analyze(ctx context.Context, tool string, results, args map[string]interface{}) (*central.Directive, error)
}

// Runner drives tool calls through the orchestration loop.
type Runner struct {
	orch     Orchestrator
	sql      sqlexec.Runner
	prom     promexec.Runner
	ssh      sshexec.Runner
	cli      cloudcli.Runner
	sessions *session.Store
	sink     *report.Sink
	audit    *audit.Logger
}

// New wires a loop runner from its collaborators.
func New(orch Orchestrator, sql sqlexec.Runner, prom promexec.Runner, ssh sshexec.Runner, cli cloudcli.Runner, sessions *session.Store, sink *report.Sink, auditLog *audit.Logger) *Runner {
	return &Runner{
		orch:     orch,
		sql:      sql,
		prom:     prom,
		ssh:      ssh,
		cli:      cli,
		sessions: sessions,
		sink:     sink,
		audit:    auditLog,
	}
}

// Outcome is the result of one tool call through the loop.
type Outcome struct {
	// Text is the markdown returned to the caller.
	Text string

	// ReportPath is the full report artifact, when one was written.
	ReportPath string

	// Directive is the terminal directive, when the call reached one.
	// Plan and selection outcomes carry no directive.
	Directive *central.Directive

	// StepCompleted marks a paused multi-step workflow; the caller is
	// expected to re-invoke the tool to advance.
	StepCompleted bool
}

// Run executes one tool call to completion.
func (r *Runner) Run(ctx context.Context, tool string, args map[string]interface{}) (*Outcome, error) {
	started := time.Now()
	outcome, err := r.run(ctx, tool, args, 0)

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	metrics.ToolCallDuration.WithLabelValues(tool).Observe(time.Since(started).Seconds())

	return outcome, err
}

// run is the recursive core. depth > 0 marks a sub-tool invocation:
// those skip the plan gate and return the raw terminal directive to the
// parent instead of formatting a report.
func (r *Runner) run(ctx context.Context, tool string, args map[string]interface{}, depth int) (*Outcome, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("tool recursion exceeded depth %d at %s", MaxDepth, tool)
	}
	if args == nil {
		args = make(map[string]interface{})
	}

	// Plan gate (turn 0 only): an unconfirmed call to a tool with a plan
	// gets the plan back instead of execution. No state is persisted.
	if depth == 0 && !boolArg(args, "confirmed") {
		planResp, err := r.orch.Plan(ctx, tool, args)
		if err != nil {
			r.audit.Error(audit.EventError, "plan fetch failed; proceeding without plan", map[string]interface{}{
				"tool":  tool,
				"error": err.Error(),
			})
		} else if planResp.RequiresPlan && planResp.Plan != nil {
			return &Outcome{Text: report.FormatPlan(tool, planResp.Plan)}, nil
		}
	}

	// Session rehydration: explicit id wins, then the deterministic key.
	results := make(map[string]interface{})
	key := session.DeterministicKey(tool, args)
	sessionID, _ := args["session_id"].(string)
	if sessionID != "" {
		if sess, ok := r.sessions.Get(sessionID); ok {
			for k, v := range sess.Results {
				results[k] = v
			}
			metrics.SessionRehydrations.WithLabelValues("id").Inc()
		}
	} else if sess, ok := r.sessions.FindByKey(key); ok {
		sessionID = sess.ID
		for k, v := range sess.Results {
			results[k] = v
		}
		metrics.SessionRehydrations.WithLabelValues("key").Inc()
	}

	// Initial directive.
	qresp, err := r.orch.Queries(ctx, tool, args)
	if err != nil {
		return nil, err
	}
	meta, regular := partitionQueries(qresp.Queries)

	// First execution pass. Rehydrated keys win over fresh output: a
	// resumed session keeps the state its earlier steps accumulated.
	for k, v := range r.runQueryBatch(ctx, regular) {
		if _, exists := results[k]; !exists {
			results[k] = v
		}
	}
	r.applyMeta(ctx, meta, results)

	// Analyze loop.
	phases := 0
	var directive *central.Directive

analyze:
	for {
		if err := r.spliceDeferredFile(results, args); err != nil {
			return nil, err
		}

		directive, err = r.orch.Analyze(ctx, tool, results, args)
		if err != nil {
			return nil, err
		}

		switch directive.Status {
		case central.StatusNeedsMoreQueries:
			phases++
			if phases >= MaxPhases {
				r.audit.Error(audit.EventError,
					fmt.Sprintf("Max phases (%d) reached for %s; treating directive as terminal", MaxPhases, tool),
					map[string]interface{}{"tool": tool, "phase": directive.Phase})
				break analyze
			}
			outcome, err := r.dispatchPhase(ctx, directive, results, &args, depth)
			if err != nil {
				return nil, err
			}
			if outcome != nil {
				return outcome, nil
			}

		case central.StatusPlan:
			if plan := planFromDirective(directive); plan != nil {
				return &Outcome{Text: report.FormatPlan(tool, plan)}, nil
			}
			return &Outcome{Text: report.FormatSelection(directive)}, nil

		case central.StatusNeedsSelection:
			return &Outcome{Text: report.FormatSelection(directive), Directive: directive}, nil

		case central.StatusStepCompleted:
			step := directive.Step
			if directive.CompletedStep != nil && directive.CompletedStep.Step > 0 {
				step = directive.CompletedStep.Step
			}
			sessionID = r.sessions.Save(sessionID, key, results, args, step)
			metrics.SessionsActive.Set(float64(r.sessions.Len()))
			return &Outcome{
				Text:          report.FormatStepCompleted(directive),
				Directive:     directive,
				StepCompleted: true,
			}, nil

		default:
			// success, error, not_applicable, and anything unknown.
			break analyze
		}
	}

	if depth == 0 {
		metrics.PhasesPerCall.Observe(float64(phases))
	}
	return r.finishTerminal(ctx, tool, directive, depth)
}

// finishTerminal services suggested actions, writes the report, and
// builds the brief summary for the caller.
func (r *Runner) finishTerminal(ctx context.Context, tool string, d *central.Directive, depth int) (*Outcome, error) {
	r.runSuggestedActions(ctx, d, depth)

	outcome := &Outcome{Directive: d}
	if depth > 0 {
		// Sub-invocations hand the envelope to their parent; only the
		// outermost call formats and writes artifacts.
		return outcome, nil
	}

	env := d.Envelope()

	// HTML reports are written to the orchestrator-named path and
	// stripped, so megabytes of markup never ride the transport.
	if html, ok := env["html_content"].(string); ok && html != "" {
		if path, ok := env["output_path"].(string); ok && path != "" {
			if err := r.sink.WriteHTML(path, html); err != nil {
				r.audit.Error(audit.EventError, "html report write failed", map[string]interface{}{
					"path":  path,
					"error": err.Error(),
				})
			}
		}
		delete(env, "html_content")
		delete(d.Extra, "html_content")
	}

	full := report.Format(tool, env)
	path, err := r.sink.Write(tool, full)
	if err != nil {
		r.audit.Error(audit.EventError, "report write failed", map[string]interface{}{
			"tool":  tool,
			"error": err.Error(),
		})
	}

	outcome.ReportPath = path
	outcome.Text = report.Brief(tool, env, path)
	return outcome, nil
}

// runSuggestedActions invokes follow-up tools a terminal directive
// recommends, splicing each output into the envelope as <tool>_result.
func (r *Runner) runSuggestedActions(ctx context.Context, d *central.Directive, depth int) {
	actions := d.SuggestedActions
	if len(actions) == 0 {
		actions = nestedSuggestedActions(d)
	}
	if len(actions) == 0 {
		return
	}
	if d.Extra == nil {
		d.Extra = make(map[string]interface{})
	}

	for _, a := range actions {
		if a.Tool == "" {
			continue
		}

		var out interface{}
		if a.Tool == "read_file" {
			res, err := filereader.Read(stringArg(a.Params, "file_path", "path"))
			if err != nil {
				r.audit.Error(audit.EventError, "suggested read_file failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			out = res
		} else {
			sub, err := r.run(ctx, a.Tool, cloneArgs(a.Params), depth+1)
			switch {
			case err != nil:
				out = map[string]interface{}{"error": err.Error(), "tool": a.Tool}
			case sub.Directive != nil:
				out = sub.Directive.Envelope()
			default:
				out = map[string]interface{}{"text": sub.Text}
			}
		}
		d.Extra[a.Tool+"_result"] = out
	}
}

// nestedSuggestedActions digs suggested actions out of a
// load_profile_analysis sub-envelope.
func nestedSuggestedActions(d *central.Directive) []central.SuggestedAction {
	lpa, ok := d.Extra["load_profile_analysis"].(map[string]interface{})
	if !ok {
		return nil
	}
	raw, ok := lpa["suggested_actions"].([]interface{})
	if !ok {
		return nil
	}

	actions := make([]central.SuggestedAction, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		a := central.SuggestedAction{}
		a.Tool, _ = m["tool"].(string)
		a.Params, _ = m["params"].(map[string]interface{})
		a.Reason, _ = m["reason"].(string)
		if a.Tool != "" {
			actions = append(actions, a)
		}
	}
	return actions
}

// spliceDeferredFile loads a deferred large file right before the
// analyze call, so oversized content never rides through directives.
// A failure here aborts the tool call: the analysis cannot proceed
// without the content it deferred.
func (r *Runner) spliceDeferredFile(results, args map[string]interface{}) error {
	path, _ := args["large_file_path"].(string)
	if path == "" {
		return nil
	}

	out, err := filereader.Read(path)
	if err != nil {
		return fmt.Errorf("loading deferred file %s: %w", path, err)
	}
	args["file_content"] = out["content"]
	delete(args, "large_file_path")
	delete(results, "large_file_path")
	return nil
}

// runQueryBatch executes a mixed SQL/monitoring batch and folds the
// per-id outputs into one map.
func (r *Runner) runQueryBatch(ctx context.Context, queries []central.Query) map[string]interface{} {
	sqlQs, promQs := splitQueries(queries)

	out := make(map[string]interface{})
	if len(sqlQs) > 0 {
		for k, v := range r.sql.Execute(ctx, sqlQs) {
			out[k] = v
		}
	}
	if len(promQs) > 0 {
		for k, v := range r.prom.Execute(ctx, promQs) {
			out[k] = v
		}
	}
	return out
}

// planFromDirective decodes a plan carried by a status:"plan" directive.
func planFromDirective(d *central.Directive) *central.Plan {
	raw, ok := d.Extra["plan"]
	if !ok {
		return nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var plan central.Plan
	if err := json.Unmarshal(buf, &plan); err != nil {
		return nil
	}
	return &plan
}

// partitionQueries splits meta pseudo-queries from executable ones.
func partitionQueries(queries []central.Query) (meta, regular []central.Query) {
	for _, q := range queries {
		if q.IsMeta() {
			meta = append(meta, q)
		} else {
			regular = append(regular, q)
		}
	}
	return meta, regular
}

// splitQueries separates SQL statements from monitoring queries.
func splitQueries(queries []central.Query) (sqlQs, promQs []central.Query) {
	for _, q := range queries {
		switch q.Type {
		case "prometheus_instant", "prometheus_range":
			promQs = append(promQs, q)
		default:
			if q.SQL != "" {
				sqlQs = append(sqlQs, q)
			}
		}
	}
	return sqlQs, promQs
}

func boolArg(args map[string]interface{}, key string) bool {
	v, _ := args[key].(bool)
	return v
}

func stringArg(args map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if s, ok := args[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func cloneArgs(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
