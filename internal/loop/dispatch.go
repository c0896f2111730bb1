package loop

import (
	"context"
	"strings"
	"time"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/executor/filereader"
)

// dispatchPhase executes one needs_more_queries directive. The dispatch
// order is contractual: CLI, then SSH, then tool call, then single SQL,
// then monitoring queries, then next_queries. The orchestrator relies
// on it when a later key overwrites an earlier one.
//
// Every stored key goes into both results and directive.next_args: the
// orchestrator reads fed-back data from the next request's args.
//
// A non-nil Outcome short-circuits the analyze loop (a sub-tool paused
// on step_completed).
func (r *Runner) dispatchPhase(ctx context.Context, d *central.Directive, results map[string]interface{}, args *map[string]interface{}, depth int) (*Outcome, error) {
	store := func(key string, val interface{}) {
		results[key] = val
		if d.NextArgs == nil {
			d.NextArgs = make(map[string]interface{})
		}
		d.NextArgs[key] = val
	}

	if d.RequiresCLIExecution && len(d.CliCommands) > 0 {
		res, sum := r.cli.Run(ctx, d.CliCommands)
		switch d.Phase {
		case "list_table_directories":
			store("dir_listing_results", res)
			store("dir_listing_summary", sum)
		case "get_garbage_sizes":
			store("garbage_size_results", res)
			store("garbage_size_summary", sum)
		default:
			store("cli_results", res)
			store("cli_summary", sum)
		}
	}

	if d.RequiresSSHExecution && len(d.SSHCommands) > 0 {
		res, sum := r.ssh.Run(ctx, d.SSHCommands)
		switch d.Phase {
		case "discover_log_paths":
			store("discovered_log_paths", res)
		case "fetch_logs":
			store("log_contents", res)
		default:
			store("ssh_results", res)
			store("ssh_summary", sum)
		}
	}

	if d.RequiresToolCall && d.ToolName != "" {
		outcome, err := r.dispatchToolCall(ctx, d, store, depth)
		if err != nil {
			return nil, err
		}
		if outcome != nil {
			return outcome, nil
		}
	}

	if d.RequiresSQLExecution && d.SQL != "" {
		key := d.SQLResultKey
		if key == "" {
			key = "sql_result"
		}
		store(key, r.sql.ExecuteSingle(ctx, d.SQL))
	}

	if d.RequiresPrometheusQuery && len(d.PrometheusQueries) > 0 {
		out := r.prom.Execute(ctx, r.preparePromQueries(ctx, d.PrometheusQueries))
		if d.PrometheusResultKey != "" {
			store(d.PrometheusResultKey, out)
		} else {
			for k, v := range out {
				store(k, v)
			}
		}
	}

	if len(d.NextQueries) > 0 {
		meta, regular := partitionQueries(d.NextQueries)
		out := r.runQueryBatch(ctx, regular)

		if d.Phase == "desc_storage_volumes" {
			// DESC STORAGE VOLUME results arrive as desc_volume_<name>
			// entries; fold them into one details map.
			details := make(map[string]interface{})
			for k, v := range out {
				if name, found := strings.CutPrefix(k, "desc_volume_"); found {
					details[name] = v
				} else {
					store(k, v)
				}
			}
			store("storage_volume_details", details)
		} else {
			for k, v := range out {
				store(k, v)
			}
		}
		r.applyMeta(ctx, meta, results)
	}

	if len(d.NextArgs) > 0 {
		*args = d.NextArgs
	}
	return nil, nil
}

// dispatchToolCall services a requires_tool_call directive. read_file
// and fetch_logs short-circuit locally; any other tool recurses through
// the full loop.
func (r *Runner) dispatchToolCall(ctx context.Context, d *central.Directive, store func(string, interface{}), depth int) (*Outcome, error) {
	key := d.ToolResultKey
	if key == "" {
		key = d.ToolName + "_result"
	}

	switch d.ToolName {
	case "read_file":
		path := stringArg(d.ToolArgs, "file_path", "path")
		if filereader.IsLarge(path) {
			// Defer loading; the content is spliced into args just
			// before the next analyze call.
			store(key, map[string]interface{}{"file_path": path, "deferred": true})
			store("large_file_path", path)
			return nil, nil
		}
		out, err := filereader.Read(path)
		if err != nil {
			r.audit.Error(audit.EventError, "read_file failed", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		store(key, out)
		return nil, nil

	case "fetch_logs":
		store(key, r.fetchLogsLocal(ctx, d.ToolArgs))
		return nil, nil
	}

	sub, err := r.runSubTool(ctx, d.ToolName, d.ToolArgs, depth)
	if err != nil {
		// Sub-tool failures become data for the orchestrator, not a
		// reason to abort the parent call.
		store(key, map[string]interface{}{"error": err.Error(), "tool": d.ToolName})
		return nil, nil
	}
	if sub.StepCompleted {
		// A sub-tool pausing for user confirmation pauses the whole call.
		return sub, nil
	}

	if sub.Directive != nil {
		store(key, sub.Directive.Envelope())
	} else {
		store(key, map[string]interface{}{"text": sub.Text})
	}
	return nil, nil
}

// runSubTool recursively invokes the loop for a directive-named tool.
// When the sub-tool's terminal directive itself asks for monitoring or
// SSH execution, that is serviced as a nested micro-phase: execute,
// fold the outputs into the follow-up args, recall the sub-tool once.
func (r *Runner) runSubTool(ctx context.Context, tool string, toolArgs map[string]interface{}, depth int) (*Outcome, error) {
	args := cloneArgs(toolArgs)

	sub, err := r.run(ctx, tool, args, depth+1)
	if err != nil {
		return nil, err
	}

	d := sub.Directive
	if d == nil || (!d.RequiresPrometheusQuery && !d.RequiresSSHExecution) {
		return sub, nil
	}

	micro := make(map[string]interface{})
	if d.RequiresPrometheusQuery && len(d.PrometheusQueries) > 0 {
		for k, v := range r.prom.Execute(ctx, r.preparePromQueries(ctx, d.PrometheusQueries)) {
			micro[k] = v
		}
	}
	if d.RequiresSSHExecution && len(d.SSHCommands) > 0 {
		res, sum := r.ssh.Run(ctx, d.SSHCommands)
		micro["ssh_results"] = res
		micro["ssh_summary"] = sum
	}

	next := d.NextArgs
	if next == nil {
		next = args
	}
	for k, v := range micro {
		next[k] = v
	}

	again, err := r.run(ctx, tool, next, depth+1)
	if err != nil {
		// The micro-phase recall is best effort; keep the first answer.
		return sub, nil
	}
	return again, nil
}

// preparePromQueries defaults directive-level entries before execution.
// Untyped queries run as range queries. Range entries without an
// explicit step use the detected scrape interval as the step and
// resolve $__interval / $__rate_interval placeholders to one and three
// intervals respectively, so rate() windows over disk-IO counters span
// enough scrapes to produce samples. The interval is detected at most
// once per batch.
func (r *Runner) preparePromQueries(ctx context.Context, queries []central.Query) []central.Query {
	var interval time.Duration

	out := make([]central.Query, len(queries))
	for i, q := range queries {
		if q.Type == "" {
			q.Type = "prometheus_range"
		}
		if q.Type == "prometheus_range" && q.Step == "" {
			if interval == 0 {
				interval = r.prom.DetectScrapeInterval(ctx)
			}
			q.Step = interval.String()
			q.Query = strings.ReplaceAll(q.Query, "$__rate_interval", (3 * interval).String())
			q.Query = strings.ReplaceAll(q.Query, "$__interval", interval.String())
		}
		out[i] = q
	}
	return out
}
