package central

import "encoding/json"

// Directive statuses returned by the analyze endpoint. Anything not
// enumerated here is treated as terminal.
const (
	StatusSuccess          = "success"
	StatusError            = "error"
	StatusNotApplicable    = "not_applicable"
	StatusNeedsMoreQueries = "needs_more_queries"
	StatusStepCompleted    = "step_completed"
	StatusNeedsSelection   = "needs_selection"
	StatusPlan             = "plan"
)

// Query is one labelled statement the orchestrator wants executed.
// Type "meta" carries no statement; it is a directive embedded in the
// query list instructing the loop to run the profile enrichment pipeline.
type Query struct {
	ID    string `json:"id"`
	Type  string `json:"type"` // sql | prometheus_instant | prometheus_range | meta
	SQL   string `json:"sql,omitempty"`
	Query string `json:"query,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
	Step  string `json:"step,omitempty"`

	// Meta-query flags
	RequiresProfileFetch     bool   `json:"requires_profile_fetch,omitempty"`
	RequiresTableSchemaFetch bool   `json:"requires_table_schema_fetch,omitempty"`
	TimeRange                string `json:"time_range,omitempty"`
	MinDurationMS            int    `json:"min_duration_ms,omitempty"`
}

// IsMeta reports whether the query is a pseudo-query carrying flags only.
func (q Query) IsMeta() bool { return q.Type == "meta" }

// RemoteCommand is one SSH invocation against a cluster node.
type RemoteCommand struct {
	NodeIP      string         `json:"node_ip"`
	NodeType    string         `json:"node_type"` // fe | be | cn
	SSHCommand  string         `json:"ssh_command"`
	CommandType string         `json:"command_type,omitempty"` // discover_log_path | fetch_log | fetch_log_scp | generic
	Options     *RemoteOptions `json:"options,omitempty"`

	// Per-directive credential overrides.
	SSHUser    string `json:"ssh_user,omitempty"`
	SSHKeyPath string `json:"ssh_key_path,omitempty"`
}

// RemoteOptions carries per-command tuning flags.
type RemoteOptions struct {
	Compress bool `json:"compress,omitempty"`
}

// CliCommand is one local cloud-storage CLI invocation.
type CliCommand struct {
	Command      string `json:"command"`
	Type         string `json:"type,omitempty"` // e.g. get_size, ossutil_ls
	StorageType  string `json:"storage_type,omitempty"`
	PartitionKey string `json:"partition_key,omitempty"`
	TableKey     string `json:"table_key,omitempty"`
	Path         string `json:"path,omitempty"`
}

// SuggestedAction is a follow-up tool invocation recommended by a
// terminal directive.
type SuggestedAction struct {
	Tool   string                 `json:"tool"`
	Params map[string]interface{} `json:"params,omitempty"`
	Reason string                 `json:"reason,omitempty"`
}

// CompletedStep describes the step a step_completed directive finished.
type CompletedStep struct {
	Step    int    `json:"step"`
	Name    string `json:"name"`
	Summary string `json:"summary,omitempty"`
}

// PlanStep is one row of an execution plan.
type PlanStep struct {
	Step        int    `json:"step"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Plan is the orchestrator's proposed multi-step analysis.
type Plan struct {
	Description   string     `json:"description,omitempty"`
	Steps         []PlanStep `json:"steps,omitempty"`
	EstimatedTime string     `json:"estimated_time,omitempty"`
}

// PlanResponse is the body of GET /api/plan/<tool>. A nil Plan means the
// tool runs without confirmation.
type PlanResponse struct {
	RequiresPlan bool  `json:"requires_plan"`
	Plan         *Plan `json:"plan"`
}

// QueriesResponse is the body of POST /api/queries/<tool>.
type QueriesResponse struct {
	Queries []Query `json:"queries"`
}

// ToolDef is one entry of the orchestrator's dynamic tool catalogue.
type ToolDef struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"inputSchema,omitempty"`
}

// ToolsResponse is the body of GET /api/tools.
type ToolsResponse struct {
	Tools []ToolDef `json:"tools"`
}

// Directive is one instruction from the analyze endpoint. The typed
// fields cover everything the loop dispatches on; Extra preserves any
// orchestrator field this build does not know about, so new envelope
// keys survive the round trip into reports.
type Directive struct {
	Status    string `json:"status"`
	Phase     string `json:"phase,omitempty"`
	PhaseName string `json:"phase_name,omitempty"`

	RequiresSQLExecution    bool `json:"requires_sql_execution,omitempty"`
	RequiresSSHExecution    bool `json:"requires_ssh_execution,omitempty"`
	RequiresPrometheusQuery bool `json:"requires_prometheus_query,omitempty"`
	RequiresCLIExecution    bool `json:"requires_cli_execution,omitempty"`
	RequiresToolCall        bool `json:"requires_tool_call,omitempty"`

	Queries           []Query         `json:"queries,omitempty"`
	SSHCommands       []RemoteCommand `json:"ssh_commands,omitempty"`
	PrometheusQueries []Query         `json:"prometheus_queries,omitempty"`
	CliCommands       []CliCommand    `json:"cli_commands,omitempty"`

	ToolName      string                 `json:"tool_name,omitempty"`
	ToolArgs      map[string]interface{} `json:"tool_args,omitempty"`
	ToolResultKey string                 `json:"tool_result_key,omitempty"`

	SQL                 string `json:"sql,omitempty"`
	SQLResultKey        string `json:"sql_result_key,omitempty"`
	PrometheusResultKey string `json:"prometheus_result_key,omitempty"`

	NextQueries []Query                `json:"next_queries,omitempty"`
	NextArgs    map[string]interface{} `json:"next_args,omitempty"`

	SuggestedActions []SuggestedAction      `json:"suggested_actions,omitempty"`
	CompletedStep    *CompletedStep         `json:"completed_step,omitempty"`
	NextAction       map[string]interface{} `json:"next_action,omitempty"`
	Step             int                    `json:"step,omitempty"`
	TotalSteps       int                    `json:"total_steps,omitempty"`

	Intermediate json.RawMessage `json:"_intermediate,omitempty"`

	// Extra holds every field of the envelope not mapped above
	// (diagnosis_results, storage_health, html_content, ...).
	Extra map[string]interface{} `json:"-"`
}

// directiveKnownKeys are the JSON keys decoded into typed fields.
var directiveKnownKeys = map[string]bool{
	"status": true, "phase": true, "phase_name": true,
	"requires_sql_execution": true, "requires_ssh_execution": true,
	"requires_prometheus_query": true, "requires_cli_execution": true,
	"requires_tool_call": true,
	"queries":            true, "ssh_commands": true, "prometheus_queries": true,
	"cli_commands": true,
	"tool_name":    true, "tool_args": true, "tool_result_key": true,
	"sql": true, "sql_result_key": true, "prometheus_result_key": true,
	"next_queries": true, "next_args": true,
	"suggested_actions": true, "completed_step": true, "next_action": true,
	"step": true, "total_steps": true, "_intermediate": true,
}

// UnmarshalJSON decodes the typed fields and captures unknown keys.
func (d *Directive) UnmarshalJSON(data []byte) error {
	type alias Directive
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	extra := make(map[string]interface{})
	for k, v := range raw {
		if !directiveKnownKeys[k] {
			extra[k] = v
		}
	}
	a.Extra = extra

	*d = Directive(a)
	return nil
}

// Envelope rebuilds the full directive as a generic map, typed fields
// and extras merged. Used by the report formatter and sink.
func (d *Directive) Envelope() map[string]interface{} {
	out := make(map[string]interface{}, len(d.Extra)+8)
	raw, err := json.Marshal((*directiveAlias)(d))
	if err == nil {
		_ = json.Unmarshal(raw, &out)
	}
	for k, v := range d.Extra {
		out[k] = v
	}
	return out
}

type directiveAlias Directive

// IsTerminal reports whether the directive ends the loop. Unknown
// statuses are terminal so a misbehaving orchestrator cannot spin us.
func (d *Directive) IsTerminal() bool {
	switch d.Status {
	case StatusNeedsMoreQueries, StatusStepCompleted, StatusNeedsSelection, StatusPlan:
		return false
	}
	return true
}
