package audit

// Level is the severity of an audit entry.
type Level string

const (
	LevelInfo  Level = "INFO"
	LevelError Level = "ERROR"
)

// EventType identifies what kind of event an audit entry records.
type EventType string

const (
	// Process lifecycle
	EventStartup EventType = "STARTUP"

	// Outer tool protocol
	EventClientRequest EventType = "CLIENT_REQUEST"

	// Central Orchestrator traffic
	EventCentralRequest  EventType = "CENTRAL_REQUEST"
	EventCentralResponse EventType = "CENTRAL_RESPONSE"

	// Local database
	EventDBQuery  EventType = "DB_QUERY"
	EventDBResult EventType = "DB_RESULT"

	// Monitoring system
	EventPrometheusQuery  EventType = "PROMETHEUS_QUERY"
	EventPrometheusResult EventType = "PROMETHEUS_RESULT"

	// Remote command execution
	EventSSHCommand EventType = "SSH_COMMAND"
	EventSSHResult  EventType = "SSH_RESULT"

	// Cloud-storage CLI execution
	EventCLICommand EventType = "CLI_COMMAND"
	EventCLIResult  EventType = "CLI_RESULT"

	// Failures of any kind
	EventError EventType = "ERROR"
)

// verbatimTypes are event types whose payloads bypass redaction.
// SSH/CLI command lines and database connection metadata are logged in
// full: diagnostic reproducibility is the point of those entries.
// The startup environment snapshot is likewise taken verbatim.
var verbatimTypes = map[EventType]bool{
	EventStartup:    true,
	EventSSHCommand: true,
	EventCLICommand: true,
	EventDBQuery:    true,
}
