package cloudcli

import (
	"context"
	"fmt"
	"testing"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
)

func newFakeExecutor(t *testing.T, execute func(ctx context.Context, command string) (string, error)) *Executor {
	t.Helper()
	auditLog, err := audit.New(audit.Config{Enabled: false})
	if err != nil {
		t.Fatalf("audit.New: %v", err)
	}
	e := New(auditLog)
	e.execute = execute
	return e
}

func TestRunParsesSizesAndSummary(t *testing.T) {
	e := newFakeExecutor(t, func(ctx context.Context, command string) (string, error) {
		switch command {
		case "aws-ok":
			return "Total Size: 1,000 Bytes", nil
		case "spawn-fail":
			return "", fmt.Errorf("exit status 127")
		default:
			return "unexpected", nil
		}
	})

	cmds := []central.CliCommand{
		{Command: "aws-ok", Type: "du", StorageType: "s3", PartitionKey: "p1"},
		{Command: "spawn-fail", Type: "du", StorageType: "s3"},
	}
	results, summary := e.Run(context.Background(), cmds)

	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}

	ok := results[0]
	if success, _ := ok["success"].(bool); !success {
		t.Fatalf("first command should succeed: %v", ok)
	}
	if ok["size_bytes"] != int64(1000) {
		t.Errorf("size_bytes = %v, want 1000", ok["size_bytes"])
	}
	if ok["partition_key"] != "p1" {
		t.Errorf("partition_key should pass through, got %v", ok["partition_key"])
	}

	failed := results[1]
	if success, _ := failed["success"].(bool); success {
		t.Errorf("spawn failure should not succeed")
	}
	if failed["error"] == nil {
		t.Errorf("spawn failure should carry an error")
	}

	if summary["total"] != 2 || summary["successful"] != 1 || summary["failed"] != 1 {
		t.Errorf("summary = %v", summary)
	}
	if _, hasMS := summary["execution_time_ms"].(int64); !hasMS {
		t.Errorf("summary missing execution_time_ms")
	}
}

func TestRunUnparseableOutputIsFailure(t *testing.T) {
	e := newFakeExecutor(t, func(ctx context.Context, command string) (string, error) {
		return "garbage the parser cannot read", nil
	})

	results, _ := e.Run(context.Background(), []central.CliCommand{
		{Command: "aws s3 ls", Type: "du", StorageType: "s3", TableKey: "db.t"},
	})

	r := results[0]
	if success, _ := r["success"].(bool); success {
		t.Fatalf("unparseable output must not count as success: %v", r)
	}
	if r["size_bytes"] != nil {
		t.Errorf("size_bytes = %v, want nil", r["size_bytes"])
	}
	if _, hasWarning := r["warning"].(string); !hasWarning {
		t.Errorf("unparseable output should carry a warning")
	}
	if r["table_key"] != "db.t" {
		t.Errorf("table_key should pass through, got %v", r["table_key"])
	}
	if r["output"] != "garbage the parser cannot read" {
		t.Errorf("raw output must be preserved for diagnosis, got %v", r["output"])
	}
}

func TestRunPreservesCommandOrder(t *testing.T) {
	e := newFakeExecutor(t, func(ctx context.Context, command string) (string, error) {
		return "Total Size: " + command + " Bytes", nil
	})

	cmds := make([]central.CliCommand, 8)
	for i := range cmds {
		cmds[i] = central.CliCommand{Command: fmt.Sprintf("%d", i), StorageType: "s3"}
	}
	results, _ := e.Run(context.Background(), cmds)

	for i, r := range results {
		if r["size_bytes"] != int64(i) {
			t.Errorf("result %d has size %v, want %d", i, r["size_bytes"], i)
		}
	}
}
