package cloudcli

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/metrics"
)

// Package cloudcli spawns local cloud-storage CLIs (aws, ossutil, coscli,
// hdfs, gsutil, az, s3cmd) with bounded concurrency and parses each
// vendor's size output into byte counts.

const (
	// Concurrency caps in-flight CLI commands within one phase.
	Concurrency = 10

	// CommandTimeout bounds each CLI invocation.
	CommandTimeout = 30 * time.Second

	// MaxOutputBytes caps captured output per command.
	MaxOutputBytes = 10 * 1024 * 1024
)

// Runner executes CLI command batches.
type Runner interface {
	// Run fans out the commands and returns per-command results plus a
	// batch summary {total, successful, failed, execution_time_ms}.
	Run(ctx context.Context, cmds []central.CliCommand) ([]map[string]interface{}, map[string]interface{})
}

// Executor implements Runner over local subprocesses.
type Executor struct {
	audit *audit.Logger

	// execute is swapped in tests.
	execute func(ctx context.Context, command string) (string, error)
}

// New creates a CLI executor.
func New(auditLog *audit.Logger) *Executor {
	return &Executor{
		audit:   auditLog,
		execute: runShellCommand,
	}
}

// Run fans out commands with bounded concurrency. Individual failures
// are recorded per command; the batch always completes.
func (e *Executor) Run(ctx context.Context, cmds []central.CliCommand) ([]map[string]interface{}, map[string]interface{}) {
	started := time.Now()
	results := make([]map[string]interface{}, len(cmds))

	g := new(errgroup.Group)
	g.SetLimit(Concurrency)
	for i, cmd := range cmds {
		g.Go(func() error {
			results[i] = e.runOne(ctx, cmd)
			return nil
		})
	}
	_ = g.Wait()

	successful := 0
	for _, r := range results {
		if ok, _ := r["success"].(bool); ok {
			successful++
		}
	}

	summary := map[string]interface{}{
		"total":             len(cmds),
		"successful":        successful,
		"failed":            len(cmds) - successful,
		"execution_time_ms": time.Since(started).Milliseconds(),
	}
	return results, summary
}

func (e *Executor) runOne(ctx context.Context, cmd central.CliCommand) map[string]interface{} {
	e.audit.Info(audit.EventCLICommand, "running cli command", map[string]interface{}{
		"command":      cmd.Command,
		"type":         cmd.Type,
		"storage_type": cmd.StorageType,
	})

	result := map[string]interface{}{
		"command":      cmd.Command,
		"type":         cmd.Type,
		"storage_type": cmd.StorageType,
	}
	// Domain keys pass through so the orchestrator can correlate sizes
	// back to partitions and tables.
	if cmd.PartitionKey != "" {
		result["partition_key"] = cmd.PartitionKey
	}
	if cmd.TableKey != "" {
		result["table_key"] = cmd.TableKey
	}
	if cmd.Path != "" {
		result["path"] = cmd.Path
	}

	runCtx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	output, err := e.execute(runCtx, cmd.Command)
	if err != nil {
		result["success"] = false
		result["error"] = err.Error()
		result["output"] = output
		metrics.CLICommandsTotal.WithLabelValues(cmd.StorageType, "error").Inc()
		e.audit.Error(audit.EventCLIResult, "cli command failed", map[string]interface{}{
			"command": cmd.Command,
			"error":   err.Error(),
		})
		return result
	}

	result["output"] = output

	size, ok := ParseSize(cmd.StorageType, output)
	if !ok {
		result["success"] = false
		result["size_bytes"] = nil
		result["warning"] = fmt.Sprintf("could not parse %s size output", cmd.StorageType)
		metrics.CLICommandsTotal.WithLabelValues(cmd.StorageType, "error").Inc()
	} else {
		result["success"] = true
		result["size_bytes"] = size
		metrics.CLICommandsTotal.WithLabelValues(cmd.StorageType, "success").Inc()
	}

	e.audit.Info(audit.EventCLIResult, "cli command finished", map[string]interface{}{
		"command":    cmd.Command,
		"success":    result["success"],
		"size_bytes": result["size_bytes"],
	})
	return result
}

// runShellCommand executes one vendor CLI line through the shell. The
// command strings are orchestrator-assembled vendor invocations with
// pipes and flags, so a shell is required here.
func runShellCommand(ctx context.Context, command string) (string, error) {
	proc := exec.CommandContext(ctx, "sh", "-c", command)
	out, err := proc.Output()
	if len(out) > MaxOutputBytes {
		out = out[:MaxOutputBytes]
	}
	if err != nil {
		var stderr string
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = strings.TrimSpace(string(exitErr.Stderr))
		}
		if stderr != "" {
			return string(out), fmt.Errorf("%w: %s", err, stderr)
		}
		return string(out), err
	}
	return string(out), nil
}
