package main

// Package main is the entry point for the srdiag-mcp diagnostics agent.
//
// Responsibilities:
//   - Load and validate configuration from environment variables and an
//     optional YAML file
//   - Open the audit trail and application log
//   - Wire the executors, orchestrator client, session store, and
//     orchestration loop
//   - Serve the MCP tool protocol over standard input/output
//   - Shut down cleanly on SIGINT/SIGTERM or client disconnect
//
// Architecture Flow:
//   1. AI client → MCP stdio surface (list_tools / call_tool)
//   2. call_tool → orchestration loop → Central Orchestrator directives
//   3. Directives → SQL / monitoring / SSH / cloud CLI / file executors
//   4. Accumulated results → analyze endpoint, until terminal
//   5. Terminal envelope → report artifact + brief summary to the client
//
// Exit codes: 0 on graceful shutdown of the transport, 1 on
// unrecoverable startup failure.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/config"
	"github.com/srdiag/srdiag-mcp/internal/executor/cloudcli"
	"github.com/srdiag/srdiag-mcp/internal/executor/promexec"
	"github.com/srdiag/srdiag-mcp/internal/executor/sqlexec"
	"github.com/srdiag/srdiag-mcp/internal/executor/sshexec"
	"github.com/srdiag/srdiag-mcp/internal/loop"
	"github.com/srdiag/srdiag-mcp/internal/mcpserver"
	"github.com/srdiag/srdiag-mcp/internal/report"
	"github.com/srdiag/srdiag-mcp/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load configuration from environment variables and optional YAML.
	mgr, err := config.NewManagerWithDefaults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create config manager: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Load(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := mgr.Validate(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := mgr.Get(ctx)

	// Audit trail and application log.
	auditLog, err := audit.New(audit.Config{
		Dir:         cfg.Logging.Dir,
		Enabled:     cfg.Logging.Enabled,
		AppLogPath:  cfg.Logging.AppLogPath,
		AppLogLevel: cfg.Logging.Level,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open audit log: %v\n", err)
		os.Exit(1)
	}
	defer auditLog.Close()

	// Executors and the orchestrator client.
	centralClient := central.NewClient(cfg.Central.BaseURL, cfg.Central.APIToken, auditLog)

	sqlExec := sqlexec.New(sqlexec.Conn{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	}, auditLog)

	promClient, err := promexec.New(cfg.PrometheusURL(), auditLog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create monitoring client: %v\n", err)
		os.Exit(1)
	}

	sshExec := sshexec.New(sshexec.Identity{
		User:    cfg.SSH.User,
		KeyPath: cfg.SSH.KeyPath,
	}, auditLog)

	cliExec := cloudcli.New(auditLog)

	sessions := session.NewStore()
	defer sessions.Close()

	runner := loop.New(centralClient, sqlExec, promClient, sshExec, cliExec,
		sessions, report.NewSink(""), auditLog)

	// Serve the tool protocol until the client hangs up or we get a signal.
	srv := mcpserver.New(cfg, centralClient, runner, auditLog)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
