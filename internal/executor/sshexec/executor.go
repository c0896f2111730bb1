package sshexec

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/metrics"
)

// Package sshexec fans shell commands out to cluster nodes over SSH
// with bounded concurrency and per-command timeouts. Three command modes
// exist: inline capture, inline capture with archive decoding
// (fetch_log), and streamed-to-disk transfer (fetch_log_scp) for
// payloads too large to hold in memory.

const (
	// Concurrency caps in-flight SSH commands within one phase.
	Concurrency = 5

	// CommandTimeout bounds inline commands.
	CommandTimeout = 60 * time.Second

	// StreamTimeout bounds streamed transfers.
	StreamTimeout = 5 * time.Minute

	// MaxOutputBytes caps captured stdout for inline commands.
	MaxOutputBytes = 50 * 1024 * 1024

	sshPort = "22"
)

// Command type markers understood by the executor.
const (
	TypeDiscoverLogPath = "discover_log_path"
	TypeFetchLog        = "fetch_log"
	TypeFetchLogSCP     = "fetch_log_scp"
)

// Identity is the SSH login identity. Only key-based authentication is
// implemented.
type Identity struct {
	User    string
	KeyPath string
}

// Runner executes remote command batches.
type Runner interface {
	// Run fans out the commands and returns per-node results plus a
	// batch summary {total, successful, failed, execution_time_ms}.
	Run(ctx context.Context, cmds []central.RemoteCommand) ([]map[string]interface{}, map[string]interface{})
}

// Executor implements Runner over real SSH connections.
type Executor struct {
	identity Identity
	audit    *audit.Logger

	// dial is swapped in tests.
	dial func(ctx context.Context, identity Identity, addr string) (session, error)
}

// session is the minimal surface the executor needs from an SSH session.
type session interface {
	Run(cmd string, stdout, stderr io.Writer) error
	Close() error
}

// New creates an SSH executor with the given default identity.
func New(identity Identity, auditLog *audit.Logger) *Executor {
	return &Executor{
		identity: identity,
		audit:    auditLog,
		dial:     dialSSH,
	}
}

// Run fans out commands with bounded concurrency. Individual failures
// are recorded per node; the batch always completes.
func (e *Executor) Run(ctx context.Context, cmds []central.RemoteCommand) ([]map[string]interface{}, map[string]interface{}) {
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

// runOne executes a single remote command in its mode.
func (e *Executor) runOne(ctx context.Context, cmd central.RemoteCommand) map[string]interface{} {
	e.audit.Info(audit.EventSSHCommand, "running remote command", map[string]interface{}{
		"node_ip":      cmd.NodeIP,
		"node_type":    cmd.NodeType,
		"command_type": cmd.CommandType,
		"ssh_command":  cmd.SSHCommand,
	})

	var result map[string]interface{}
	if cmd.CommandType == TypeFetchLogSCP {
		result = e.runStreamed(ctx, cmd)
	} else {
		result = e.runInline(ctx, cmd)
	}

	commandType := cmd.CommandType
	if commandType == "" {
		commandType = "generic"
	}
	level := audit.LevelInfo
	status := "success"
	if ok, _ := result["success"].(bool); !ok {
		level = audit.LevelError
		status = "error"
	}
	metrics.SSHCommandsTotal.WithLabelValues(commandType, status).Inc()
	e.audit.Write(level, audit.EventSSHResult, "remote command finished", map[string]interface{}{
		"node_ip":      cmd.NodeIP,
		"command_type": cmd.CommandType,
		"success":      result["success"],
		"error":        result["error"],
	})

	return result
}

// runInline captures stdout up to MaxOutputBytes over an SSH session.
func (e *Executor) runInline(ctx context.Context, cmd central.RemoteCommand) map[string]interface{} {
	runCtx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	identity := e.resolveIdentity(cmd)
	sess, err := e.dial(runCtx, identity, net.JoinHostPort(cmd.NodeIP, sshPort))
	if err != nil {
		return failure(cmd, fmt.Errorf("ssh dial: %w", err), "", "")
	}
	defer sess.Close()

	stdout := newLimitedBuffer(MaxOutputBytes)
	stderr := newLimitedBuffer(1024 * 1024)

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd.SSHCommand, stdout, stderr) }()

	select {
	case <-runCtx.Done():
		return failure(cmd, fmt.Errorf("command timed out after %s", CommandTimeout), stdout.String(), stderr.String())
	case err = <-done:
	}

	out := stdout.String()
	if err != nil {
		return e.classifyFailure(cmd, err, out, stderr.String())
	}

	return e.decorate(cmd, map[string]interface{}{
		"node_ip":      cmd.NodeIP,
		"node_type":    cmd.NodeType,
		"command_type": cmd.CommandType,
		"success":      true,
		"output":       strings.TrimSpace(out),
		"stderr":       stderr.String(),
	}, out)
}

// classifyFailure records the failure, except that a discover_log_path
// command exiting non-zero with a path-looking stdout is upgraded to a
// success with a warning annotation: log discovery pipelines often exit
// with the status of their last grep.
func (e *Executor) classifyFailure(cmd central.RemoteCommand, err error, stdout, stderr string) map[string]interface{} {
	trimmed := strings.TrimSpace(stdout)
	if cmd.CommandType == TypeDiscoverLogPath && strings.HasPrefix(trimmed, "/") {
		return map[string]interface{}{
			"node_ip":      cmd.NodeIP,
			"node_type":    cmd.NodeType,
			"command_type": cmd.CommandType,
			"success":      true,
			"output":       trimmed,
			"stderr":       stderr,
			"warning":      fmt.Sprintf("non-zero exit (%v) but stdout is a valid path", err),
		}
	}
	return failure(cmd, err, stdout, stderr)
}

// decorate applies fetch_log post-processing: optional base64+gzip
// decode, then archive parsing into per-file sections.
func (e *Executor) decorate(cmd central.RemoteCommand, result map[string]interface{}, rawStdout string) map[string]interface{} {
	if cmd.CommandType != TypeFetchLog {
		return result
	}

	content := rawStdout
	if cmd.Options != nil && cmd.Options.Compress {
		decoded, warn := decodeCompressed(rawStdout)
		content = decoded
		if warn != "" {
			result["warning"] = warn
		}
	}

	sections := ParseArchive(content, cmd.NodeIP, cmd.NodeType)
	result["files"] = sections
	result["output"] = ""
	return result
}

// decodeCompressed base64-decodes and gunzips inline fetch_log output.
// On any failure the raw text is used as-is with a warning.
func decodeCompressed(s string) (string, string) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return s, fmt.Sprintf("base64 decode failed: %v; using raw output", err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return string(raw), fmt.Sprintf("gzip decode failed: %v; using raw bytes", err)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return string(raw), fmt.Sprintf("gzip read failed: %v; using raw bytes", err)
	}
	return string(out), ""
}

// resolveIdentity picks directive credentials first, then the
// environment-configured identity, then the current user.
func (e *Executor) resolveIdentity(cmd central.RemoteCommand) Identity {
	identity := e.identity
	if cmd.SSHUser != "" {
		identity.User = cmd.SSHUser
	}
	if cmd.SSHKeyPath != "" {
		identity.KeyPath = cmd.SSHKeyPath
	}
	if identity.User == "" {
		identity.User = os.Getenv("USER")
	}
	return identity
}

func failure(cmd central.RemoteCommand, err error, stdout, stderr string) map[string]interface{} {
	return map[string]interface{}{
		"node_ip":      cmd.NodeIP,
		"node_type":    cmd.NodeType,
		"command_type": cmd.CommandType,
		"success":      false,
		"error":        err.Error(),
		"output":       stdout,
		"stderr":       stderr,
	}
}

// dialSSH opens a real SSH session using key-based auth.
func dialSSH(ctx context.Context, identity Identity, addr string) (session, error) {
	if identity.KeyPath == "" {
		return nil, fmt.Errorf("no SSH key configured")
	}
	key, err := os.ReadFile(identity.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading key %s: %w", identity.KeyPath, err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", identity.KeyPath, err)
	}

	cfg := &ssh.ClientConfig{
		User:            identity.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	client, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return &sshSession{client: client}, nil
}

// sshSession adapts an ssh.Client to the session interface.
type sshSession struct {
	client *ssh.Client
}

func (s *sshSession) Run(cmd string, stdout, stderr io.Writer) error {
	sess, err := s.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()
	sess.Stdout = stdout
	sess.Stderr = stderr
	return sess.Run(cmd)
}

func (s *sshSession) Close() error {
	return s.client.Close()
}

// limitedBuffer caps captured output; bytes past the cap are dropped.
// The mutex covers the timeout path, where the session goroutine is
// still writing while the result is being assembled from the buffers.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - b.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf.Write(p[:remaining])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
