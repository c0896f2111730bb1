package sshexec

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/srdiag/srdiag-mcp/internal/central"
)

// Streamed transfers spawn the ssh binary directly and pipe its stdout
// to a temporary local file, so a multi-hundred-megabyte gzipped log
// never lives in memory. The remote command string is passed as one
// argv element; the kernel delivers it uninterpreted, so only the
// remote shell sees it.

// runStreamed handles the fetch_log_scp mode.
func (e *Executor) runStreamed(ctx context.Context, cmd central.RemoteCommand) map[string]interface{} {
	runCtx, cancel := context.WithTimeout(ctx, StreamTimeout)
	defer cancel()

	identity := e.resolveIdentity(cmd)

	tmpPath := streamTempPath(cmd.NodeIP)
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return failure(cmd, fmt.Errorf("creating temp file: %w", err), "", "")
	}
	defer os.Remove(tmpPath)

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=no",
	}
	if identity.KeyPath != "" {
		args = append(args, "-i", identity.KeyPath)
	}
	args = append(args, identity.User+"@"+cmd.NodeIP, cmd.SSHCommand)

	proc := exec.CommandContext(runCtx, "ssh", args...)
	proc.Stdout = tmpFile
	stderr := newLimitedBuffer(1024 * 1024)
	proc.Stderr = stderr

	runErr := proc.Run()
	if closeErr := tmpFile.Close(); closeErr != nil && runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return failure(cmd, fmt.Errorf("streamed transfer: %w", runErr), "", stderr.String())
	}

	content, warning := readMaybeGzipped(tmpPath)

	result := map[string]interface{}{
		"node_ip":      cmd.NodeIP,
		"node_type":    cmd.NodeType,
		"command_type": cmd.CommandType,
		"success":      true,
		"output":       "",
		"stderr":       stderr.String(),
		"files":        ParseArchive(content, cmd.NodeIP, cmd.NodeType),
	}
	if warning != "" {
		result["warning"] = warning
	}
	return result
}

// readMaybeGzipped gunzips the streamed file, falling back to the raw
// bytes as UTF-8 when decompression fails.
func readMaybeGzipped(path string) (string, string) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Sprintf("reading streamed file failed: %v", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err == nil {
		defer gr.Close()
		if out, readErr := io.ReadAll(gr); readErr == nil {
			return string(out), ""
		}
	}

	// Not gzip, or a truncated stream. Use the raw bytes.
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Sprintf("reading streamed file failed: %v", err)
	}
	return string(raw), "gzip decompression failed; using raw bytes"
}

// streamTempPath names the temp file for one node's streamed transfer.
func streamTempPath(nodeIP string) string {
	mangled := strings.NewReplacer(".", "_", ":", "_").Replace(nodeIP)
	name := fmt.Sprintf("sr_log_%s_%d.gz", mangled, time.Now().UnixMilli())
	return filepath.Join(os.TempDir(), name)
}
