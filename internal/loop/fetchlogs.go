package loop

import (
	"context"
	"fmt"

	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/executor/sshexec"
)

// fetch_logs is serviced locally: the discover-paths → fetch pipeline
// runs against the SSH executor directly instead of looping back to the
// orchestrator, saving two analyze round trips on the hottest path.

// logNode is one cluster node named by the fetch_logs args.
type logNode struct {
	IP      string
	Type    string
	LogPath string
}

// fetchLogsLocal runs the two-phase log collection pipeline.
func (r *Runner) fetchLogsLocal(ctx context.Context, args map[string]interface{}) map[string]interface{} {
	nodes := parseLogNodes(args["nodes"])
	if len(nodes) == 0 {
		return map[string]interface{}{"error": "fetch_logs requires a non-empty nodes list"}
	}

	pattern := stringArg(args, "pattern")
	tail := intArg(args, "tail_lines", 500)

	// Phase 1: discover log directories for nodes that did not name one.
	var discoverCmds []central.RemoteCommand
	for _, n := range nodes {
		if n.LogPath != "" {
			continue
		}
		discoverCmds = append(discoverCmds, central.RemoteCommand{
			NodeIP:      n.IP,
			NodeType:    n.Type,
			CommandType: sshexec.TypeDiscoverLogPath,
			SSHCommand:  discoverCommand(n.Type),
		})
	}

	var discovered []map[string]interface{}
	if len(discoverCmds) > 0 {
		res, _ := r.ssh.Run(ctx, discoverCmds)
		discovered = res
		for _, item := range res {
			ok, _ := item["success"].(bool)
			path, _ := item["output"].(string)
			if !ok || path == "" {
				continue
			}
			ip, _ := item["node_ip"].(string)
			for i := range nodes {
				if nodes[i].IP == ip && nodes[i].LogPath == "" {
					nodes[i].LogPath = path
				}
			}
		}
	}

	// Phase 2: fetch the newest matching files as a delimited archive.
	var fetchCmds []central.RemoteCommand
	for _, n := range nodes {
		if n.LogPath == "" {
			continue
		}
		fetchCmds = append(fetchCmds, central.RemoteCommand{
			NodeIP:      n.IP,
			NodeType:    n.Type,
			CommandType: sshexec.TypeFetchLog,
			SSHCommand:  fetchCommand(n.LogPath, logPattern(n.Type, pattern), tail),
		})
	}

	out := map[string]interface{}{
		"discovered_log_paths": discovered,
	}
	if len(fetchCmds) > 0 {
		contents, summary := r.ssh.Run(ctx, fetchCmds)
		out["log_contents"] = contents
		out["ssh_summary"] = summary
	} else {
		out["error"] = "no log directories discovered"
	}
	return out
}

// discoverCommand probes the usual install roots for a node type's log
// directory.
func discoverCommand(nodeType string) string {
	return fmt.Sprintf(
		`for d in /opt/starrocks/%[1]s/log /usr/local/starrocks/%[1]s/log "$HOME"/starrocks/%[1]s/log; do if [ -d "$d" ]; then echo "$d"; break; fi; done`,
		nodeType)
}

// fetchCommand tails the newest files matching the pattern, wrapped in
// the archive section markers the parser expects.
func fetchCommand(dir, pattern string, tail int) string {
	return fmt.Sprintf(
		`cd %s && for f in $(ls -t %s* 2>/dev/null | head -3); do echo "=== FILE: $f ==="; tail -n %d "$f"; done`,
		dir, pattern, tail)
}

// logPattern picks the primary log file per node type.
func logPattern(nodeType, override string) string {
	if override != "" {
		return override
	}
	switch nodeType {
	case "fe":
		return "fe.log"
	case "be":
		return "be.INFO"
	case "cn":
		return "cn.INFO"
	}
	return "*.log"
}

func parseLogNodes(v interface{}) []logNode {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}

	nodes := make([]logNode, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		n := logNode{}
		n.IP, _ = m["node_ip"].(string)
		n.Type, _ = m["node_type"].(string)
		n.LogPath, _ = m["log_path"].(string)
		if n.IP != "" {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

func intArg(args map[string]interface{}, key string, def int) int {
	switch n := args[key].(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return def
}
