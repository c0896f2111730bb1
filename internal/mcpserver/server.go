package mcpserver

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/srdiag/srdiag-mcp/internal/audit"
	"github.com/srdiag/srdiag-mcp/internal/central"
	"github.com/srdiag/srdiag-mcp/internal/config"
	"github.com/srdiag/srdiag-mcp/internal/loop"
)

// Package mcpserver exposes the diagnostic tools over the MCP stdio
// transport. The tool list is the union of the locally-declared
// definitions and the orchestrator's dynamic catalogue, with local
// definitions winning on name collision. Execution always routes
// through the orchestration loop.

// Version is reported in the MCP handshake.
const Version = "1.0.0"

// catalogueRefreshInterval is how often the orchestrator catalogue is
// re-checked for tools that were missing at startup or added since.
const catalogueRefreshInterval = 10 * time.Minute

// Server wires the MCP runtime to the orchestration loop.
type Server struct {
	cfg     *config.Config
	central *central.Client
	runner  *loop.Runner
	audit   *audit.Logger
	mcp     *mcpserver.MCPServer

	mu         sync.Mutex
	registered map[string]bool
}

// New constructs the stdio server. Tools are registered on Start, when
// a context for the catalogue fetch exists.
func New(cfg *config.Config, centralClient *central.Client, runner *loop.Runner, auditLog *audit.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		central:    centralClient,
		runner:     runner,
		audit:      auditLog,
		registered: make(map[string]bool),
	}
	s.mcp = mcpserver.NewMCPServer(
		"srdiag-mcp",
		Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
	)
	return s
}

// Start registers tools and serves stdio until the context is
// cancelled or the client disconnects. A background loop keeps the
// catalogue-backed tool list current for the life of the process.
func (s *Server) Start(ctx context.Context) error {
	s.registerTools(ctx)
	go s.refreshCatalogue(ctx)

	stdio := mcpserver.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// registerTools installs the local definitions first, then the
// orchestrator catalogue. A catalogue failure at startup is not fatal:
// the local tools still work, and the periodic refresh retries.
func (s *Server) registerTools(ctx context.Context) {
	for _, def := range localTools() {
		s.addTool(def.name, def.description, def.schema)
	}

	if err := s.registerCatalogue(ctx); err != nil {
		s.audit.Error(audit.EventError, "tool catalogue unavailable; serving local tools only", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// registerCatalogue merges the orchestrator catalogue into the tool
// list. Names already registered are skipped, so local definitions win
// on collision and repeated refreshes are idempotent.
func (s *Server) registerCatalogue(ctx context.Context) error {
	catalogue, err := s.central.Tools(ctx)
	if err != nil {
		return err
	}
	for _, def := range catalogue {
		if s.isRegistered(def.Name) {
			continue
		}
		s.addTool(def.Name, def.Description, marshalSchema(def.InputSchema))
	}
	return nil
}

// refreshCatalogue re-fetches the catalogue on a timer, so tools the
// orchestrator adds (or could not serve during a startup outage) appear
// in list_tools without a process restart. The client's one-hour cache
// makes the steady-state fetch a no-op.
func (s *Server) refreshCatalogue(ctx context.Context) {
	ticker := time.NewTicker(catalogueRefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.registerCatalogue(ctx); err != nil {
				s.audit.Error(audit.EventError, "tool catalogue refresh failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

func (s *Server) addTool(name, description string, schema []byte) {
	tool := mcp.NewToolWithRawSchema(name, description, schema)
	s.mcp.AddTool(tool, s.handler(name))

	s.mu.Lock()
	s.registered[name] = true
	s.mu.Unlock()
}

func (s *Server) isRegistered(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered[name]
}

// handler adapts one tool name onto the orchestration loop.
func (s *Server) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		if args == nil {
			args = make(map[string]interface{})
		}

		s.audit.Info(audit.EventClientRequest, "call_tool "+name, map[string]interface{}{
			"tool": name,
			"args": args,
		})

		token := progressToken(request)
		s.notifyProgress(ctx, token, 0, "开始执行 "+name)

		outcome, err := s.runner.Run(ctx, name, args)
		if err != nil {
			s.audit.Error(audit.EventError, "tool call failed", map[string]interface{}{
				"tool":  name,
				"error": err.Error(),
			})
			return &mcp.CallToolResult{
				Content: []mcp.Content{mcp.NewTextContent(s.failureText(err))},
				IsError: true,
			}, nil
		}

		s.notifyProgress(ctx, token, 100, "完成")
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(outcome.Text)},
		}, nil
	}
}

// progressToken picks the client's own token when present, then the
// tool-use identifier from _meta, else a request-scoped fallback.
func progressToken(request mcp.CallToolRequest) any {
	if meta := request.Params.Meta; meta != nil {
		if meta.ProgressToken != nil {
			return meta.ProgressToken
		}
		if v, ok := meta.AdditionalFields["toolUseId"]; ok {
			return v
		}
	}
	return uuid.NewString()
}

func (s *Server) notifyProgress(ctx context.Context, token any, progress float64, message string) {
	srv := mcpserver.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	_ = srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
		"progressToken": token,
		"progress":      progress,
		"total":         100,
		"message":       message,
	})
}

// failureText is the error surface returned to the client, with enough
// environment detail to troubleshoot connectivity without reading logs.
func (s *Server) failureText(err error) string {
	var b strings.Builder
	fmt.Fprintf(&b, "❌ 工具执行失败: %v\n\n", err)
	b.WriteString("排查提示:\n")
	fmt.Fprintf(&b, "- Orchestrator: %s\n", s.central.BaseURL())
	fmt.Fprintf(&b, "- 数据库: %s:%d\n", s.cfg.Database.Host, s.cfg.Database.Port)
	if s.central.HasToken() {
		b.WriteString("- API Token: 已配置\n")
	} else {
		b.WriteString("- API Token: 未配置\n")
	}
	return b.String()
}
