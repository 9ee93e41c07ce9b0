package mcp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.temporal.io/sdk/log"
	"golang.org/x/sync/errgroup"

	"github.com/mfateev/temporal-agent-loop/internal/logging"
	"github.com/mfateev/temporal-agent-loop/internal/version"
)

// Tool describes one tool discovered on an MCP server.
type Tool struct {
	QualifiedName string
	Server        string
	Name          string
	Description   string
	InputSchema   map[string]interface{}
	ReadOnly      bool
}

type connection struct {
	session *gomcp.ClientSession
	config  ServerConfig
}

// Manager owns the client sessions for a set of MCP servers.
type Manager struct {
	mu     sync.Mutex
	conns  map[string]*connection
	tools  map[string]Tool
	logger log.Logger
}

// NewManager creates an empty manager.
func NewManager(logger log.Logger) *Manager {
	return &Manager{
		conns:  make(map[string]*connection),
		tools:  make(map[string]Tool),
		logger: logging.OrNop(logger),
	}
}

// Connect starts every enabled server in parallel and lists its tools.
// Optional servers that fail are logged and skipped; the returned map holds
// their errors. A failing required server fails the whole call.
func (m *Manager) Connect(ctx context.Context, servers map[string]ServerConfig) (map[string]error, error) {
	type outcome struct {
		session *gomcp.ClientSession
		tools   []*gomcp.Tool
		err     error
	}
	names := make([]string, 0, len(servers))
	for name, cfg := range servers {
		if !cfg.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	outcomes := make([]outcome, len(names))
	var g errgroup.Group
	for i, name := range names {
		cfg := servers[name]
		g.Go(func() error {
			session, tools, err := m.start(ctx, name, cfg)
			outcomes[i] = outcome{session: session, tools: tools, err: err}
			return nil
		})
	}
	_ = g.Wait()

	failures := make(map[string]error)
	for i, name := range names {
		o := outcomes[i]
		if o.err != nil {
			failures[name] = o.err
			m.logger.Warn("MCP server failed to start", "server", name, "error", o.err)
			continue
		}
		m.AddSession(name, o.session, servers[name], o.tools)
	}
	for name, err := range failures {
		if servers[name].Required {
			m.Close()
			return failures, fmt.Errorf("required MCP server %s failed: %w", name, err)
		}
	}
	return failures, nil
}

func (m *Manager) start(ctx context.Context, name string, cfg ServerConfig) (*gomcp.ClientSession, []*gomcp.Tool, error) {
	transport, err := newTransport(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("server %s: %w", name, err)
	}
	client := gomcp.NewClient(&gomcp.Implementation{Name: "agent-loop", Version: version.Version}, nil)

	startCtx, cancel := context.WithTimeout(ctx, cfg.startupTimeout())
	defer cancel()
	session, err := client.Connect(startCtx, transport, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("connect %s: %w", name, err)
	}
	res, err := session.ListTools(startCtx, nil)
	if err != nil {
		_ = session.Close()
		return nil, nil, fmt.Errorf("list tools on %s: %w", name, err)
	}
	return session, res.Tools, nil
}

func newTransport(cfg ServerConfig) (gomcp.Transport, error) {
	switch {
	case cfg.Command != "" && cfg.URL != "":
		return nil, fmt.Errorf("command and url are mutually exclusive")
	case cfg.Command != "":
		// The command outlives Connect's startup deadline, so it is not bound to it.
		cmd := exec.Command(cfg.Command, cfg.Args...)
		cmd.Dir = cfg.Cwd
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		return &gomcp.CommandTransport{Command: cmd}, nil
	case cfg.URL != "":
		return &gomcp.StreamableClientTransport{Endpoint: cfg.URL}, nil
	default:
		return nil, fmt.Errorf("neither command nor url configured")
	}
}

// AddSession registers an already-connected session and its tools. Tools
// rejected by the server's filters, or whose qualified name collides with an
// existing one, are skipped.
func (m *Manager) AddSession(server string, session *gomcp.ClientSession, cfg ServerConfig, tools []*gomcp.Tool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[server] = &connection{session: session, config: cfg}
	for _, t := range tools {
		if t == nil || !cfg.Allows(t.Name) {
			continue
		}
		qualified := QualifiedName(server, t.Name)
		if _, dup := m.tools[qualified]; dup {
			m.logger.Warn("Skipping duplicate MCP tool", "tool", qualified)
			continue
		}
		info := Tool{
			QualifiedName: qualified,
			Server:        server,
			Name:          t.Name,
			Description:   t.Description,
			ReadOnly:      t.Annotations != nil && t.Annotations.ReadOnlyHint,
		}
		if schema, ok := t.InputSchema.(map[string]any); ok {
			info.InputSchema = schema
		}
		m.tools[qualified] = info
	}
}

// Tools returns all discovered tools sorted by qualified name.
func (m *Manager) Tools() []Tool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Tool, 0, len(m.tools))
	for _, t := range m.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QualifiedName < out[j].QualifiedName })
	return out
}

// Lookup returns the tool registered under a qualified name.
func (m *Manager) Lookup(qualified string) (Tool, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tools[qualified]
	return t, ok
}

// CallResult is the flattened outcome of an MCP tool call.
type CallResult struct {
	Text    string
	IsError bool
}

// Call invokes a tool and flattens its content to text. Non-text content is
// rendered as a short placeholder.
func (m *Manager) Call(ctx context.Context, server, tool string, args map[string]interface{}) (CallResult, error) {
	m.mu.Lock()
	conn, ok := m.conns[server]
	m.mu.Unlock()
	if !ok {
		return CallResult{}, fmt.Errorf("MCP server %q not connected", server)
	}

	callCtx, cancel := context.WithTimeout(ctx, conn.config.toolTimeout())
	defer cancel()
	res, err := conn.session.CallTool(callCtx, &gomcp.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		return CallResult{}, fmt.Errorf("MCP call %s/%s: %w", server, tool, err)
	}

	parts := make([]string, 0, len(res.Content))
	for _, c := range res.Content {
		switch v := c.(type) {
		case *gomcp.TextContent:
			parts = append(parts, v.Text)
		case *gomcp.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s]", v.MIMEType))
		case *gomcp.AudioContent:
			parts = append(parts, fmt.Sprintf("[audio %s]", v.MIMEType))
		default:
			parts = append(parts, "[unsupported content]")
		}
	}
	return CallResult{Text: strings.Join(parts, "\n"), IsError: res.IsError}, nil
}

// Close shuts down every session.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, c := range m.conns {
		if err := c.session.Close(); err != nil {
			m.logger.Warn("Error closing MCP session", "server", name, "error", err)
		}
	}
	m.conns = make(map[string]*connection)
	m.tools = make(map[string]Tool)
}
