package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/maxassist/internal/config"
)

// MCPSource answers weather and directions lookups by calling tools on a
// Model Context Protocol server. Tool results are expected as JSON objects
// shaped like [Weather] and [Route], either as structured content or as a
// single text block.
//
// An MCPSource is safe for concurrent use; the underlying client session
// multiplexes calls.
type MCPSource struct {
	name           string
	session        *mcpsdk.ClientSession
	tools          map[string]bool
	weatherTool    string
	directionsTool string
}

var (
	_ WeatherSource    = (*MCPSource)(nil)
	_ DirectionsSource = (*MCPSource)(nil)
)

// DialMCP connects to the MCP server described by cfg and discovers its
// tools.
//
// For the stdio transport, cfg.Command is split on whitespace into executable
// and arguments and cfg.Env is appended to the subprocess environment. For
// streamable-http, cfg.URL is the endpoint.
func DialMCP(ctx context.Context, cfg config.MCPServerConfig) (*MCPSource, error) {
	var transport mcpsdk.Transport

	switch cfg.Transport {
	case config.TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("lookup: stdio server %q requires a non-empty command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case config.TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("lookup: streamable-http server %q requires a non-empty url", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return nil, fmt.Errorf("lookup: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	return connect(ctx, cfg, transport)
}

func connect(ctx context.Context, cfg config.MCPServerConfig, transport mcpsdk.Transport) (*MCPSource, error) {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "maxassist-lookup", Version: "1.0.0"},
		nil,
	)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("lookup: connect to server %q: %w", cfg.Name, err)
	}

	tools := make(map[string]bool)
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("lookup: list tools for server %q: %w", cfg.Name, err)
		}
		tools[tool.Name] = true
	}

	for _, want := range []string{cfg.WeatherTool, cfg.DirectionsTool} {
		if !tools[want] {
			slog.Warn("lookup: mcp server does not offer configured tool",
				"server", cfg.Name, "tool", want)
		}
	}

	return &MCPSource{
		name:           cfg.Name,
		session:        session,
		tools:          tools,
		weatherTool:    cfg.WeatherTool,
		directionsTool: cfg.DirectionsTool,
	}, nil
}

// Weather implements [WeatherSource] by calling the configured weather tool
// with {"location": location}.
func (m *MCPSource) Weather(ctx context.Context, location string) (Weather, error) {
	var w Weather
	if err := m.call(ctx, m.weatherTool, map[string]any{"location": location}, &w); err != nil {
		return Weather{}, err
	}
	if w.Location == "" {
		w.Location = location
	}
	if w.Condition == "" {
		return Weather{}, fmt.Errorf("lookup: %s returned no condition: %w", m.weatherTool, ErrNoResult)
	}
	return w, nil
}

// Directions implements [DirectionsSource] by calling the configured
// directions tool with {"from": from, "to": to}.
func (m *MCPSource) Directions(ctx context.Context, from, to string) (Route, error) {
	var r Route
	if err := m.call(ctx, m.directionsTool, map[string]any{"from": from, "to": to}, &r); err != nil {
		return Route{}, err
	}
	if r.Start == "" {
		r.Start = from
	}
	if r.Destination == "" {
		r.Destination = to
	}
	if len(r.Steps) == 0 {
		return Route{}, fmt.Errorf("lookup: %s returned no steps: %w", m.directionsTool, ErrNoResult)
	}
	return r, nil
}

// Close terminates the session with the MCP server.
func (m *MCPSource) Close() error {
	return m.session.Close()
}

func (m *MCPSource) call(ctx context.Context, tool string, args map[string]any, out any) error {
	if !m.tools[tool] {
		return fmt.Errorf("lookup: server %q does not offer tool %q: %w", m.name, tool, ErrNoResult)
	}

	res, err := m.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return fmt.Errorf("lookup: call %q on %q: %w", tool, m.name, err)
	}

	text := resultText(res)
	if res.IsError {
		return fmt.Errorf("lookup: tool %q failed: %s", tool, text)
	}

	if res.StructuredContent != nil {
		raw, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return fmt.Errorf("lookup: encode structured result of %q: %w", tool, err)
		}
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
	}

	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("lookup: tool %q returned no content: %w", tool, ErrNoResult)
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return errors.Join(
			fmt.Errorf("lookup: decode result of %q: %w", tool, err),
			ErrNoResult,
		)
	}
	return nil
}

// resultText concatenates the text blocks of a tool result.
func resultText(res *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// splitCommand splits a command string on whitespace into executable and
// arguments.
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
