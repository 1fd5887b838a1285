// Package mcptools bridges MCP (Model Context Protocol) servers into the
// chat engine's capability registry. Each tool advertised by a connected
// server becomes a registrable chat.Capability.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	mcptypes "github.com/mark3labs/mcp-go/mcp"

	"github.com/bigduu/chatengine/chat"
)

const protocolVersion = "2025-06-18"

// ServerConfig describes a stdio MCP server to launch.
type ServerConfig struct {
	Name    string            `toml:"name" json:"name"`
	Command string            `toml:"command" json:"command"`
	Args    []string          `toml:"args" json:"args"`
	Env     map[string]string `toml:"env" json:"env"`
}

// toolCaller is the slice of the MCP client the capabilities need.
type toolCaller interface {
	CallTool(ctx context.Context, request mcptypes.CallToolRequest) (*mcptypes.CallToolResult, error)
}

// Server is a connected MCP server and its advertised tools.
type Server struct {
	name   string
	client *client.Client
	tools  []mcptypes.Tool
}

// Connect launches a stdio MCP server, initializes the protocol and lists
// its tools.
func Connect(ctx context.Context, cfg ServerConfig) (*Server, error) {
	var env []string
	for k, v := range cfg.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	mcpClient, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to start MCP server %s: %w", cfg.Name, err)
	}

	initReq := mcptypes.InitializeRequest{
		Params: mcptypes.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcptypes.ClientCapabilities{},
			ClientInfo: mcptypes.Implementation{
				Name:    "chatengine",
				Version: "1.0.0",
			},
		},
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to initialize MCP server %s: %w", cfg.Name, err)
	}

	toolsResult, err := mcpClient.ListTools(ctx, mcptypes.ListToolsRequest{})
	if err != nil {
		mcpClient.Close()
		return nil, fmt.Errorf("failed to list tools for %s: %w", cfg.Name, err)
	}

	return &Server{
		name:   cfg.Name,
		client: mcpClient,
		tools:  toolsResult.Tools,
	}, nil
}

// Name returns the configured server name.
func (s *Server) Name() string { return s.name }

// Close shuts the server connection down.
func (s *Server) Close() error { return s.client.Close() }

// RegisterTools registers every advertised tool on the registry. Tool
// names are prefixed with the server name to avoid collisions between
// servers.
func (s *Server) RegisterTools(reg *chat.Registry) {
	for _, tool := range s.tools {
		reg.Register(newCapability(s.name, tool, s.client))
	}
}

// Capabilities returns the advertised tools as capabilities without
// registering them.
func (s *Server) Capabilities() []chat.Capability {
	caps := make([]chat.Capability, 0, len(s.tools))
	for _, tool := range s.tools {
		caps = append(caps, newCapability(s.name, tool, s.client))
	}
	return caps
}

// capability adapts one MCP tool to the chat.Capability interface.
type capability struct {
	name        string
	toolName    string
	description string
	parameters  map[string]any
	readOnly    bool
	caller      toolCaller
}

func newCapability(serverName string, tool mcptypes.Tool, caller toolCaller) *capability {
	name := tool.Name
	if serverName != "" {
		name = serverName + "__" + tool.Name
	}

	readOnly := false
	if tool.Annotations.ReadOnlyHint != nil {
		readOnly = *tool.Annotations.ReadOnlyHint
	}

	return &capability{
		name:        name,
		toolName:    tool.Name,
		description: tool.Description,
		parameters:  schemaToMap(tool.InputSchema),
		readOnly:    readOnly,
		caller:      caller,
	}
}

// schemaToMap converts the typed MCP input schema into the generic JSON
// schema form the registry uses.
func schemaToMap(schema mcptypes.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil || out == nil {
		return map[string]any{"type": "object"}
	}
	return out
}

func (c *capability) Name() string               { return c.name }
func (c *capability) Description() string        { return c.description }
func (c *capability) Parameters() map[string]any { return c.parameters }

// Permissions maps the server's read-only hint onto the role policy: a
// tool the server declares read-only is available to planners.
func (c *capability) Permissions() []chat.Permission {
	if c.readOnly {
		return []chat.Permission{chat.PermissionRead}
	}
	return []chat.Permission{chat.PermissionExecute}
}

func (c *capability) RequiresApproval() bool {
	return !c.readOnly
}

func (c *capability) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var arguments map[string]any
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("%s: invalid arguments: %w", c.name, err)
		}
	}

	result, err := c.caller.CallTool(ctx, mcptypes.CallToolRequest{
		Params: mcptypes.CallToolParams{
			Name:      c.toolName,
			Arguments: arguments,
		},
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", c.name, err)
	}

	content, err := json.Marshal(result.Content)
	if err != nil {
		return "", fmt.Errorf("%s: failed to marshal result: %w", c.name, err)
	}
	if result.IsError {
		return "", fmt.Errorf("%s: %s", c.name, string(content))
	}
	return string(content), nil
}
