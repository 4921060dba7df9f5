// Package mcpserver exposes the tool registry over the Model Context
// Protocol, so external MCP clients (editors, agents, inspectors) can call
// the same tools the chat loop uses. Tools are registered straight from the
// registry: each one carries the JSON Schema already generated for its
// argument struct, and calls are dispatched through Registry.Execute so MCP
// clients get the same structured Result envelope the model sees.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/koopa0/lakitu/internal/log"
	"github.com/koopa0/lakitu/internal/tools"
)

// Config holds MCP server configuration.
type Config struct {
	Name     string
	Version  string
	Registry *tools.Registry
	Logger   log.Logger
}

func (c *Config) validate() error {
	if c.Name == "" {
		return fmt.Errorf("server name is required")
	}
	if c.Version == "" {
		return fmt.Errorf("server version is required")
	}
	if c.Registry == nil {
		return fmt.Errorf("tool registry is required")
	}
	return nil
}

// Server wraps the MCP SDK server around the tool registry.
type Server struct {
	mcpServer *mcp.Server
	registry  *tools.Registry
	logger    log.Logger
}

// NewServer creates an MCP server with every registry tool registered.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{
		mcpServer: mcpServer,
		registry:  cfg.Registry,
		logger:    logger,
	}

	for _, name := range cfg.Registry.Names() {
		s.registerTool(cfg.Registry.Get(name))
	}

	return s, nil
}

// Run starts the MCP server on the given transport. It blocks until the
// context is canceled or the transport closes.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	s.logger.Info("MCP server starting", "tools", s.registry.Count())
	return s.mcpServer.Run(ctx, transport)
}

// registerTool wires one registry tool into the MCP server. The handler
// takes raw arguments as a map and lets Registry.Execute do the schema
// validation, so MCP callers and the chat loop share one validation path.
func (s *Server) registerTool(t *tools.ExecutableTool) {
	name := t.Name()
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        name,
		Description: t.Description(),
		InputSchema: t.InputSchema(),
	}, func(ctx context.Context, req *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, any, error) {
		result := s.registry.Execute(ctx, name, args)
		return resultToMCP(result), nil, nil
	})
}

// resultToMCP converts a tool Result into an MCP call result. Failures
// become IsError results rather than protocol errors, mirroring how the
// chat loop folds them back to the model.
func resultToMCP(result tools.Result) *mcp.CallToolResult {
	if !result.OK() {
		text := result.Message
		if result.Error != nil {
			text = fmt.Sprintf("Error [%s]: %s", result.Error.Code, result.Error.Message)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
			IsError: true,
		}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("encoding result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
	}
}
