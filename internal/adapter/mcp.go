package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"mcphub/internal/hub"
	"mcphub/pkg/logging"
)

// mcpProtocolVersion is the MCP protocol revision the probe negotiates.
const mcpProtocolVersion = "2024-11-05"

// MCPAdapter manages an MCP server process. Start and Stop delegate to the
// embedded command adapter; the probe speaks the MCP protocol over SSE and
// lists the server's tools, which exercises the full request path rather
// than just the listener.
type MCPAdapter struct {
	*CommandAdapter
}

// NewMCPAdapter creates an MCP adapter for the configuration.
func NewMCPAdapter(cfg hub.ServerConfig) (*MCPAdapter, error) {
	base, err := NewCommandAdapter(cfg)
	if err != nil {
		return nil, err
	}
	return &MCPAdapter{CommandAdapter: base}, nil
}

// NewMCPFactory is the Factory for the "mcp" server type.
func NewMCPFactory() Factory {
	return func(cfg hub.ServerConfig) (ServerAdapter, error) {
		return NewMCPAdapter(cfg)
	}
}

// Probe connects an MCP client to the server's SSE endpoint, initializes
// the protocol, and lists tools.
func (a *MCPAdapter) Probe(ctx context.Context) (ProbeReport, error) {
	started := time.Now()

	endpoint := fmt.Sprintf("http://localhost:%d/sse", a.cfg.Port)
	mcpClient, err := client.NewSSEMCPClient(endpoint)
	if err != nil {
		return ProbeReport{}, fmt.Errorf("failed to create MCP client for %s: %w", a.cfg.ID, err)
	}
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		return ProbeReport{}, fmt.Errorf("failed to connect to MCP server %s: %w", a.cfg.ID, err)
	}

	initResult, err := mcpClient.Initialize(ctx, mcp.InitializeRequest{
		Params: struct {
			ProtocolVersion string                 `json:"protocolVersion"`
			Capabilities    mcp.ClientCapabilities `json:"capabilities"`
			ClientInfo      mcp.Implementation     `json:"clientInfo"`
		}{
			ProtocolVersion: mcpProtocolVersion,
			ClientInfo: mcp.Implementation{
				Name:    "mcphub",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	if err != nil {
		return ProbeReport{}, fmt.Errorf("failed to initialize MCP protocol for %s: %w", a.cfg.ID, err)
	}

	var toolCount int
	if initResult.Capabilities.Tools != nil {
		toolsResult, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			return ProbeReport{}, fmt.Errorf("failed to list tools for %s: %w", a.cfg.ID, err)
		}
		toolCount = len(toolsResult.Tools)
	}

	logging.Debug("MCPAdapter", "MCP server %s is healthy, %d tools listed", a.cfg.ID, toolCount)

	return ProbeReport{
		Metrics: &hub.HealthMetrics{
			ResponseTimeMs: float64(time.Since(started).Microseconds()) / 1000.0,
		},
	}, nil
}
