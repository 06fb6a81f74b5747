package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all sixfinger tools registered.
func NewMCPServer(cfg Config, version string) *server.MCPServer {
	s := server.NewMCPServer("sixfinger", version)
	h := NewHandlers(NewClient(cfg))

	s.AddTool(ToolSubmitFingerprint, h.HandleSubmitFingerprint)
	s.AddTool(ToolGetFingerprint, h.HandleGetFingerprint)
	s.AddTool(ToolGetRiskScore, h.HandleGetRiskScore)
	s.AddTool(ToolEvaluateComponents, h.HandleEvaluateComponents)
	s.AddTool(ToolListFingerprints, h.HandleListFingerprints)
	s.AddTool(ToolListRules, h.HandleListRules)

	return s
}
