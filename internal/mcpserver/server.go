package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all brokerdesk tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("brokerdesk", "0.1.0")
	client := NewDeskClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetPanel, h.HandleGetPanel)
	s.AddTool(ToolOpenTicket, h.HandleOpenTicket)
	s.AddTool(ToolGetTicket, h.HandleGetTicket)
	s.AddTool(ToolListTickets, h.HandleListTickets)
	s.AddTool(ToolClaimTicket, h.HandleClaimTicket)
	s.AddTool(ToolUnclaimTicket, h.HandleUnclaimTicket)
	s.AddTool(ToolCloseTicket, h.HandleCloseTicket)
	s.AddTool(ToolRecordProof, h.HandleRecordProof)
	s.AddTool(ToolStaffStats, h.HandleStaffStats)
	s.AddTool(ToolLeaderboard, h.HandleLeaderboard)

	return s
}
