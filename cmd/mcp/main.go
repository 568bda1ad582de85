// Brokerdesk MCP Server - Exposes the ticket desk as MCP tools for LLMs
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"

	"github.com/kmills/brokerdesk/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:   envOrDefault("BROKERDESK_API_URL", "http://localhost:8080"),
		APIToken: os.Getenv("BROKERDESK_API_TOKEN"),
		StaffID:  os.Getenv("BROKERDESK_STAFF_ID"),
		Admin:    os.Getenv("BROKERDESK_STAFF_ADMIN") == "true",
	}
	if roles := os.Getenv("BROKERDESK_STAFF_ROLES"); roles != "" {
		for _, r := range strings.Split(roles, ",") {
			if r = strings.TrimSpace(r); r != "" {
				cfg.StaffRoles = append(cfg.StaffRoles, r)
			}
		}
	}

	if cfg.StaffID == "" {
		fmt.Fprintln(os.Stderr, "BROKERDESK_STAFF_ID is required")
		os.Exit(1)
	}

	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
