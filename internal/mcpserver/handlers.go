package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *DeskClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *DeskClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetPanel returns the tier list and intake schemas.
func (h *Handlers) HandleGetPanel(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.GetPanel(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to fetch panel: %v", err)), nil
	}

	text, err := formatPanel(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse panel: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleOpenTicket opens a ticket from an intake submission.
func (h *Handlers) HandleOpenTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	requesterID := req.GetString("requester_id", "")
	if requesterID == "" {
		return mcp.NewToolResultError("requester_id is required"), nil
	}
	tierKey := req.GetString("tier", "")
	if tierKey == "" {
		return mcp.NewToolResultError("tier is required"), nil
	}
	kind := req.GetString("kind", "")
	if kind == "" {
		return mcp.NewToolResultError("kind is required"), nil
	}

	fields := make(map[string]string)
	if raw := req.GetArguments()["fields"]; raw != nil {
		if m, ok := raw.(map[string]any); ok {
			for k, v := range m {
				if s, ok := v.(string); ok {
					fields[k] = s
				}
			}
		}
	}

	raw, err := h.client.OpenTicket(ctx, requesterID, tierKey, kind, fields)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to open ticket: %v", err)), nil
	}

	text, err := formatTicket(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse ticket: %v", err)), nil
	}

	return mcp.NewToolResultText("Ticket opened.\n\n" + text), nil
}

// HandleGetTicket looks up one ticket.
func (h *Handlers) HandleGetTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channel := req.GetString("channel", "")
	if channel == "" {
		return mcp.NewToolResultError("channel is required"), nil
	}

	raw, err := h.client.GetTicket(ctx, channel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get ticket: %v", err)), nil
	}

	text, err := formatTicket(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse ticket: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListTickets lists all active tickets.
func (h *Handlers) HandleListTickets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.ListTickets(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list tickets: %v", err)), nil
	}

	text, err := formatTicketList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse tickets: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleClaimTicket claims a ticket for the configured staff member.
func (h *Handlers) HandleClaimTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channel := req.GetString("channel", "")
	if channel == "" {
		return mcp.NewToolResultError("channel is required"), nil
	}

	raw, err := h.client.ClaimTicket(ctx, channel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Claim failed: %v", err)), nil
	}

	text, err := formatTicket(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse ticket: %v", err)), nil
	}

	return mcp.NewToolResultText("Ticket claimed. You are now the sole handler.\n\n" + text), nil
}

// HandleUnclaimTicket releases a claim.
func (h *Handlers) HandleUnclaimTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channel := req.GetString("channel", "")
	if channel == "" {
		return mcp.NewToolResultError("channel is required"), nil
	}

	raw, err := h.client.UnclaimTicket(ctx, channel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Unclaim failed: %v", err)), nil
	}

	text, err := formatTicket(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse ticket: %v", err)), nil
	}

	return mcp.NewToolResultText("Claim released. All eligible staff can see the ticket again.\n\n" + text), nil
}

// HandleCloseTicket closes a ticket.
func (h *Handlers) HandleCloseTicket(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channel := req.GetString("channel", "")
	if channel == "" {
		return mcp.NewToolResultError("channel is required"), nil
	}

	_, err := h.client.CloseTicket(ctx, channel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Close failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Ticket %s closed. The channel will be deleted shortly.", channel)), nil
}

// HandleRecordProof records a completion against a ticket.
func (h *Handlers) HandleRecordProof(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	channel := req.GetString("channel", "")
	if channel == "" {
		return mcp.NewToolResultError("channel is required"), nil
	}

	raw, err := h.client.RecordProof(ctx, channel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to record proof: %v", err)), nil
	}

	var resp struct {
		StaffID string `json:"staffId"`
		Count   int    `json:"count"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse response: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Deal recorded and posted to the proof channel.\n"+
			"Your completed count is now %d.", resp.Count)), nil
}

// HandleStaffStats returns a staff member's stats.
func (h *Handlers) HandleStaffStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	staffID := req.GetString("staff_id", "")
	if staffID == "" {
		staffID = h.client.cfg.StaffID
	}
	if staffID == "" {
		return mcp.NewToolResultError("staff_id is required"), nil
	}

	raw, err := h.client.StaffStats(ctx, staffID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get stats: %v", err)), nil
	}

	text, err := formatStats(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse stats: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleLeaderboard returns the staff leaderboard.
func (h *Handlers) HandleLeaderboard(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 10)

	raw, err := h.client.Leaderboard(ctx, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get leaderboard: %v", err)), nil
	}

	text, err := formatLeaderboard(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse leaderboard: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// --- Formatting helpers ---

type ticketInfo struct {
	ChannelRef  string            `json:"channelRef"`
	RequesterID string            `json:"requesterId"`
	CreatedAt   string            `json:"createdAt"`
	TierKey     string            `json:"tierKey"`
	Kind        string            `json:"kind"`
	Payload     map[string]string `json:"payload"`
	ClaimantID  string            `json:"claimantId"`
}

func formatTicket(raw json.RawMessage) (string, error) {
	var t ticketInfo
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Channel: %s\n", t.ChannelRef)
	fmt.Fprintf(&sb, "Requester: %s\n", t.RequesterID)
	fmt.Fprintf(&sb, "Tier: %s | Kind: %s\n", t.TierKey, t.Kind)
	if t.ClaimantID != "" {
		fmt.Fprintf(&sb, "Claimed by: %s\n", t.ClaimantID)
	} else {
		sb.WriteString("Status: unclaimed\n")
	}
	if len(t.Payload) > 0 {
		sb.WriteString("Details:\n")
		sb.WriteString(formatPayload(t.Payload))
	}
	return sb.String(), nil
}

func formatTicketList(raw json.RawMessage) (string, error) {
	var resp struct {
		Tickets []ticketInfo `json:"tickets"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("unexpected tickets response format")
	}

	if len(resp.Tickets) == 0 {
		return "No active tickets.", nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d active ticket(s):\n\n", len(resp.Tickets))
	for i, t := range resp.Tickets {
		status := "unclaimed"
		if t.ClaimantID != "" {
			status = "claimed by " + t.ClaimantID
		}
		fmt.Fprintf(&sb, "%d. %s (%s, %s)\n", i+1, t.ChannelRef, t.TierKey, t.Kind)
		fmt.Fprintf(&sb, "   Requester: %s | %s\n", t.RequesterID, status)
	}
	return sb.String(), nil
}

// formatPayload renders field names in a stable order.
func formatPayload(payload map[string]string) string {
	order := []string{"counterparty", "offering", "requesting", "bothJoin", "tip", "reason", "details"}
	seen := make(map[string]bool, len(payload))

	var sb strings.Builder
	for _, k := range order {
		if v, ok := payload[k]; ok {
			fmt.Fprintf(&sb, "  %s: %s\n", k, v)
			seen[k] = true
		}
	}
	for k, v := range payload {
		if !seen[k] {
			fmt.Fprintf(&sb, "  %s: %s\n", k, v)
		}
	}
	return sb.String()
}

func formatPanel(raw json.RawMessage) (string, error) {
	var resp struct {
		Tiers []struct {
			Key         string `json:"key"`
			DisplayName string `json:"displayName"`
			RangeLabel  string `json:"rangeLabel"`
			Rank        int    `json:"rank"`
		} `json:"tiers"`
		Kinds []struct {
			Kind   string `json:"kind"`
			Fields []struct {
				Name     string `json:"name"`
				Label    string `json:"label"`
				Required bool   `json:"required"`
			} `json:"fields"`
		} `json:"kinds"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Service tiers:\n")
	for _, t := range resp.Tiers {
		name := t.DisplayName
		if name == "" {
			name = t.Key
		}
		if t.RangeLabel != "" {
			name += " " + t.RangeLabel
		}
		fmt.Fprintf(&sb, "  %s (rank %d): %s\n", t.Key, t.Rank, name)
	}
	sb.WriteString("\nRequest kinds:\n")
	for _, k := range resp.Kinds {
		fmt.Fprintf(&sb, "  %s:\n", k.Kind)
		for _, f := range k.Fields {
			req := "optional"
			if f.Required {
				req = "required"
			}
			fmt.Fprintf(&sb, "    %s (%s): %s\n", f.Name, req, f.Label)
		}
	}
	return sb.String(), nil
}

func formatStats(raw json.RawMessage) (string, error) {
	var resp struct {
		StaffID    string `json:"staffId"`
		Count      int    `json:"count"`
		Rank       int    `json:"rank"`
		TotalStaff int    `json:"totalStaff"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Staff: %s\n", resp.StaffID)
	fmt.Fprintf(&sb, "Completed deals: %d\n", resp.Count)
	if resp.Rank > 0 {
		fmt.Fprintf(&sb, "Rank: %d of %d\n", resp.Rank, resp.TotalStaff)
	}
	return sb.String(), nil
}

func formatLeaderboard(raw json.RawMessage) (string, error) {
	var resp struct {
		Leaderboard []struct {
			StaffID string `json:"staffId"`
			Count   int    `json:"count"`
		} `json:"leaderboard"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", err
	}

	if len(resp.Leaderboard) == 0 {
		return "No completed deals recorded yet.", nil
	}

	var sb strings.Builder
	sb.WriteString("Staff leaderboard:\n\n")
	for i, e := range resp.Leaderboard {
		fmt.Fprintf(&sb, "%d. %s - %d deal(s)\n", i+1, e.StaffID, e.Count)
	}
	return sb.String(), nil
}
