package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the brokerdesk MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetPanel = mcp.NewTool("get_panel",
	mcp.WithDescription(
		"Get the ticket intake panel: the available service tiers and the "+
			"form fields each request kind requires. Use this before opening a ticket."),
)

var ToolOpenTicket = mcp.NewTool("open_ticket",
	mcp.WithDescription(
		"Open a support or brokered-trade ticket on behalf of a requester. "+
			"Creates a private channel visible to the requester and eligible staff. "+
			"Returns the channel reference to use with other tools."),
	mcp.WithString("requester_id",
		mcp.Required(),
		mcp.Description("The requesting member's principal reference")),
	mcp.WithString("tier",
		mcp.Required(),
		mcp.Description("Service tier key (e.g. 'basic', 'advanced', 'premium', 'og')")),
	mcp.WithString("kind",
		mcp.Required(),
		mcp.Description("Request kind: 'brokered-trade' or 'general-support'"),
		mcp.Enum("brokered-trade", "general-support")),
	mcp.WithObject("fields",
		mcp.Description("Form fields for the request kind. Use get_panel to see the schema. For brokered-trade: counterparty, offering, requesting, bothJoin, tip.")),
)

var ToolGetTicket = mcp.NewTool("get_ticket",
	mcp.WithDescription(
		"Look up one active ticket by its channel reference. "+
			"Shows the requester, tier, request details, and who holds the claim."),
	mcp.WithString("channel",
		mcp.Required(),
		mcp.Description("The ticket's channel reference")),
)

var ToolListTickets = mcp.NewTool("list_tickets",
	mcp.WithDescription(
		"List all active tickets on the desk, oldest first. "+
			"Shows which tickets are unclaimed and waiting for staff."),
)

var ToolClaimTicket = mcp.NewTool("claim_ticket",
	mcp.WithDescription(
		"Claim a ticket so you are its sole handler. "+
			"Other eligible staff lose access to the channel while you hold the claim. "+
			"Fails if the ticket is already claimed or your role rank is below the ticket's tier."),
	mcp.WithString("channel",
		mcp.Required(),
		mcp.Description("The ticket's channel reference")),
)

var ToolUnclaimTicket = mcp.NewTool("unclaim_ticket",
	mcp.WithDescription(
		"Release your claim on a ticket, restoring access for all eligible staff. "+
			"Only the claim holder (or an admin) can unclaim."),
	mcp.WithString("channel",
		mcp.Required(),
		mcp.Description("The ticket's channel reference")),
)

var ToolCloseTicket = mcp.NewTool("close_ticket",
	mcp.WithDescription(
		"Close a ticket. The ticket is removed immediately and the channel "+
			"is deleted after a short grace period. Closing twice is harmless."),
	mcp.WithString("channel",
		mcp.Required(),
		mcp.Description("The ticket's channel reference")),
)

var ToolRecordProof = mcp.NewTool("record_proof",
	mcp.WithDescription(
		"Record a completed deal for yourself against a ticket and post the "+
			"trade details to the proof channel. Increments your completion count."),
	mcp.WithString("channel",
		mcp.Required(),
		mcp.Description("The channel reference of the ticket you completed")),
)

var ToolStaffStats = mcp.NewTool("staff_stats",
	mcp.WithDescription(
		"Get a staff member's completed-deal count and leaderboard rank. "+
			"Omit staff_id to look up your own stats."),
	mcp.WithString("staff_id",
		mcp.Description("Staff member's principal reference (defaults to you)")),
)

var ToolLeaderboard = mcp.NewTool("leaderboard",
	mcp.WithDescription(
		"Show the staff leaderboard ranked by completed deals."),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of entries to return (default 10)")),
)
