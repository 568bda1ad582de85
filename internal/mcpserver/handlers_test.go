package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:     ts.URL,
		APIToken:   "tok_test",
		StaffID:    "staff-1",
		StaffRoles: []string{"role-premium"},
	}
	client := NewDeskClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"tickets":[]}`))
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, APIToken: "tok_secret", StaffID: "staff-1"})
	_, err := client.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok_secret", gotAuth)
}

func TestClient_DoRequest_NoTokenNoHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"tickets":[]}`))
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.ListTickets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "ticket not found"})
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.GetTicket(context.Background(), "100000000000000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "ticket not found")
}

func TestClient_DoRequest_HTTPError_ClaimConflict(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":      "ticket already claimed",
			"claimantId": "staff-2",
		})
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.ClaimTicket(context.Background(), "100000000000000001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "held by staff-2")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.ListTickets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewDeskClient(Config{APIURL: "http://127.0.0.1:1", StaffID: "staff-1"})
	_, err := client.ListTickets(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListTickets(ctx)
	require.Error(t, err)
}

func TestClient_ClaimTicket_ActorBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/tickets/100000000000000001/claim", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "staff-1", m["id"])
		assert.Equal(t, []any{"role-basic", "role-og"}, m["roles"])
		assert.Equal(t, true, m["admin"])

		_ = json.NewEncoder(w).Encode(map[string]any{"channelRef": "100000000000000001"})
	}))
	defer ts.Close()

	client := NewDeskClient(Config{
		APIURL:     ts.URL,
		StaffID:    "staff-1",
		StaffRoles: []string{"role-basic", "role-og"},
		Admin:      true,
	})
	_, err := client.ClaimTicket(context.Background(), "100000000000000001")
	require.NoError(t, err)
}

func TestClient_OpenTicket_RequestBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tickets", r.URL.Path)

		body, _ := io.ReadAll(r.Body)
		var m map[string]any
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "user-9", m["requesterId"])
		assert.Equal(t, "premium", m["tierKey"])
		assert.Equal(t, "brokered-trade", m["kind"])
		fields, _ := m["fields"].(map[string]any)
		assert.Equal(t, "user-8", fields["counterparty"])

		_ = json.NewEncoder(w).Encode(map[string]any{"channelRef": "100000000000000001"})
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.OpenTicket(context.Background(), "user-9", "premium", "brokered-trade",
		map[string]string{"counterparty": "user-8"})
	require.NoError(t, err)
}

func TestClient_Leaderboard_QueryParams(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`{"leaderboard":[]}`))
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.Leaderboard(context.Background(), 5)
	require.NoError(t, err)
}

func TestClient_Leaderboard_ZeroLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("limit"), "limit=0 should not be sent")
		_, _ = w.Write([]byte(`{"leaderboard":[]}`))
	}))
	defer ts.Close()

	client := NewDeskClient(Config{APIURL: ts.URL, StaffID: "staff-1"})
	_, err := client.Leaderboard(context.Background(), 0)
	require.NoError(t, err)
}

// ============================================================
// Handler tests
// ============================================================

func TestHandleOpenTicket_Success(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"channelRef":  "100000000000000001",
			"requesterId": "user-9",
			"tierKey":     "premium",
			"kind":        "brokered-trade",
			"payload":     map[string]string{"counterparty": "user-8", "offering": "200M", "requesting": "500 Robux", "bothJoin": "YES", "tip": "None"},
		})
	}))
	defer closeFn()

	result, err := h.HandleOpenTicket(context.Background(), makeRequest(map[string]any{
		"requester_id": "user-9",
		"tier":         "premium",
		"kind":         "brokered-trade",
		"fields": map[string]any{
			"counterparty": "user-8",
			"offering":     "200M",
			"requesting":   "500 Robux",
			"bothJoin":     "YES",
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Ticket opened")
	assert.Contains(t, text, "100000000000000001")
	assert.Contains(t, text, "user-9")
	assert.Contains(t, text, "counterparty: user-8")
}

func TestHandleOpenTicket_MissingArgs(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made")
	}))
	defer closeFn()

	for name, args := range map[string]map[string]any{
		"no requester": {"tier": "basic", "kind": "general-support"},
		"no tier":      {"requester_id": "u1", "kind": "general-support"},
		"no kind":      {"requester_id": "u1", "tier": "basic"},
	} {
		result, err := h.HandleOpenTicket(context.Background(), makeRequest(args))
		require.NoError(t, err, name)
		assert.True(t, result.IsError, name)
	}
}

func TestHandleGetTicket_Unclaimed(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tickets/100000000000000001", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"channelRef":  "100000000000000001",
			"requesterId": "user-9",
			"tierKey":     "basic",
			"kind":        "general-support",
		})
	}))
	defer closeFn()

	result, err := h.HandleGetTicket(context.Background(), makeRequest(map[string]any{
		"channel": "100000000000000001",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Status: unclaimed")
}

func TestHandleGetTicket_MissingChannel(t *testing.T) {
	h, closeFn := newTestSetup(nil)
	defer closeFn()

	result, err := h.HandleGetTicket(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleListTickets_Empty(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tickets":[]}`))
	}))
	defer closeFn()

	result, err := h.HandleListTickets(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No active tickets.", resultText(t, result))
}

func TestHandleListTickets_ShowsClaims(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tickets": []map[string]any{
				{"channelRef": "100000000000000001", "requesterId": "user-1", "tierKey": "basic", "kind": "general-support"},
				{"channelRef": "100000000000000002", "requesterId": "user-2", "tierKey": "og", "kind": "brokered-trade", "claimantId": "staff-2"},
			},
		})
	}))
	defer closeFn()

	result, err := h.HandleListTickets(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "2 active ticket(s)")
	assert.Contains(t, text, "unclaimed")
	assert.Contains(t, text, "claimed by staff-2")
}

func TestHandleClaimTicket_Success(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"channelRef":  "100000000000000001",
			"requesterId": "user-9",
			"tierKey":     "premium",
			"kind":        "brokered-trade",
			"claimantId":  "staff-1",
		})
	}))
	defer closeFn()

	result, err := h.HandleClaimTicket(context.Background(), makeRequest(map[string]any{
		"channel": "100000000000000001",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Ticket claimed")
	assert.Contains(t, text, "Claimed by: staff-1")
}

func TestHandleClaimTicket_Conflict(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":      "ticket already claimed",
			"claimantId": "staff-2",
		})
	}))
	defer closeFn()

	result, err := h.HandleClaimTicket(context.Background(), makeRequest(map[string]any{
		"channel": "100000000000000001",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "held by staff-2")
}

func TestHandleUnclaimTicket_Success(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tickets/100000000000000001/unclaim", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"channelRef":  "100000000000000001",
			"requesterId": "user-9",
			"tierKey":     "premium",
			"kind":        "brokered-trade",
		})
	}))
	defer closeFn()

	result, err := h.HandleUnclaimTicket(context.Background(), makeRequest(map[string]any{
		"channel": "100000000000000001",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Claim released")
}

func TestHandleCloseTicket_Success(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tickets/100000000000000001/close", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "closed"})
	}))
	defer closeFn()

	result, err := h.HandleCloseTicket(context.Background(), makeRequest(map[string]any{
		"channel": "100000000000000001",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "closed")
}

func TestHandleRecordProof_Success(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tickets/100000000000000001/proof", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var m map[string]string
		_ = json.Unmarshal(body, &m)
		assert.Equal(t, "staff-1", m["staffId"])

		_ = json.NewEncoder(w).Encode(map[string]any{"staffId": "staff-1", "count": 7})
	}))
	defer closeFn()

	result, err := h.HandleRecordProof(context.Background(), makeRequest(map[string]any{
		"channel": "100000000000000001",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, resultText(t, result), "count is now 7")
}

func TestHandleStaffStats_DefaultsToSelf(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/staff/staff-1/stats", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"staffId":    "staff-1",
			"count":      12,
			"rank":       2,
			"totalStaff": 5,
		})
	}))
	defer closeFn()

	result, err := h.HandleStaffStats(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Completed deals: 12")
	assert.Contains(t, text, "Rank: 2 of 5")
}

func TestHandleLeaderboard_Formats(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"leaderboard": []map[string]any{
				{"staffId": "staff-1", "count": 12},
				{"staffId": "staff-2", "count": 8},
			},
		})
	}))
	defer closeFn()

	result, err := h.HandleLeaderboard(context.Background(), makeRequest(nil))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "1. staff-1 - 12 deal(s)")
	assert.Contains(t, text, "2. staff-2 - 8 deal(s)")
}

func TestHandleLeaderboard_Empty(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"leaderboard":[]}`))
	}))
	defer closeFn()

	result, err := h.HandleLeaderboard(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "No completed deals recorded yet.", resultText(t, result))
}

func TestHandleGetPanel_Formats(t *testing.T) {
	h, closeFn := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/panel", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tiers": []map[string]any{
				{"key": "basic", "displayName": "Basic", "rank": 1},
				{"key": "og", "displayName": "OG", "rank": 4},
			},
			"kinds": []map[string]any{
				{"kind": "general-support", "fields": []map[string]any{
					{"name": "reason", "label": "What do you need help with?", "required": true},
				}},
			},
		})
	}))
	defer closeFn()

	result, err := h.HandleGetPanel(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "basic (rank 1)")
	assert.Contains(t, text, "og (rank 4)")
	assert.Contains(t, text, "reason (required)")
}
