package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventTicketCreated, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventTicketCreated, EventTicketClaimed},
	}}

	created := &Event{Type: EventTicketCreated}
	claimed := &Event{Type: EventTicketClaimed}
	closed := &Event{Type: EventTicketClosed}

	if !h.shouldSend(client, created) {
		t.Error("Should receive ticket_created events")
	}
	if !h.shouldSend(client, claimed) {
		t.Error("Should receive ticket_claimed events")
	}
	if h.shouldSend(client, closed) {
		t.Error("Should NOT receive ticket_closed events")
	}
}

func TestShouldSend_TierFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		TierKeys: []string{"premium"},
	}}

	matching := &Event{
		Type: EventTicketCreated,
		Data: map[string]any{"tierKey": "premium", "channelRef": "chan-1"},
	}
	notMatching := &Event{
		Type: EventTicketCreated,
		Data: map[string]any{"tierKey": "basic", "channelRef": "chan-2"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on tier key")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other tiers")
	}
}

func TestShouldSend_StaffFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		StaffIDs: []string{"staff-1"},
	}}

	matchingClaim := &Event{
		Type: EventTicketClaimed,
		Data: map[string]any{"claimantId": "staff-1"},
	}
	matchingCompletion := &Event{
		Type: EventCompletionRecorded,
		Data: map[string]any{"staffId": "staff-1"},
	}
	notMatching := &Event{
		Type: EventTicketClaimed,
		Data: map[string]any{"claimantId": "staff-2"},
	}

	if !h.shouldSend(client, matchingClaim) {
		t.Error("Should match on claimantId")
	}
	if !h.shouldSend(client, matchingCompletion) {
		t.Error("Should match on staffId")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other staff")
	}
}

func TestShouldSend_ChannelFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Channels: []string{"chan-7"},
	}}

	matching := &Event{
		Type: EventTicketClosed,
		Data: map[string]any{"channelRef": "chan-7"},
	}
	notMatching := &Event{
		Type: EventTicketClosed,
		Data: map[string]any{"channelRef": "chan-8"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on channelRef")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other channels")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &Event{Type: EventTicketCreated}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_BroadcastAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Broadcast an event
	h.Broadcast(&Event{Type: EventTicketCreated, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Broadcast(&Event{
		Type:      EventTicketClaimed,
		Timestamp: time.Now(),
		Data:      map[string]any{"channelRef": "chan-1", "claimantId": "staff-1"},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_Emit(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Should not panic
	h.Emit("ticket_created", map[string]any{
		"channelRef": "chan-1", "tierKey": "basic",
	})
}

func TestHub_EmitAssignsEventID(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}
	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Emit("ticket_created", map[string]any{"channelRef": "chan-1"})

	select {
	case msg := <-client.send:
		var event Event
		if err := json.Unmarshal(msg, &event); err != nil {
			t.Fatalf("Failed to parse event: %v", err)
		}
		if !strings.HasPrefix(event.ID, "evt_") {
			t.Errorf("Expected evt_ prefix, got %q", event.ID)
		}
		if len(event.ID) != len("evt_")+24 {
			t.Errorf("Unexpected event ID length: %q", event.ID)
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for event")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants closures
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []EventType{EventTicketClosed}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a created event (should be filtered out)
	h.Broadcast(&Event{Type: EventTicketCreated, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive ticket_created event")
	default:
		// Good - filtered out
	}

	// Send a closed event (should be received)
	h.Broadcast(&Event{Type: EventTicketClosed, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive ticket_closed event")
	}
}
