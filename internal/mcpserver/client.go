package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the brokerdesk API.
type Config struct {
	APIURL     string   // Base URL, e.g. "http://localhost:8080"
	APIToken   string   // Optional bearer token
	StaffID    string   // Acting staff member's principal reference
	StaffRoles []string // Role references the staff member holds
	Admin      bool     // Whether the staff member has admin override
}

// DeskClient is a pure HTTP client for the brokerdesk API.
type DeskClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewDeskClient creates a new client for the brokerdesk API.
func NewDeskClient(cfg Config) *DeskClient {
	return &DeskClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the desk.
type apiError struct {
	Error      string `json:"error"`
	ClaimantID string `json:"claimantId"`
}

// doRequest makes an HTTP request to the desk and returns the response body.
func (c *DeskClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.APIToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
			if apiErr.ClaimantID != "" {
				return nil, fmt.Errorf("API error (%d): %s (held by %s)", resp.StatusCode, apiErr.Error, apiErr.ClaimantID)
			}
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// actorBody is the staff identity sent with lifecycle actions.
func (c *DeskClient) actorBody() map[string]any {
	return map[string]any{
		"id":    c.cfg.StaffID,
		"roles": c.cfg.StaffRoles,
		"admin": c.cfg.Admin,
	}
}

// GetPanel returns the tier list and intake form schemas.
func (c *DeskClient) GetPanel(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/panel", nil, nil)
}

// OpenTicket submits an intake request and opens a ticket.
func (c *DeskClient) OpenTicket(ctx context.Context, requesterID, tierKey, kind string, fields map[string]string) (json.RawMessage, error) {
	body := map[string]any{
		"requesterId": requesterID,
		"tierKey":     tierKey,
		"kind":        kind,
		"fields":      fields,
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/tickets", nil, body)
}

// GetTicket returns one ticket by channel reference.
func (c *DeskClient) GetTicket(ctx context.Context, channelRef string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/tickets/"+channelRef, nil, nil)
}

// ListTickets returns all active tickets.
func (c *DeskClient) ListTickets(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/tickets", nil, nil)
}

// ClaimTicket claims a ticket for the configured staff member.
func (c *DeskClient) ClaimTicket(ctx context.Context, channelRef string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/tickets/"+channelRef+"/claim", nil, c.actorBody())
}

// UnclaimTicket releases the configured staff member's claim.
func (c *DeskClient) UnclaimTicket(ctx context.Context, channelRef string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/tickets/"+channelRef+"/unclaim", nil, c.actorBody())
}

// CloseTicket closes a ticket and schedules its channel for deletion.
func (c *DeskClient) CloseTicket(ctx context.Context, channelRef string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/tickets/"+channelRef+"/close", nil, c.actorBody())
}

// RecordProof records a completion against the ticket in the given channel
// and posts the ticket details to the proof channel.
func (c *DeskClient) RecordProof(ctx context.Context, channelRef string) (json.RawMessage, error) {
	body := map[string]string{"staffId": c.cfg.StaffID}
	return c.doRequest(ctx, http.MethodPost, "/v1/tickets/"+channelRef+"/proof", nil, body)
}

// RecordCompletion increments the configured staff member's completed count.
func (c *DeskClient) RecordCompletion(ctx context.Context) (json.RawMessage, error) {
	body := map[string]string{"staffId": c.cfg.StaffID}
	return c.doRequest(ctx, http.MethodPost, "/v1/completions", nil, body)
}

// StaffStats returns a staff member's completed count and rank.
func (c *DeskClient) StaffStats(ctx context.Context, staffID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/staff/"+staffID+"/stats", nil, nil)
}

// Leaderboard returns the top staff by completed count.
func (c *DeskClient) Leaderboard(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/leaderboard", q, nil)
}
