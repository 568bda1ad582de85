package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds connection settings for the platform API.
type Config struct {
	APIURL string // Base URL, e.g. "https://chat.example.com/api"
	Token  string // Bot token
}

// Client is the REST implementation of Gateway.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a platform API client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

var _ Gateway = (*Client)(nil)

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *Client) doRequest(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
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

	req.Header.Set("Authorization", "Bot "+c.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("%w: platform error (%d): %s", ErrGateway, resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: platform error (%d): %s", ErrGateway, resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// CreateChannel provisions a private channel with the given access grants.
func (c *Client) CreateChannel(ctx context.Context, name string, grants []AccessGrant) (string, error) {
	body := map[string]any{
		"name":    name,
		"private": true,
		"grants":  grants,
	}
	raw, err := c.doRequest(ctx, http.MethodPost, "/channels", body)
	if err != nil {
		return "", err
	}

	var created struct {
		ChannelRef string `json:"channelRef"`
	}
	if err := json.Unmarshal(raw, &created); err != nil {
		return "", fmt.Errorf("%w: parse create response: %v", ErrGateway, err)
	}
	if created.ChannelRef == "" {
		return "", fmt.Errorf("%w: create response missing channelRef", ErrGateway)
	}
	return created.ChannelRef, nil
}

// SetAccess adds or replaces a principal's grant on a channel.
func (c *Client) SetAccess(ctx context.Context, channelRef string, grant AccessGrant) error {
	path := "/channels/" + channelRef + "/grants/" + grant.Principal
	_, err := c.doRequest(ctx, http.MethodPut, path, grant)
	return err
}

// RevokeAccess removes a principal's grant from a channel.
func (c *Client) RevokeAccess(ctx context.Context, channelRef, principal string) error {
	path := "/channels/" + channelRef + "/grants/" + principal
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	return err
}

// RenameChannel changes a channel's display name.
func (c *Client) RenameChannel(ctx context.Context, channelRef, newName string) error {
	path := "/channels/" + channelRef
	_, err := c.doRequest(ctx, http.MethodPatch, path, map[string]string{"name": newName})
	return err
}

// DeleteChannel removes a channel.
func (c *Client) DeleteChannel(ctx context.Context, channelRef string) error {
	path := "/channels/" + channelRef
	_, err := c.doRequest(ctx, http.MethodDelete, path, nil)
	return err
}

// PostMessage posts a notice into a channel.
func (c *Client) PostMessage(ctx context.Context, channelRef string, msg Message) error {
	path := "/channels/" + channelRef + "/messages"
	_, err := c.doRequest(ctx, http.MethodPost, path, msg)
	return err
}
