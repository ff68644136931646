// Package adminclient is a typed client for the relay's operator endpoints.
package adminclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/wolfman30/whatsapp-ai-relay/internal/aiconfig"
	"github.com/wolfman30/whatsapp-ai-relay/internal/http/handlers"
)

const defaultTimeout = 30 * time.Second

// HTTPError is returned for unexpected status codes.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("adminclient: unexpected status %d: %s", e.StatusCode, strings.TrimSpace(e.Body))
}

// Client talks to a running relay server.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AssignAI replaces the server's AI configuration.
func (c *Client) AssignAI(ctx context.Context, req handlers.AssignAIRequest) (*handlers.AssignAIResponse, error) {
	var out handlers.AssignAIResponse
	if err := c.do(ctx, http.MethodPost, "/assign-ai", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AIStatus reports which credentials the server holds.
func (c *Client) AIStatus(ctx context.Context) (*aiconfig.Status, error) {
	var out aiconfig.Status
	if err := c.do(ctx, http.MethodGet, "/assign-ai", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage asks the server to send a WhatsApp message. A provider failure
// comes back as a response with Success false rather than an error.
func (c *Client) SendMessage(ctx context.Context, req handlers.SendMessageRequest) (*handlers.SendMessageResponse, error) {
	var out handlers.SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/send-message", req, &out, http.StatusOK, http.StatusInternalServerError); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches the recorded turns for userID.
func (c *Client) History(ctx context.Context, userID string) (*handlers.SessionResponse, error) {
	var out handlers.SessionResponse
	path := "/sessions/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any, accept ...int) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("adminclient: marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("adminclient: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("adminclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("adminclient: read response: %w", err)
	}

	if !accepted(resp.StatusCode, accept) {
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("adminclient: decode response: %w", err)
	}
	return nil
}

func accepted(status int, accept []int) bool {
	for _, code := range accept {
		if status == code {
			return true
		}
	}
	return false
}
