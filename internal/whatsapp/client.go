package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGraphAPIBase = "https://graph.facebook.com/v17.0"
	defaultHTTPTimeout  = 15 * time.Second
	maxResponseBytes    = 1 << 20
)

// ErrMissingToken is returned when a send is attempted without a credential.
var ErrMissingToken = errors.New("whatsapp: access token is required")

// ErrMissingRecipient is returned when a send has no recipient.
var ErrMissingRecipient = errors.New("whatsapp: recipient is required")

// Client sends messages through the WhatsApp Cloud API.
type Client struct {
	phoneNumberID string
	graphAPIBase  string
	httpClient    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithGraphAPIBase overrides the Graph API base URL (useful for testing).
func WithGraphAPIBase(base string) ClientOption {
	return func(c *Client) {
		if base = strings.TrimRight(strings.TrimSpace(base), "/"); base != "" {
			c.graphAPIBase = base
		}
	}
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = &http.Client{Timeout: d}
		}
	}
}

// NewClient creates a Cloud API client that sends from phoneNumberID.
func NewClient(phoneNumberID string, opts ...ClientOption) *Client {
	c := &Client{
		phoneNumberID: phoneNumberID,
		graphAPIBase:  defaultGraphAPIBase,
		httpClient:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendText sends a plain text message to the given recipient using token.
func (c *Client) SendText(ctx context.Context, token, to, body string) (*SendResponse, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ErrMissingToken
	}
	if strings.TrimSpace(to) == "" {
		return nil, ErrMissingRecipient
	}

	payload, err := json.Marshal(SendRequest{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             SendText{Body: body},
	})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.graphAPIBase, c.phoneNumberID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: send message: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("whatsapp: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Payload: rawOrString(respBody)}
		var envelope graphErrorEnvelope
		if json.Unmarshal(respBody, &envelope) == nil {
			apiErr.Graph = envelope.Error
		}
		return nil, apiErr
	}

	// A 2xx means the message was accepted; an undecodable body only loses
	// the message ids.
	sendResp := &SendResponse{}
	if json.Valid(respBody) {
		_ = json.Unmarshal(respBody, sendResp)
	}
	sendResp.Raw = rawOrString(respBody)
	return sendResp, nil
}

// rawOrString keeps valid JSON as-is and quotes anything else so the bytes
// can always be embedded in a JSON response.
func rawOrString(b []byte) json.RawMessage {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	quoted, _ := json.Marshal(string(b))
	return quoted
}
