package whatsapp

import (
	"encoding/json"
	"fmt"
	"time"
)

// InboundMessage is the normalized result of parsing a webhook delivery.
type InboundMessage struct {
	From          string
	Text          string
	MessageID     string
	Type          string
	PhoneNumberID string
	Timestamp     time.Time
}

// SendRequest is the Cloud API payload for a plain text message.
type SendRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             SendText `json:"text"`
}

// SendText carries the message body.
type SendText struct {
	Body string `json:"body"`
}

// SendResponse is the Cloud API answer to a successful send.
type SendResponse struct {
	MessagingProduct string        `json:"messaging_product"`
	Contacts         []Contact     `json:"contacts"`
	Messages         []SentMessage `json:"messages"`

	// Raw is the provider payload exactly as received.
	Raw json.RawMessage `json:"-"`
}

// MessageID returns the id of the first accepted message, if any.
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// Contact maps the requested recipient to a WhatsApp id.
type Contact struct {
	Input string `json:"input"`
	WaID  string `json:"wa_id"`
}

// SentMessage identifies an accepted outbound message.
type SentMessage struct {
	ID string `json:"id"`
}

// graphErrorEnvelope is the error shape returned by the Graph API.
type graphErrorEnvelope struct {
	Error *GraphError `json:"error"`
}

// GraphError is the structured error returned by the Graph API.
type GraphError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// APIError reports a non-2xx answer from the Graph API. Payload holds the
// provider's response body so callers can surface it verbatim.
type APIError struct {
	StatusCode int
	Payload    json.RawMessage
	Graph      *GraphError
}

func (e *APIError) Error() string {
	if e.Graph != nil && e.Graph.Message != "" {
		return fmt.Sprintf("whatsapp: API error %d (code %d): %s", e.StatusCode, e.Graph.Code, e.Graph.Message)
	}
	return fmt.Sprintf("whatsapp: unexpected status %d: %s", e.StatusCode, string(e.Payload))
}
