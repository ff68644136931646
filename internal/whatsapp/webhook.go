package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

const maxWebhookBytes = 1 << 20

// Webhook outcomes reported to metrics.
const (
	WebhookAccepted     = "accepted"
	WebhookIgnored      = "ignored"
	WebhookInvalid      = "invalid"
	WebhookUnauthorized = "unauthorized"
)

// WebhookHandler handles WhatsApp webhook verification and inbound messages.
type WebhookHandler struct {
	verifyToken string
	appSecret   string
	onMessage   func(ctx context.Context, msg InboundMessage)
	logger      *logging.Logger
	metrics     *metrics.RelayMetrics
}

// WebhookOption customizes a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithAppSecret enables X-Hub-Signature-256 verification.
func WithAppSecret(secret string) WebhookOption {
	return func(h *WebhookHandler) {
		h.appSecret = secret
	}
}

// WithWebhookLogger sets the logger.
func WithWebhookLogger(logger *logging.Logger) WebhookOption {
	return func(h *WebhookHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithWebhookMetrics records webhook outcomes.
func WithWebhookMetrics(m *metrics.RelayMetrics) WebhookOption {
	return func(h *WebhookHandler) {
		h.metrics = m
	}
}

// NewWebhookHandler creates a new webhook handler.
// onMessage is called once for each delivery that normalizes to a message.
func NewWebhookHandler(verifyToken string, onMessage func(context.Context, InboundMessage), opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{
		verifyToken: verifyToken,
		onMessage:   onMessage,
		logger:      logging.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleVerification handles the GET webhook verification challenge from Meta.
func (h *WebhookHandler) HandleVerification(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode != "" && token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, challenge)
		return
	}

	h.logger.Warn("whatsapp: webhook verification rejected", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleInbound handles POST webhook events (incoming messages).
func (h *WebhookHandler) HandleInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		h.metrics.ObserveWebhook(WebhookInvalid)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	if h.appSecret != "" {
		signature := r.Header.Get("X-Hub-Signature-256")
		if !VerifySignature(h.appSecret, body, signature) {
			h.metrics.ObserveWebhook(WebhookUnauthorized)
			h.logger.Warn("whatsapp: webhook signature mismatch")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
	}

	if !gjson.ValidBytes(body) {
		h.metrics.ObserveWebhook(WebhookInvalid)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	// Meta retries anything that is not a prompt 200.
	w.WriteHeader(http.StatusOK)

	msg, ok := Normalize(body)
	if !ok {
		h.metrics.ObserveWebhook(WebhookIgnored)
		h.logger.Debug("whatsapp: delivery carried no text message")
		return
	}

	h.metrics.ObserveWebhook(WebhookAccepted)
	h.logger.Info("whatsapp: inbound message",
		"from", msg.From,
		"message_id", msg.MessageID,
		"type", msg.Type,
	)
	if h.onMessage != nil {
		h.onMessage(r.Context(), msg)
	}
}

// VerifySignature verifies the X-Hub-Signature-256 header.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	// Signature format: "sha256=<hex>"
	const prefix = "sha256="
	if len(signature) <= len(prefix) || signature[:len(prefix)] != prefix {
		return false
	}
	sigHex := signature[len(prefix):]

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(sigHex))
}
