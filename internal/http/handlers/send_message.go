package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/internal/whatsapp"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

type messageSender interface {
	SendText(ctx context.Context, token, to, body string) (*whatsapp.SendResponse, error)
}

// SendMessageConfig wires a SendMessageHandler.
type SendMessageConfig struct {
	Sender  messageSender
	Logger  *logging.Logger
	Metrics *metrics.RelayMetrics
}

// SendMessageHandler lets an operator send a WhatsApp message directly,
// bypassing the AI relay.
type SendMessageHandler struct {
	sender  messageSender
	logger  *logging.Logger
	metrics *metrics.RelayMetrics
}

func NewSendMessageHandler(cfg SendMessageConfig) *SendMessageHandler {
	if cfg.Sender == nil {
		panic("handlers: sender cannot be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SendMessageHandler{
		sender:  cfg.Sender,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// SendMessageRequest is the body of POST /send-message.
type SendMessageRequest struct {
	Token   string `json:"token"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendMessageResponse mirrors the provider answer. Error carries the
// provider's error payload when there is one, otherwise a message string.
type SendMessageResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   any             `json:"error,omitempty"`
}

func (h *SendMessageHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var missing []string
	if strings.TrimSpace(req.Token) == "" {
		missing = append(missing, "token")
	}
	if strings.TrimSpace(req.To) == "" {
		missing = append(missing, "to")
	}
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	resp, err := h.sender.SendText(r.Context(), req.Token, req.To, req.Message)
	if err != nil {
		h.metrics.ObserveOutbound("manual", "failed")
		h.logger.Error("manual send failed", "to", req.To, "error", err)
		writeJSON(w, http.StatusInternalServerError, SendMessageResponse{Success: false, Error: providerError(err)})
		return
	}

	h.metrics.ObserveOutbound("manual", "sent")
	h.logger.Info("manual send succeeded", "to", req.To, "message_id", resp.MessageID())
	writeJSON(w, http.StatusOK, SendMessageResponse{Success: true, Data: resp.Raw})
}

func providerError(err error) any {
	var apiErr *whatsapp.APIError
	if errors.As(err, &apiErr) && len(apiErr.Payload) > 0 {
		return apiErr.Payload
	}
	return err.Error()
}
