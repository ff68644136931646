package handlers

import (
	"net/http"

	"github.com/wolfman30/whatsapp-ai-relay/internal/aiconfig"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

// AIConfigHandler serves the runtime AI assignment endpoints.
type AIConfigHandler struct {
	holder *aiconfig.Holder
	logger *logging.Logger
}

func NewAIConfigHandler(holder *aiconfig.Holder, logger *logging.Logger) *AIConfigHandler {
	if holder == nil {
		panic("handlers: ai config holder cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AIConfigHandler{holder: holder, logger: logger}
}

// AssignAIRequest is the body of POST /assign-ai. Omitted fields are reset.
type AssignAIRequest struct {
	GeminiKey    string `json:"geminiKey"`
	SystemPrompt string `json:"systemPrompt"`
	WAToken      string `json:"waToken"`
}

// AssignAIResponse reports what the relay now holds, without secrets.
type AssignAIResponse struct {
	Success bool            `json:"success"`
	Status  aiconfig.Status `json:"status"`
}

// Assign replaces the whole AI configuration.
func (h *AIConfigHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignAIRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	snap := h.holder.Assign(aiconfig.Assignment{
		CompletionKey: req.GeminiKey,
		SystemPrompt:  req.SystemPrompt,
		OutboundToken: req.WAToken,
	})

	h.logger.Info("ai assigned",
		"system_prompt", snap.SystemPrompt,
		"gemini_key", aiconfig.Marker(snap.CompletionKey),
		"whatsapp_token", aiconfig.Marker(snap.OutboundToken),
	)

	writeJSON(w, http.StatusOK, AssignAIResponse{Success: true, Status: h.holder.Status()})
}

// Status reports credential presence and the active prompt.
func (h *AIConfigHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.holder.Status())
}
