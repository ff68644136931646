package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/whatsapp-ai-relay/internal/session"
)

// SessionHandler exposes recorded conversation history read-only.
type SessionHandler struct {
	store session.Store
}

func NewSessionHandler(store session.Store) *SessionHandler {
	if store == nil {
		panic("handlers: session store cannot be nil")
	}
	return &SessionHandler{store: store}
}

// SessionResponse is the body of GET /sessions/{userID}.
type SessionResponse struct {
	UserID string         `json:"userId"`
	Turns  []session.Turn `json:"turns"`
}

func (h *SessionHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{UserID: userID, Turns: h.store.History(userID)})
}
