// Package aiconfig holds the runtime-assigned AI credentials and prompt.
package aiconfig

import (
	"strings"
	"sync"
)

// Assignment is the payload of one administrative assignment. Every field is
// replaced on Assign; omitted optional fields become empty.
type Assignment struct {
	CompletionKey string
	SystemPrompt  string
	OutboundToken string
}

// Snapshot is an immutable copy of the active configuration.
type Snapshot struct {
	CompletionKey string
	SystemPrompt  string
	OutboundToken string
}

// Ready reports whether both credentials needed to reply are present.
func (s Snapshot) Ready() bool {
	return s.CompletionKey != "" && s.OutboundToken != ""
}

// Status describes the configuration without exposing secrets.
type Status struct {
	CompletionKeySet bool   `json:"completionKeySet"`
	OutboundTokenSet bool   `json:"outboundTokenSet"`
	SystemPrompt     string `json:"systemPrompt"`
}

// Holder guards the active configuration. The zero value is usable and
// reports both credentials as missing.
type Holder struct {
	mu      sync.RWMutex
	current Snapshot
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Assign overwrites the whole configuration. Last write wins.
func (h *Holder) Assign(a Assignment) Snapshot {
	next := Snapshot{
		CompletionKey: strings.TrimSpace(a.CompletionKey),
		SystemPrompt:  a.SystemPrompt,
		OutboundToken: strings.TrimSpace(a.OutboundToken),
	}

	h.mu.Lock()
	h.current = next
	h.mu.Unlock()
	return next
}

// Current returns a copy of the active configuration.
func (h *Holder) Current() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Status reports credential presence for diagnostics.
func (h *Holder) Status() Status {
	snap := h.Current()
	return Status{
		CompletionKeySet: snap.CompletionKey != "",
		OutboundTokenSet: snap.OutboundToken != "",
		SystemPrompt:     snap.SystemPrompt,
	}
}

// Marker renders a credential as [RECEIVED] or [MISSING] for logs.
func Marker(secret string) string {
	if secret == "" {
		return "[MISSING]"
	}
	return "[RECEIVED]"
}
