package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wolfman30/whatsapp-ai-relay/internal/observability/metrics"
	"github.com/wolfman30/whatsapp-ai-relay/pkg/logging"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "test_app_secret"
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)
	validSig := sign(secret, body)

	tests := []struct {
		name      string
		secret    string
		body      []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, body, validSig, true},
		{"wrong signature", secret, body, "sha256=0000000000000000000000000000000000000000000000000000000000000000", false},
		{"empty signature", secret, body, "", false},
		{"empty secret", "", body, validSig, false},
		{"missing prefix", secret, body, "abcdef", false},
		{"wrong prefix", secret, body, "sha1=" + validSig[len("sha256="):], false},
		{"tampered body", secret, []byte(`tampered`), validSig, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := VerifySignature(tt.secret, tt.body, tt.signature)
			if got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHandleVerification(t *testing.T) {
	h := NewWebhookHandler("verify-me", nil, WithWebhookLogger(logging.New("error")))

	t.Run("valid challenge", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=CHALLENGE_123", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
		if w.Body.String() != "CHALLENGE_123" {
			t.Fatalf("expected CHALLENGE_123, got %s", w.Body.String())
		}
	})

	t.Run("wrong token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})

	t.Run("missing mode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet,
			"/webhook?hub.verify_token=verify-me&hub.challenge=X", nil)
		w := httptest.NewRecorder()
		h.HandleVerification(w, req)

		if w.Code != http.StatusForbidden {
			t.Fatalf("expected 403, got %d", w.Code)
		}
	})
}

func TestHandleInboundDeliversMessage(t *testing.T) {
	var received []InboundMessage
	m := metrics.NewRelayMetrics(prometheus.NewRegistry())
	h := NewWebhookHandler("verify-me", func(_ context.Context, msg InboundMessage) {
		received = append(received, msg)
	}, WithWebhookLogger(logging.New("error")), WithWebhookMetrics(m))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, received, 1)
	assert.Equal(t, "911234", received[0].From)
	assert.Equal(t, "hi", received[0].Text)
}

func TestHandleInboundIgnoresPayloadWithoutMessage(t *testing.T) {
	called := false
	h := NewWebhookHandler("verify-me", func(context.Context, InboundMessage) {
		called = true
	}, WithWebhookLogger(logging.New("error")))

	body := `{"entry":[{"changes":[{"value":{"statuses":[{"status":"read"}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, called)
}

func TestHandleInboundRejectsInvalidJSON(t *testing.T) {
	h := NewWebhookHandler("verify-me", nil, WithWebhookLogger(logging.New("error")))

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	h.HandleInbound(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleInboundSignature(t *testing.T) {
	secret := "app_secret"
	var received int
	h := NewWebhookHandler("verify-me", func(context.Context, InboundMessage) {
		received++
	}, WithAppSecret(secret), WithWebhookLogger(logging.New("error")))

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
		req.Header.Set("X-Hub-Signature-256", sign(secret, []byte(textPayload)))
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(textPayload))
		req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
		w := httptest.NewRecorder()
		h.HandleInbound(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	assert.Equal(t, 1, received)
}
