package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/whatsapp-ai-relay/internal/http/handlers"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestAssignCommand(t *testing.T) {
	var got handlers.AssignAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/assign-ai", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{"success":true,"status":{"completionKeySet":true,"outboundTokenSet":false,"systemPrompt":"hi"}}`))
	}))
	defer srv.Close()

	out, err := run(t, "--server", srv.URL, "assign", "--gemini-key", "gk", "--prompt", "hi")
	require.NoError(t, err)
	assert.Equal(t, handlers.AssignAIRequest{GeminiKey: "gk", SystemPrompt: "hi"}, got)
	assert.Contains(t, out, `"completionKeySet": true`)
}

func TestAssignRequiresKey(t *testing.T) {
	_, err := run(t, "--server", "http://127.0.0.1:0", "assign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gemini-key")
}

func TestSendCommandReportsProviderFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"error":"bad token"}`))
	}))
	defer srv.Close()

	out, err := run(t, "--server", srv.URL, "send", "--token", "t", "--to", "911234", "-m", "hello")
	require.Error(t, err)
	assert.Contains(t, out, "bad token")
}

func TestHistoryCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/sessions/911234", r.URL.Path)
		w.Write([]byte(`{"userId":"911234","turns":[
			{"speaker":"user","text":"hi","at":"2024-01-01T00:00:00Z"},
			{"speaker":"assistant","text":"Hello!","at":"2024-01-01T00:00:01Z"}]}`))
	}))
	defer srv.Close()

	out, err := run(t, "--server", srv.URL, "history", "911234")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "user")
	assert.Contains(t, lines[1], "Hello!")
}

func TestHistoryRequiresUser(t *testing.T) {
	_, err := run(t, "history")
	require.Error(t, err)
}

func TestStatusCommandServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := run(t, "--server", srv.URL, "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}
