package conversation

import (
	"context"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestGeminiCompleteRequiresKey(t *testing.T) {
	client := NewGeminiLLMClient("")
	_, err := client.Complete(context.Background(), LLMRequest{
		APIKey:   "   ",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hi"}},
	})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestGeminiCompleteRequiresMessages(t *testing.T) {
	client := NewGeminiLLMClient("")
	_, err := client.Complete(context.Background(), LLMRequest{APIKey: "k"})
	require.Error(t, err)
	assert.Empty(t, client.clients)
}

func TestNewGeminiLLMClientDefaultsModel(t *testing.T) {
	assert.Equal(t, defaultGeminiModel, NewGeminiLLMClient(" ").modelID)
	assert.Equal(t, "gemini-1.5-pro", NewGeminiLLMClient("gemini-1.5-pro").modelID)
}

func TestToGeminiHistoryMapsRoles(t *testing.T) {
	history := toGeminiHistory([]ChatMessage{
		{Role: ChatRoleUser, Content: "hi"},
		{Role: ChatRoleAssistant, Content: "hello"},
		{Role: ChatRoleUser, Content: "   "},
		{Role: ChatRoleUser, Content: "bye"},
	})

	require.Len(t, history, 3)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	assert.Equal(t, "user", history[2].Role)
	assert.Equal(t, []genai.Part{genai.Text("hello")}, history[1].Parts)
}

func TestFromGeminiResponse(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{name: "nil response", resp: nil, want: ""},
		{name: "no candidates", resp: &genai.GenerateContentResponse{}, want: ""},
		{
			name: "nil content",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}},
			want: "",
		},
		{
			name: "joined text parts",
			resp: &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
				Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello "), genai.Text("there")}},
			}}},
			want: "Hello there",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, fromGeminiResponse(tc.resp).Text)
		})
	}
}

func TestFromGeminiResponseUsage(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: []genai.Part{genai.Text("ok")}},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 2, TotalTokenCount: 12},
	}

	got := fromGeminiResponse(resp)
	assert.Equal(t, TokenUsage{InputTokens: 10, OutputTokens: 2, TotalTokens: 12}, got.Usage)
	assert.NotEmpty(t, got.StopReason)
}

func TestGeminiClientForReleasesRotatedKey(t *testing.T) {
	client := NewGeminiLLMClient("")
	var created []string
	client.newClient = func(ctx context.Context, apiKey string) (*genai.Client, error) {
		created = append(created, apiKey)
		return genai.NewClient(ctx, option.WithAPIKey(apiKey))
	}
	defer client.Close()

	first, err := client.clientFor(context.Background(), "key-a")
	require.NoError(t, err)
	again, err := client.clientFor(context.Background(), "key-a")
	require.NoError(t, err)
	assert.Same(t, first, again)

	_, err = client.clientFor(context.Background(), "key-b")
	require.NoError(t, err)

	assert.Equal(t, []string{"key-a", "key-b"}, created)
	require.Len(t, client.clients, 1)
	assert.Contains(t, client.clients, "key-b")
}
