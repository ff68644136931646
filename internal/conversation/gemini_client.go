package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

// ErrMissingAPIKey is returned when a completion is requested without a key.
var ErrMissingAPIKey = errors.New("conversation: gemini api key is required")

type genaiClientFactory func(ctx context.Context, apiKey string) (*genai.Client, error)

// GeminiLLMClient implements LLMClient using Google's Gemini API. The API key
// arrives with each request; the client for the most recent key is cached.
type GeminiLLMClient struct {
	modelID   string
	newClient genaiClientFactory

	mu      sync.Mutex
	clients map[string]*genai.Client
}

// NewGeminiLLMClient creates a Gemini client for the given default model.
func NewGeminiLLMClient(modelID string) *GeminiLLMClient {
	if strings.TrimSpace(modelID) == "" {
		modelID = defaultGeminiModel
	}
	return &GeminiLLMClient{
		modelID: modelID,
		newClient: func(ctx context.Context, apiKey string) (*genai.Client, error) {
			return genai.NewClient(ctx, option.WithAPIKey(apiKey))
		},
		clients: make(map[string]*genai.Client),
	}
}

func (c *GeminiLLMClient) clientFor(ctx context.Context, apiKey string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[apiKey]; ok {
		return client, nil
	}
	client, err := c.newClient(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to create gemini client: %w", err)
	}
	// Only the active key is kept; a rotated key releases its client.
	for key, stale := range c.clients {
		_ = stale.Close()
		delete(c.clients, key)
	}
	c.clients[apiKey] = client
	return client, nil
}

// Complete sends the chat history to Gemini. A response without candidates or
// text parts is reported as an empty result rather than an error.
func (c *GeminiLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	apiKey := strings.TrimSpace(req.APIKey)
	if apiKey == "" {
		return LLMResponse{}, ErrMissingAPIKey
	}
	if len(req.Messages) == 0 {
		return LLMResponse{}, errors.New("conversation: gemini requires at least one message")
	}

	client, err := c.clientFor(ctx, apiKey)
	if err != nil {
		return LLMResponse{}, err
	}

	modelID := c.modelID
	if strings.TrimSpace(req.Model) != "" {
		modelID = req.Model
	}
	model := client.GenerativeModel(modelID)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(req.System))
	}

	cs := model.StartChat()
	cs.History = toGeminiHistory(req.Messages[:len(req.Messages)-1])

	last := req.Messages[len(req.Messages)-1]
	resp, err := cs.SendMessage(ctx, genai.Text(last.Content))
	if err != nil {
		return LLMResponse{}, fmt.Errorf("conversation: gemini completion failed: %w", err)
	}

	return fromGeminiResponse(resp), nil
}

// Close releases every cached client.
func (c *GeminiLLMClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for key, client := range c.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.clients, key)
	}
	return errors.Join(errs...)
}

func toGeminiHistory(messages []ChatMessage) []*genai.Content {
	history := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		history = append(history, &genai.Content{
			Role:  geminiRole(msg.Role),
			Parts: []genai.Part{genai.Text(content)},
		})
	}
	return history
}

func geminiRole(role string) string {
	if role == ChatRoleAssistant {
		return "model"
	}
	return "user"
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) LLMResponse {
	var result LLMResponse
	if resp == nil {
		return result
	}
	if resp.UsageMetadata != nil {
		result.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	if len(resp.Candidates) == 0 {
		return result
	}

	candidate := resp.Candidates[0]
	result.StopReason = candidate.FinishReason.String()
	if candidate.Content == nil {
		return result
	}

	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	result.Text = text.String()
	return result
}
