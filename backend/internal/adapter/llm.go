package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"mimic-ai/backend/pkg/logger"
)

const defaultMaxRetries = 3

// LLMAdapter handles communication with an OpenAI-compatible chat endpoint
type LLMAdapter struct {
	client     *openai.Client
	model      string
	mu         sync.RWMutex // Protects model field for concurrent access
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewLLMAdapter creates a new LLM adapter. baseURL is used as given, so it
// must include any version prefix ("https://openrouter.ai/api/v1").
func NewLLMAdapter(baseURL, apiKey, modelID string) *LLMAdapter {
	// Local proxies accept any key
	if apiKey == "" {
		apiKey = "dummy-key"
	}

	config := openai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimRight(baseURL, "/")

	return &LLMAdapter{
		client:     openai.NewClientWithConfig(config),
		model:      modelID,
		maxRetries: defaultMaxRetries,
		backoff:    time.Second,
		logger:     logger.Named("llm"),
	}
}

// SetModel updates the model used by this adapter
func (a *LLMAdapter) SetModel(model string) {
	if model != "" {
		a.mu.Lock()
		a.model = model
		a.mu.Unlock()
		a.logger.Debug("LLM adapter model updated", zap.String("model", model))
	}
}

// GetModel returns the current model
func (a *LLMAdapter) GetModel() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model
}

// SetRetryPolicy overrides the attempt count and the linear backoff step.
func (a *LLMAdapter) SetRetryPolicy(maxRetries int, backoff time.Duration) {
	if maxRetries < 1 {
		maxRetries = 1
	}
	a.maxRetries = maxRetries
	a.backoff = backoff
}

// Response represents the LLM's response
type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
}

// GenerateJSON sends a system and user message and asks for a JSON object reply.
func (a *LLMAdapter) GenerateJSON(ctx context.Context, systemPrompt, userMsg string) (*Response, error) {
	currentModel := a.GetModel()

	req := openai.ChatCompletionRequest{
		Model: currentModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userMsg},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0.2,
	}

	// Retry logic with linear backoff
	var resp openai.ChatCompletionResponse
	var err error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * a.backoff
			a.logger.Warn("Retrying LLM request",
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoff),
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err = a.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}

		a.logger.Error("LLM request failed",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.String("model", currentModel),
		)

		// Proxies sometimes answer with an HTML error page
		if strings.Contains(err.Error(), "invalid character") {
			a.logger.Warn("LLM service returned non-JSON error response - this may be a transient server issue")
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to generate response after %d attempts: %w", a.maxRetries, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in LLM response")
	}

	response := &Response{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}

	a.logger.Debug("LLM response generated",
		zap.String("model", currentModel),
		zap.Int("prompt_tokens", response.PromptTokens),
		zap.Int("completion_tokens", response.CompletionTokens),
	)
	return response, nil
}
