// Package llm provides the Groq chat completion client.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/usermanpro/server/internal/config"
	"github.com/usermanpro/server/internal/domain"
)

// Token limits for the two request kinds.
const (
	promptMaxTokens = 100
	chatMaxTokens   = 500
)

const requestTimeout = 60 * time.Second

// Instruction pair used to draft a system prompt for a new assistant.
const (
	promptGenSystem = "You are a helpful assistant that generates prompts for AI assistants."
	promptGenUser   = "Generate a creative and useful prompt for a new AI assistant."
)

// Client calls an OpenAI-compatible chat completion endpoint (Groq).
// Model output is untrusted text; it is only stored and displayed.
type Client struct {
	api    *openai.Client
	model  string
	retry  RetryPolicy
	logger *slog.Logger
}

// NewClient builds a Client from configuration. It fails with a
// ConfigurationError when the API key is missing, before any network call.
func NewClient(cfg *config.Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(cfg.GroqAPIKey) == "" {
		return nil, &config.ConfigurationError{Key: "GROQ_API_KEY", Reason: "environment variable is not set"}
	}

	apiCfg := openai.DefaultConfig(cfg.GroqAPIKey)
	apiCfg.BaseURL = cfg.GroqBaseURL
	// Bound every request so a hung remote call cannot wedge the process.
	apiCfg.HTTPClient = &http.Client{Timeout: requestTimeout}

	return &Client{
		api:    openai.NewClientWithConfig(apiCfg),
		model:  cfg.GroqModel,
		retry:  DefaultRetryPolicy(),
		logger: logger,
	}, nil
}

// GenerateSystemPrompt asks the model for a novel assistant system prompt
// and returns its text verbatim.
func (c *Client) GenerateSystemPrompt(ctx context.Context) (string, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: promptGenSystem},
		{Role: openai.ChatMessageRoleUser, Content: promptGenUser},
	}
	return c.completion(ctx, messages, promptMaxTokens)
}

// Complete sends the full ordered conversation context and returns the
// model's reply text.
func (c *Client) Complete(ctx context.Context, turns []domain.Turn) (string, error) {
	messages := make([]openai.ChatCompletionMessage, len(turns))
	for i, t := range turns {
		messages[i] = openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		}
	}
	return c.completion(ctx, messages, chatMaxTokens)
}

func (c *Client) completion(ctx context.Context, messages []openai.ChatCompletionMessage, maxTokens int) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     c.model,
		Messages:  messages,
		MaxTokens: maxTokens,
	}

	var content string
	err := c.retry.Do(ctx, c.logger, func() error {
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("completion response has no choices")
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
