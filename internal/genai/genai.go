// Package genai provides GenAI-enhanced operations using the OpenAI API.
package genai

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Completion tuning defaults. Reply generation gets more room than the
// summarizer so longer answers are not cut off mid-sentence.
const (
	DefaultReplyMaxTokens     = 300
	DefaultSummarizeMaxTokens = 150
	DefaultTemperature        = 0.7
)

// chatService defines the minimal interface for chat completions, allowing
// tests to substitute a mock for the OpenAI client.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

// openaiChatService adapts the OpenAI SDK's completion service to chatService.
type openaiChatService struct {
	client openai.Client
}

func (s openaiChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := s.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the completion model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion service.
type Client struct {
	chat  chatService
	model string
}

// NewClient initializes a GenAI client. Falls back to the OPENAI_API_KEY and
// OPENAI_MODEL environment variables when options are not provided.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OPENAI_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key must be provided")
	}
	slog.Debug("genai.NewClient: client configured", "model", cfg.Model)

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: openaiChatService{client: cli}, model: cfg.Model}, nil
}

// GeneratePrompt generates a completion from a system prompt and a user prompt.
func (c *Client) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt),
		openai.UserMessage(userPrompt),
	}, DefaultReplyMaxTokens, DefaultTemperature)
}

// GenerateUserPrompt generates a completion from a single user-role prompt,
// used by the exchange summarizer.
func (c *Client) GenerateUserPrompt(ctx context.Context, userPrompt string) (string, error) {
	return c.generate(ctx, []openai.ChatCompletionMessageParamUnion{
		openai.UserMessage(userPrompt),
	}, DefaultSummarizeMaxTokens, DefaultTemperature)
}

func (c *Client) generate(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, maxTokens int64, temperature float64) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	}
	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}
