package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/openai/openai-go"
)

// mockChatService is a scripted chatService for tests.
type mockChatService struct {
	content string
	err     error
	choices int

	lastParams openai.ChatCompletionNewParams
}

func (m *mockChatService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	m.lastParams = params
	if m.err != nil {
		return openai.ChatCompletion{}, m.err
	}
	choices := make([]openai.ChatCompletionChoice, m.choices)
	for i := range choices {
		choices[i] = openai.ChatCompletionChoice{
			Message: openai.ChatCompletionMessage{Content: m.content},
		}
	}
	return openai.ChatCompletion{Choices: choices}, nil
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Error("expected error without an API key")
	}
}

func TestNewClientDefaults(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_MODEL", "")
	client, err := NewClient(WithAPIKey("sk-test"))
	if err != nil {
		t.Fatalf("NewClient() error: %v", err)
	}
	if client.model != openai.ChatModelGPT4oMini {
		t.Errorf("default model = %q", client.model)
	}
}

func TestGeneratePrompt(t *testing.T) {
	mock := &mockChatService{content: "Here is your reply.", choices: 1}
	client := &Client{chat: mock, model: "test-model"}

	got, err := client.GeneratePrompt(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("GeneratePrompt() error: %v", err)
	}
	if got != "Here is your reply." {
		t.Errorf("GeneratePrompt() = %q", got)
	}
	if mock.lastParams.Model != "test-model" {
		t.Errorf("model = %q", mock.lastParams.Model)
	}
	if len(mock.lastParams.Messages) != 2 {
		t.Errorf("sent %d messages, want system + user", len(mock.lastParams.Messages))
	}
	if mock.lastParams.MaxTokens.Value != DefaultReplyMaxTokens {
		t.Errorf("max tokens = %d, want %d", mock.lastParams.MaxTokens.Value, DefaultReplyMaxTokens)
	}
}

func TestGenerateUserPrompt(t *testing.T) {
	mock := &mockChatService{content: `{"summary":"s"}`, choices: 1}
	client := &Client{chat: mock, model: "test-model"}

	got, err := client.GenerateUserPrompt(context.Background(), "summarize this")
	if err != nil {
		t.Fatalf("GenerateUserPrompt() error: %v", err)
	}
	if got != `{"summary":"s"}` {
		t.Errorf("GenerateUserPrompt() = %q", got)
	}
	if len(mock.lastParams.Messages) != 1 {
		t.Errorf("sent %d messages, want a single user message", len(mock.lastParams.Messages))
	}
	if mock.lastParams.MaxTokens.Value != DefaultSummarizeMaxTokens {
		t.Errorf("max tokens = %d, want %d", mock.lastParams.MaxTokens.Value, DefaultSummarizeMaxTokens)
	}
}

func TestGenerateErrors(t *testing.T) {
	mock := &mockChatService{err: errors.New("rate limited")}
	client := &Client{chat: mock, model: "test-model"}
	if _, err := client.GeneratePrompt(context.Background(), "s", "u"); err == nil {
		t.Error("expected error from failed completion")
	}

	mock = &mockChatService{choices: 0}
	client = &Client{chat: mock, model: "test-model"}
	if _, err := client.GeneratePrompt(context.Background(), "s", "u"); err == nil {
		t.Error("expected error when no choices are returned")
	}
}
