package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kalkia/sarah-agent/internal/models"
)

// fakeGenerator is a scripted TextGenerator for tests.
type fakeGenerator struct {
	reply      string
	replyErr   error
	summary    string
	summaryErr error

	lastSystemPrompt string
	lastUserPrompt   string
}

func (f *fakeGenerator) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.lastSystemPrompt = systemPrompt
	f.lastUserPrompt = userPrompt
	return f.reply, f.replyErr
}

func (f *fakeGenerator) GenerateUserPrompt(ctx context.Context, userPrompt string) (string, error) {
	f.lastUserPrompt = userPrompt
	return f.summary, f.summaryErr
}

func TestGenerateReply(t *testing.T) {
	gen := &fakeGenerator{reply: "  Happy to explain our pricing!  "}
	r := NewReplyGenerator(gen, "Sarah")

	got := r.GenerateReply(context.Background(), models.Context{}, "how much?")
	if got != "Happy to explain our pricing!" {
		t.Errorf("GenerateReply() = %q, want trimmed completion", got)
	}
	if gen.lastUserPrompt != "how much?" {
		t.Errorf("user prompt = %q, want the raw inbound body", gen.lastUserPrompt)
	}
}

func TestGenerateReplyFailsClosed(t *testing.T) {
	gen := &fakeGenerator{replyErr: errors.New("rate limited")}
	r := NewReplyGenerator(gen, "Sarah")

	if got := r.GenerateReply(context.Background(), models.Context{}, "hello"); got != FillerReply {
		t.Errorf("GenerateReply() on error = %q, want filler", got)
	}

	gen = &fakeGenerator{reply: "   "}
	r = NewReplyGenerator(gen, "Sarah")
	if got := r.GenerateReply(context.Background(), models.Context{}, "hello"); got != FillerReply {
		t.Errorf("GenerateReply() on blank completion = %q, want filler", got)
	}
}

func TestSystemPromptEmbedsContext(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	r := NewReplyGenerator(gen, "Sarah")

	cc := models.Context{
		Customer:  models.Customer{Name: "Marie"},
		Summary:   "Asked about receptionist pricing",
		Intent:    "pricing_inquiry",
		Sentiment: "positive",
		History: []models.HistoryEntry{
			{Direction: models.DirectionOutbound, MessageBody: "Our plans start at $99."},
			{Direction: models.DirectionInbound, MessageBody: "What does it cost?"},
		},
	}
	r.GenerateReply(context.Background(), cc, "sounds good")

	sp := gen.lastSystemPrompt
	for _, want := range []string{"Marie", "pricing_inquiry", "positive", "Asked about receptionist pricing"} {
		if !strings.Contains(sp, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
	// History arrives most-recent-first and must be rendered chronologically.
	userIdx := strings.Index(sp, "User: What does it cost?")
	agentIdx := strings.Index(sp, "Sarah: Our plans start at $99.")
	if userIdx < 0 || agentIdx < 0 {
		t.Fatalf("dialogue lines missing from system prompt:\n%s", sp)
	}
	if userIdx > agentIdx {
		t.Error("dialogue should be rendered oldest first")
	}
}

func TestSystemPromptDefaults(t *testing.T) {
	gen := &fakeGenerator{reply: "ok"}
	r := NewReplyGenerator(gen, "Sarah")

	r.GenerateReply(context.Background(), models.Context{}, "hi")
	sp := gen.lastSystemPrompt
	for _, want := range []string{"there", "unknown", "neutral", "New conversation", "(no prior messages)"} {
		if !strings.Contains(sp, want) {
			t.Errorf("system prompt missing default %q", want)
		}
	}
}

func TestRenderDialogueWindow(t *testing.T) {
	r := NewReplyGenerator(&fakeGenerator{}, "Sarah")
	history := []models.HistoryEntry{
		{Direction: models.DirectionInbound, MessageBody: "msg-7"},
		{Direction: models.DirectionOutbound, MessageBody: "msg-6"},
		{Direction: models.DirectionInbound, MessageBody: "msg-5"},
		{Direction: models.DirectionOutbound, MessageBody: "msg-4"},
		{Direction: models.DirectionInbound, MessageBody: "msg-3"},
		{Direction: models.DirectionOutbound, MessageBody: "msg-2"},
		{Direction: models.DirectionInbound, MessageBody: "msg-1"},
	}
	rendered := r.renderDialogue(history)
	if strings.Contains(rendered, "msg-1") || strings.Contains(rendered, "msg-2") {
		t.Errorf("dialogue window should drop entries beyond the most recent %d:\n%s", historyWindow, rendered)
	}
	if !strings.Contains(rendered, "msg-3") || !strings.Contains(rendered, "msg-7") {
		t.Errorf("dialogue window missing recent entries:\n%s", rendered)
	}
	lines := strings.Split(rendered, "\n")
	if len(lines) != historyWindow {
		t.Errorf("rendered %d lines, want %d", len(lines), historyWindow)
	}
	if !strings.HasPrefix(lines[0], "User: msg-7") {
		t.Errorf("oldest windowed entry should come first, got %q", lines[0])
	}
}

func TestSummarizeExchange(t *testing.T) {
	gen := &fakeGenerator{summary: `{"summary":"Lead wants pricing","intent":"pricing_inquiry","sentiment":"positive"}`}
	r := NewReplyGenerator(gen, "Sarah")

	patch := r.SummarizeExchange(context.Background(), "old", "how much?", "From $99.")
	if patch.Summary != "Lead wants pricing" || patch.Intent != "pricing_inquiry" || patch.Sentiment != "positive" {
		t.Errorf("SummarizeExchange() = %+v", patch)
	}
}

func TestSummarizeExchangeFencedJSON(t *testing.T) {
	gen := &fakeGenerator{summary: "```json\n{\"summary\":\"s\",\"intent\":\"i\",\"sentiment\":\"neutral\"}\n```"}
	r := NewReplyGenerator(gen, "Sarah")

	patch := r.SummarizeExchange(context.Background(), "old", "a", "b")
	if patch.Summary != "s" || patch.Intent != "i" {
		t.Errorf("fenced JSON not parsed: %+v", patch)
	}
}

func TestSummarizeExchangeNonJSON(t *testing.T) {
	gen := &fakeGenerator{summary: "The user asked about pricing and seemed happy."}
	r := NewReplyGenerator(gen, "Sarah")

	patch := r.SummarizeExchange(context.Background(), "old", "a", "b")
	if patch.Summary != "The user asked about pricing and seemed happy." {
		t.Errorf("non-JSON completion should become the summary, got %+v", patch)
	}
	if patch.Intent != "" || patch.Sentiment != "" {
		t.Errorf("non-JSON completion must leave intent/sentiment absent: %+v", patch)
	}
}

func TestSummarizeExchangeDegrades(t *testing.T) {
	gen := &fakeGenerator{summaryErr: errors.New("timeout")}
	r := NewReplyGenerator(gen, "Sarah")

	patch := r.SummarizeExchange(context.Background(), "previous summary", "a", "b")
	if patch.Summary != "previous summary" {
		t.Errorf("summary should survive generation failure, got %q", patch.Summary)
	}
	if patch.Intent != "" || patch.Sentiment != "" {
		t.Errorf("failed summarize must not invent intent/sentiment: %+v", patch)
	}
}

func TestParseStatePatchKeepsOldSummaryWhenMissing(t *testing.T) {
	patch := parseStatePatch(`{"intent":"booking_request","sentiment":"positive"}`, "old summary")
	if patch.Summary != "old summary" {
		t.Errorf("missing summary should fall back to old, got %q", patch.Summary)
	}
	if patch.Intent != "booking_request" {
		t.Errorf("intent = %q", patch.Intent)
	}
}
