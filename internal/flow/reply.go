package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalkia/sarah-agent/internal/models"
)

// FillerReply is returned when reply generation fails. A generation failure
// must never prevent SMS delivery.
const FillerReply = "I'm analyzing that... one moment."

// historyWindow is how many recent messages are rendered into the prompt.
const historyWindow = 5

// TextGenerator is the slice of the GenAI client the reply generator needs.
// Satisfied by *genai.Client; substituted with fakes in tests.
type TextGenerator interface {
	GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	GenerateUserPrompt(ctx context.Context, userPrompt string) (string, error)
}

// StatePatch is the summarizer's verdict on an exchange: the updated
// long-term summary plus the user's current intent and sentiment. Intent and
// Sentiment are empty when the summarizer could not produce them.
type StatePatch struct {
	Summary   string `json:"summary"`
	Intent    string `json:"intent"`
	Sentiment string `json:"sentiment"`
}

// ReplyGenerator produces context-aware replies and exchange summaries via
// the text-generation service.
type ReplyGenerator struct {
	gen       TextGenerator
	agentName string
}

// NewReplyGenerator creates a reply generator. agentName is the persona used
// in prompts and dialogue role labels.
func NewReplyGenerator(gen TextGenerator, agentName string) *ReplyGenerator {
	if agentName == "" {
		agentName = "Sarah"
	}
	return &ReplyGenerator{gen: gen, agentName: agentName}
}

// GenerateReply builds the full-context prompt and asks the generator for a
// reply. Fails closed: on any generation error the fixed filler reply is
// returned instead of propagating the failure.
func (r *ReplyGenerator) GenerateReply(ctx context.Context, cc models.Context, userInput string) string {
	systemPrompt := r.buildSystemPrompt(cc)
	reply, err := r.gen.GeneratePrompt(ctx, systemPrompt, userInput)
	if err != nil {
		slog.Warn("flow.GenerateReply: generation failed, using filler", "error", err, "context_id", cc.ContextID)
		return FillerReply
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return FillerReply
	}
	return reply
}

// buildSystemPrompt embeds the customer name, intent, sentiment, long-term
// summary, and the recent dialogue window into one system prompt.
func (r *ReplyGenerator) buildSystemPrompt(cc models.Context) string {
	summary := cc.Summary
	if summary == "" {
		summary = "New conversation"
	}
	intent := string(cc.Intent)
	if intent == "" {
		intent = string(models.IntentUnknown)
	}
	sentiment := cc.Sentiment
	if sentiment == "" {
		sentiment = "neutral"
	}

	return fmt.Sprintf(`You are %s, the intelligent AI partner for Kalkia Évolution IA.

YOUR DASHBOARD (CONTEXT):
- Customer Name: %s
- Current Intent: %s
- Sentiment: %s
- Long-Term Memory: %q

RECENT DIALOGUE (The Flow):
%s

YOUR MISSION:
Engage naturally. You are NOT a script-reading robot. You are a consultant.
- Use the Dashboard: if sentiment is 'frustrated', apologize. If intent is 'pricing', pivot to value.
- Use the Dialogue: reference specific things they just said. Match their vibe.
- Goal: explain our AI solutions (Receptionist, Sales Agents, Chatbots) and nudge for a 45-min consultation when appropriate.

STYLE:
- Intriguing, real, professional but warm.
- Anti-Robot: never repeat yourself word-for-word. If they ask the same thing twice, ask clarifying questions instead of repeating the answer.
- Language: English or Quebec French (match user).`,
		r.agentName, cc.Customer.DisplayName(), intent, sentiment, summary, r.renderDialogue(cc.History))
}

// renderDialogue renders up to the historyWindow most recent entries in
// chronological order with role labels. History snapshots arrive
// most-recent-first from the store.
func (r *ReplyGenerator) renderDialogue(history []models.HistoryEntry) string {
	if len(history) == 0 {
		return "(no prior messages)"
	}
	window := history
	if len(window) > historyWindow {
		window = window[:historyWindow]
	}
	var b strings.Builder
	for i := len(window) - 1; i >= 0; i-- {
		role := r.agentName
		if window[i].Direction == models.DirectionInbound {
			role = "User"
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(window[i].MessageBody)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// SummarizeExchange asks the generator to update the CRM records for one
// exchange. On generation failure the old summary is returned unchanged with
// intent and sentiment absent, so transient failures never regress state.
func (r *ReplyGenerator) SummarizeExchange(ctx context.Context, oldSummary, userInput, agentReply string) StatePatch {
	prompt := fmt.Sprintf(`Analyze this conversation exchange and update the CRM records.

Old Summary: %q
User Input: %q
%s Reply: %q

Task:
Return a JSON object with 3 fields:
1. "summary": updated concise summary of the whole chat.
2. "intent": the user's current goal (e.g., pricing_inquiry, technical_question, booking_request, frustration).
3. "sentiment": user's emotional state (positive, neutral, negative, confused).
Return only the JSON object.`, oldSummary, userInput, r.agentName, agentReply)

	raw, err := r.gen.GenerateUserPrompt(ctx, prompt)
	if err != nil {
		slog.Warn("flow.SummarizeExchange: generation failed, keeping old summary", "error", err)
		return StatePatch{Summary: oldSummary}
	}
	return parseStatePatch(raw, oldSummary)
}

// parseStatePatch decodes the summarizer's completion, tolerating markdown
// code fences. When the completion is not valid JSON, the whole text becomes
// the new summary with intent and sentiment absent.
func parseStatePatch(raw, oldSummary string) StatePatch {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var patch StatePatch
	if err := json.Unmarshal([]byte(cleaned), &patch); err != nil {
		slog.Debug("flow.parseStatePatch: completion was not JSON, using as summary", "error", err)
		if cleaned == "" {
			return StatePatch{Summary: oldSummary}
		}
		return StatePatch{Summary: cleaned}
	}
	if patch.Summary == "" {
		patch.Summary = oldSummary
	}
	return patch
}
