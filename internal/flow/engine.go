package flow

import (
	"context"
	"log/slog"

	"github.com/kalkia/sarah-agent/internal/crm"
	"github.com/kalkia/sarah-agent/internal/models"
	"github.com/kalkia/sarah-agent/internal/suppress"
)

// HandoffReply is the fixed acknowledgment sent when a human takeover is
// requested. The reply generator is never invoked on this path.
const HandoffReply = "I've noted your request. A member of our team will call you shortly."

// Opts holds configuration for the conversation engine.
type Opts struct {
	// OptOutAck is the acknowledgment body for opt-out messages. Empty means
	// reply with an empty document (the default; carriers send their own
	// confirmation for STOP keywords).
	OptOutAck string
}

// Option configures the Engine.
type Option func(*Opts)

// WithOptOutAck sets a non-empty unsubscribe acknowledgment body.
func WithOptOutAck(body string) Option {
	return func(o *Opts) { o.OptOutAck = body }
}

// Engine is the conversation state machine. Given an inbound message it
// resolves the customer context, logs the message, classifies it, and decides
// the next action: suppress, hand off, or auto-reply.
//
// The engine is stateless between calls; all mutable state lives in the
// remote store and the suppression-flag store, so concurrent handling of
// different recipients is safe.
type Engine struct {
	store      crm.Store
	flags      suppress.Flags
	replies    *ReplyGenerator
	classifier *Classifier
	optOutAck  string
}

// NewEngine creates a conversation engine with explicit dependencies.
func NewEngine(store crm.Store, flags suppress.Flags, replies *ReplyGenerator, opts ...Option) *Engine {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		store:      store,
		flags:      flags,
		replies:    replies,
		classifier: NewClassifier(),
		optOutAck:  cfg.OptOutAck,
	}
}

// HandleInbound processes one inbound SMS and returns the reply body to
// render, which may be empty. It never returns an error: failures downstream
// of "the user must get a reply" are degraded gracefully, and the transport
// always receives a well-formed (possibly empty) response.
func (e *Engine) HandleInbound(ctx context.Context, from, body string) string {
	cc, err := crm.ResolveContext(ctx, e.store, from)
	if err != nil {
		slog.Error("flow.HandleInbound: context resolution failed", "error", err, "from", from)
		return ""
	}

	// Log the inbound message before any branching so a later failure can
	// never drop it.
	contextID := cc.ContextID
	logRes, err := e.store.LogMessage(ctx, models.MessageLogEntry{
		CustomerID:        cc.CustomerID,
		Channel:           models.ChannelSMS,
		ChannelIdentifier: from,
		Direction:         models.DirectionInbound,
		MessageBody:       body,
		ContextID:         contextID,
	})
	if err != nil {
		slog.Error("flow.HandleInbound: inbound log failed", "error", err, "from", from)
		return ""
	}
	if contextID == "" {
		contextID = logRes.ContextID
	}

	switch e.classifier.Classify(body) {
	case ClassOptOut:
		return e.handleOptOut(ctx, from)
	case ClassHandoff:
		return e.handleHandoff(ctx, cc, contextID, from)
	default:
		return e.handleNormal(ctx, cc, contextID, from, body)
	}
}

// handleOptOut sets the permanent opt-out flag. No cadence state change is
// required; the flag alone halts every future automated send.
func (e *Engine) handleOptOut(ctx context.Context, from string) string {
	if err := e.flags.SetDND(ctx, from); err != nil {
		slog.Error("flow.handleOptOut: failed to set dnd flag", "error", err, "from", from)
	}
	slog.Info("flow.handleOptOut: opt-out recorded", "from", from)
	return e.optOutAck
}

// handleHandoff sends the fixed handoff acknowledgment, halts the campaign
// for the recipient, and records the agent action. The reply generator is
// never invoked. Store failures are logged and swallowed so the
// acknowledgment still reaches the user.
func (e *Engine) handleHandoff(ctx context.Context, cc models.Context, contextID, from string) string {
	if err := e.flags.SetStopCampaign(ctx, from); err != nil {
		slog.Error("flow.handleHandoff: failed to set stop_campaign flag", "error", err, "from", from)
	}

	if _, err := e.store.LogMessage(ctx, models.MessageLogEntry{
		CustomerID:        cc.CustomerID,
		Channel:           models.ChannelSMS,
		ChannelIdentifier: from,
		Direction:         models.DirectionOutbound,
		MessageBody:       HandoffReply,
		ContextID:         contextID,
	}); err != nil {
		slog.Warn("flow.handleHandoff: outbound log failed, continuing", "error", err, "from", from)
	}
	if err := e.store.UpdateConversation(ctx, contextID, models.ConversationPatch{
		LastAgentAction: models.StrPtr(models.AgentActionHandoff),
	}); err != nil {
		slog.Warn("flow.handleHandoff: state update failed, continuing", "error", err, "context_id", contextID)
	}

	slog.Info("flow.handleHandoff: handoff recorded", "from", from)
	return HandoffReply
}

// handleNormal generates a context-aware reply, logs it, and persists the
// summarized exchange. Every inbound reply resets intent to ENGAGED before
// the summarizer's CRM intent is considered, which removes the customer from
// automatic cadence advancement until the bot sends another message.
func (e *Engine) handleNormal(ctx context.Context, cc models.Context, contextID, from, body string) string {
	if err := e.flags.MarkActiveConversation(ctx, from); err != nil {
		slog.Warn("flow.handleNormal: failed to set debounce flag, continuing", "error", err, "from", from)
	}

	reply := e.replies.GenerateReply(ctx, cc, body)

	if _, err := e.store.LogMessage(ctx, models.MessageLogEntry{
		CustomerID:        cc.CustomerID,
		Channel:           models.ChannelSMS,
		ChannelIdentifier: from,
		Direction:         models.DirectionOutbound,
		MessageBody:       reply,
		ContextID:         contextID,
	}); err != nil {
		slog.Warn("flow.handleNormal: outbound log failed, continuing", "error", err, "from", from)
	}

	patch := e.replies.SummarizeExchange(ctx, cc.Summary, body, reply)
	intent := models.IntentEngaged
	if patch.Intent != "" && !isCadenceIntent(models.Intent(patch.Intent)) {
		// Free-form CRM intents are stored verbatim; they never participate
		// in the cadence, so the ENGAGED reset invariant still holds. The
		// summarizer is not allowed to set cadence labels.
		intent = models.Intent(patch.Intent)
	}
	update := models.ConversationPatch{
		Intent:          models.IntentPtr(intent),
		LastAgentAction: models.StrPtr(models.AgentActionReplied),
	}
	if patch.Summary != "" {
		update.Summary = models.StrPtr(patch.Summary)
	}
	if patch.Sentiment != "" {
		update.Sentiment = models.StrPtr(patch.Sentiment)
	}
	if err := e.store.UpdateConversation(ctx, contextID, update); err != nil {
		// State becomes stale but the conversation is not blocked.
		slog.Warn("flow.handleNormal: state update failed, continuing", "error", err, "context_id", contextID)
	}

	return reply
}

// isCadenceIntent reports whether the intent is one of the timed cadence
// labels driven by the sweep worker.
func isCadenceIntent(i models.Intent) bool {
	switch i {
	case models.IntentWaitingForAnswer, models.IntentFollowup1, models.IntentFollowup2, models.IntentNurture:
		return true
	default:
		return false
	}
}
