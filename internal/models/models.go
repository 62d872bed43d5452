// Package models defines the core data structures for the Sarah follow-up agent.
//
// It includes the customer and conversation-context records mirrored from the
// remote conversation store, the message log entry shape, and the cadence
// intent labels shared across modules.
package models

import (
	"errors"
	"time"
)

// Intent is the cadence/CRM state label attached to a conversation context.
// The five cadence labels below drive automated follow-ups; the summarizer may
// also produce free-form intents (e.g. "pricing_inquiry") which are stored for
// CRM purposes but never participate in the cadence.
type Intent string

const (
	// IntentUnknown is the initial state of a freshly created context.
	IntentUnknown Intent = "unknown"
	// IntentEngaged means the user is actively responding; automated
	// follow-ups are suppressed until the bot sends another message.
	IntentEngaged Intent = "ENGAGED"
	// IntentWaitingForAnswer means the bot sent a message and is awaiting a reply.
	IntentWaitingForAnswer Intent = "WAITING_FOR_ANSWER"
	// IntentFollowup1 means the first automated follow-up has been sent.
	IntentFollowup1 Intent = "FOLLOWUP_1"
	// IntentFollowup2 means the second automated follow-up has been sent.
	IntentFollowup2 Intent = "FOLLOWUP_2"
	// IntentNurture is the terminal state for unresponsive leads.
	IntentNurture Intent = "NURTURE"
)

// Message direction constants for log entries.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// ChannelSMS is the only transport channel this service speaks.
const ChannelSMS = "sms"

// Agent action labels persisted via update_conversation.
const (
	AgentActionHandoff = "Handoff Requested"
	AgentActionReplied = "AI Replied via SMS"
)

// ContextStatusActive marks a context as eligible for cadence advancement.
const ContextStatusActive = "active"

// Error variables for boundary validation.
var (
	ErrMissingSender = errors.New("missing required field: From")
	ErrMissingBody   = errors.New("missing required field: Body")
)

// Customer is the identity record owned by the remote store. The agent only
// reads it and creates it on first inbound contact.
type Customer struct {
	CustomerID      int64  `json:"customer_id"`
	Phone           string `json:"phone,omitempty"`
	PhoneNormalized string `json:"phone_normalized,omitempty"`
	Name            string `json:"name,omitempty"`
	Email           string `json:"email,omitempty"`
}

// DisplayName returns the customer's name or a friendly fallback for prompts.
func (c Customer) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return "there"
}

// BestPhone returns the normalized phone if present, else the raw phone.
func (c Customer) BestPhone() string {
	if c.PhoneNormalized != "" {
		return c.PhoneNormalized
	}
	return c.Phone
}

// HistoryEntry is one prior message in a context's history snapshot.
// The remote store returns history most-recent-first; callers must treat it
// as a read-only snapshot taken at fetch time.
type HistoryEntry struct {
	Direction   string `json:"direction"`
	MessageBody string `json:"message_body"`
}

// Context is the mutable conversation-state record for one customer.
type Context struct {
	ContextID         string         `json:"context_id"`
	CustomerID        int64          `json:"customer_id"`
	Customer          Customer       `json:"customer"`
	Summary           string         `json:"summary,omitempty"`
	Intent            Intent         `json:"intent,omitempty"`
	Sentiment         string         `json:"sentiment,omitempty"`
	Status            string         `json:"status,omitempty"`
	LastInteractionAt *time.Time     `json:"last_interaction_at,omitempty"`
	History           []HistoryEntry `json:"history,omitempty"`
}

// MessageLogEntry is the append-only record of one inbound or outbound message.
type MessageLogEntry struct {
	CustomerID        int64             `json:"customer_id"`
	Channel           string            `json:"channel"`
	ChannelIdentifier string            `json:"channel_identifier"`
	Direction         string            `json:"direction"`
	MessageBody       string            `json:"message_body"`
	ContextID         string            `json:"context_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// ConversationPatch carries the optional conversation-state fields for an
// update_conversation call. Nil fields are omitted from the update.
type ConversationPatch struct {
	Summary         *string `json:"summary,omitempty"`
	Intent          *Intent `json:"intent,omitempty"`
	Sentiment       *string `json:"sentiment,omitempty"`
	LastAgentAction *string `json:"last_agent_action,omitempty"`
}

// IsEmpty reports whether the patch carries no updates at all.
func (p ConversationPatch) IsEmpty() bool {
	return p.Summary == nil && p.Intent == nil && p.Sentiment == nil && p.LastAgentAction == nil
}

// StrPtr is a convenience helper for building patches.
func StrPtr(s string) *string { return &s }

// IntentPtr is a convenience helper for building patches.
func IntentPtr(i Intent) *Intent { return &i }
