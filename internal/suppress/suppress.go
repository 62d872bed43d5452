// Package suppress provides the ephemeral suppression-flag store gating every
// automated send.
//
// Flags are keyed by recipient phone number and live in fast ephemeral
// storage, not the durable conversation store. They are the authoritative
// fire-time gate for the campaign scheduler and the sweep worker: a flag set
// after a follow-up was scheduled still suppresses it, because the check
// happens at execution time.
package suppress

import (
	"context"
	"time"
)

// Suppression flag kinds. DND and StopCampaign never auto-expire;
// ActiveConversation is a short-lived debounce marker.
const (
	ReasonDND                = "dnd"
	ReasonStopCampaign       = "stop_campaign"
	ReasonActiveConversation = "active_conversation"
)

// DefaultDebounceWindow is how long the active-conversation marker lingers
// after a normal inbound message.
const DefaultDebounceWindow = 5 * time.Minute

// Flags is the suppression-flag store abstraction. Implemented by RedisFlags
// for production and MemoryFlags for tests and single-process deployments.
type Flags interface {
	// SetDND marks a permanent opt-out for the recipient.
	SetDND(ctx context.Context, recipient string) error

	// SetStopCampaign halts automated cadence sends for the recipient
	// (set on human-handoff requests). Never auto-expires.
	SetStopCampaign(ctx context.Context, recipient string) error

	// MarkActiveConversation sets the short-lived debounce marker after a
	// normal inbound message.
	MarkActiveConversation(ctx context.Context, recipient string) error

	// Suppressed reports whether automated sends to the recipient must be
	// skipped, and the first matching reason when they must.
	Suppressed(ctx context.Context, recipient string) (bool, string, error)
}
