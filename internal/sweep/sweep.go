// Package sweep implements the periodic reconciliation pass over all active
// conversation contexts.
//
// The cadence is not a durable timer per customer: each sweep re-derives due
// follow-ups purely from elapsed time since last_interaction_at and the
// current intent. That makes the pass idempotent, safe on any interval, and
// self-healing across process restarts. There is no distributed lock; two
// racing sweeps read-then-write the same context and last write wins, with an
// occasional duplicate send as the accepted cost.
package sweep

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kalkia/sarah-agent/internal/crm"
	"github.com/kalkia/sarah-agent/internal/models"
	"github.com/kalkia/sarah-agent/internal/suppress"
	"github.com/kalkia/sarah-agent/internal/twiliosms"
	"github.com/kalkia/sarah-agent/internal/twiml"
)

// Cadence thresholds. Branches are evaluated in priority order and only the
// first match fires per customer per pass.
const (
	DefaultFollowup1After = 30 * time.Minute
	DefaultFollowup2After = 24 * time.Hour
	DefaultNurtureAfter   = 24 * time.Hour
	DefaultPageSize       = 100
)

// Canned follow-up bodies. {{NAME}} and {{AGENT_NAME}} are substituted at
// send time.
const (
	followup1Body = "Hi {{NAME}}, just bumping this up! Did you have any thoughts on my last message? - {{AGENT_NAME}}"
	followup2Body = "Hey again! Are you still interested? If not, reply 'stop'. Thanks! - {{AGENT_NAME}}"
)

// Opts holds configuration for the sweep worker.
type Opts struct {
	AgentName      string
	PageSize       int
	Followup1After time.Duration
	Followup2After time.Duration
	NurtureAfter   time.Duration
	Now            func() time.Time
}

// Option configures the Worker.
type Option func(*Opts)

// WithAgentName sets the persona signing follow-up messages.
func WithAgentName(name string) Option {
	return func(o *Opts) { o.AgentName = name }
}

// WithPageSize sets the customer pagination page size.
func WithPageSize(n int) Option {
	return func(o *Opts) { o.PageSize = n }
}

// WithThresholds overrides all three cadence thresholds, mainly for tests.
func WithThresholds(followup1, followup2, nurture time.Duration) Option {
	return func(o *Opts) {
		o.Followup1After = followup1
		o.Followup2After = followup2
		o.NurtureAfter = nurture
	}
}

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Opts) { o.Now = now }
}

// Worker advances customers through the follow-up cadence.
type Worker struct {
	store  crm.Store
	sender twiliosms.Sender
	flags  suppress.Flags
	cfg    Opts
}

// NewWorker creates a sweep worker with explicit dependencies.
func NewWorker(store crm.Store, sender twiliosms.Sender, flags suppress.Flags, opts ...Option) *Worker {
	cfg := Opts{
		AgentName:      "Sarah",
		PageSize:       DefaultPageSize,
		Followup1After: DefaultFollowup1After,
		Followup2After: DefaultFollowup2After,
		NurtureAfter:   DefaultNurtureAfter,
		Now:            time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Worker{store: store, sender: sender, flags: flags, cfg: cfg}
}

// Sweep runs one full pass over all customers. It is idempotent: running it
// twice with no elapsed-time change produces the same intents both times.
// Errors on individual customers are logged and skipped; only a failure to
// enumerate customers aborts the pass.
func (w *Worker) Sweep(ctx context.Context) error {
	start := w.cfg.Now()
	slog.Info("sweep.Sweep: starting pass")

	checked, advanced := 0, 0
	for offset := 0; ; offset += w.cfg.PageSize {
		customers, err := w.store.ListCustomers(ctx, w.cfg.PageSize, offset)
		if err != nil {
			return fmt.Errorf("list customers at offset %d: %w", offset, err)
		}
		for _, cust := range customers {
			checked++
			if w.sweepCustomer(ctx, cust) {
				advanced++
			}
		}
		if len(customers) < w.cfg.PageSize {
			break
		}
	}

	slog.Info("sweep.Sweep: pass complete", "checked", checked, "advanced", advanced, "elapsed", time.Since(start))
	return nil
}

// sweepCustomer evaluates the cadence for one customer and reports whether
// an intent advanced.
func (w *Worker) sweepCustomer(ctx context.Context, cust models.Customer) bool {
	cc, err := w.store.GetContext(ctx, strconv.FormatInt(cust.CustomerID, 10), crm.LookupByID)
	if err != nil {
		slog.Debug("sweep: context lookup failed, skipping", "error", err, "customer_id", cust.CustomerID)
		return false
	}
	if cc.Status != models.ContextStatusActive || cc.LastInteractionAt == nil {
		return false
	}

	elapsed := w.cfg.Now().Sub(*cc.LastInteractionAt)
	phone := cc.Customer.BestPhone()

	switch {
	case cc.Intent == models.IntentWaitingForAnswer && elapsed >= w.cfg.Followup1After:
		body := w.personalize(followup1Body, cc.Customer.DisplayName())
		return w.fireFollowup(ctx, cc, phone, body, models.IntentFollowup1, "Auto-sent Follow-up #1", "auto_followup_1")

	case cc.Intent == models.IntentFollowup1 && elapsed >= w.cfg.Followup2After:
		body := w.personalize(followup2Body, cc.Customer.DisplayName())
		return w.fireFollowup(ctx, cc, phone, body, models.IntentFollowup2, "Auto-sent Follow-up #2", "auto_followup_2")

	case cc.Intent == models.IntentFollowup2 && elapsed >= w.cfg.NurtureAfter:
		// Terminal retirement, no send. Suppression flags are irrelevant here
		// since nothing goes out.
		slog.Info("sweep: moving context to nurture", "context_id", cc.ContextID)
		if err := w.store.UpdateConversation(ctx, cc.ContextID, models.ConversationPatch{
			Intent:  models.IntentPtr(models.IntentNurture),
			Summary: models.StrPtr("Moved to Nurture (unresponsive)"),
		}); err != nil {
			slog.Warn("sweep: nurture update failed, will retry next pass", "error", err, "context_id", cc.ContextID)
			return false
		}
		return true
	}
	return false
}

// fireFollowup sends one follow-up message and advances the intent. The
// suppression flags are checked immediately before the send; a send failure
// leaves the intent unchanged so the customer is retried on the next pass. A
// persistence failure after a successful send is logged but not retried
// in-pass (accepted risk of a duplicate send on the next sweep).
func (w *Worker) fireFollowup(ctx context.Context, cc models.Context, phone, body string, next models.Intent, summary, stepTag string) bool {
	if phone == "" {
		slog.Warn("sweep: no phone number for context, skipping", "context_id", cc.ContextID)
		return false
	}
	suppressed, reason, err := w.flags.Suppressed(ctx, phone)
	if err != nil {
		slog.Warn("sweep: suppression check failed, skipping send", "error", err, "phone", phone)
		return false
	}
	if suppressed {
		slog.Info("sweep: suppressed recipient, no send", "phone", phone, "reason", reason)
		return false
	}

	sid, err := w.sender.SendMessage(ctx, phone, body)
	if err != nil {
		slog.Error("sweep: follow-up send failed, intent not advanced", "error", err, "phone", phone, "next_intent", next)
		return false
	}
	slog.Info("sweep: follow-up sent", "phone", phone, "sid", sid, "next_intent", next)

	if _, err := w.store.LogMessage(ctx, models.MessageLogEntry{
		CustomerID:        cc.CustomerID,
		Channel:           models.ChannelSMS,
		ChannelIdentifier: phone,
		Direction:         models.DirectionOutbound,
		MessageBody:       body,
		ContextID:         cc.ContextID,
		Metadata:          map[string]string{"twilio_sid": sid, "type": stepTag},
	}); err != nil {
		slog.Warn("sweep: outbound log failed, continuing", "error", err, "context_id", cc.ContextID)
	}

	if err := w.store.UpdateConversation(ctx, cc.ContextID, models.ConversationPatch{
		Intent:  models.IntentPtr(next),
		Summary: models.StrPtr(summary),
	}); err != nil {
		slog.Warn("sweep: intent update failed after send", "error", err, "context_id", cc.ContextID)
	}
	return true
}

func (w *Worker) personalize(body, name string) string {
	return twiml.PersonalizeAgent(twiml.PersonalizeName(body, name), w.cfg.AgentName)
}
