// Package campaign implements the delayed follow-up chain.
//
// Each cadence step is a durable job: when it fires, the handler re-checks
// the suppression flags for the recipient, sends the step's canned message,
// logs it, and schedules the successor step with its own fixed delay. The
// chain is self-perpetuating; there is no single controller owning the whole
// sequence. Cancellation is emulated entirely through the suppression-flag
// check at fire time.
package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalkia/sarah-agent/internal/crm"
	"github.com/kalkia/sarah-agent/internal/models"
	"github.com/kalkia/sarah-agent/internal/store"
	"github.com/kalkia/sarah-agent/internal/suppress"
	"github.com/kalkia/sarah-agent/internal/twiliosms"
	"github.com/kalkia/sarah-agent/internal/twiml"
)

// JobKindStep is the job kind registered with the job runner.
const JobKindStep = "campaign_step"

// Step is a cadence step label, independent from the Intent enum.
type Step string

const (
	StepFollowUp1 Step = "follow_up_1"
	StepFollowUp2 Step = "follow_up_2"
)

// stepSpec describes one step's message and its successor.
type stepSpec struct {
	body      string
	next      Step
	nextDelay time.Duration
}

// steps is the fixed two-step cadence. follow_up_2 has no successor.
var steps = map[Step]stepSpec{
	StepFollowUp1: {
		body:      "Hi there! Just checking if you saw my last message regarding the property? Let me know if you have questions. - {{AGENT_NAME}}",
		next:      StepFollowUp2,
		nextDelay: 24 * time.Hour,
	},
	StepFollowUp2: {
		body: "Hey again! Are you still interested in buying/selling? If not, just reply 'stop' and I won't bug you. Thanks!",
	},
}

// StepDelay returns the canonical delay before a step fires, used when
// kicking off a chain.
func StepDelay(step Step) (time.Duration, bool) {
	switch step {
	case StepFollowUp1:
		return 30 * time.Minute, true
	case StepFollowUp2:
		return 24 * time.Hour, true
	default:
		return 0, false
	}
}

// payload is the JSON body stored with each scheduled step job.
type payload struct {
	Recipient string `json:"recipient"`
	Step      Step   `json:"step"`
}

// Scheduler schedules and executes delayed campaign steps.
type Scheduler struct {
	jobs      store.JobRepo
	flags     suppress.Flags
	sender    twiliosms.Sender
	crmStore  crm.Store
	agentName string
}

// NewScheduler creates a campaign scheduler with explicit dependencies.
func NewScheduler(jobs store.JobRepo, flags suppress.Flags, sender twiliosms.Sender, crmStore crm.Store, agentName string) *Scheduler {
	if agentName == "" {
		agentName = "Sarah"
	}
	return &Scheduler{jobs: jobs, flags: flags, sender: sender, crmStore: crmStore, agentName: agentName}
}

// Schedule enqueues a step to fire after delay. The dedupe key prevents the
// same recipient+step pair from being queued twice while one is pending.
func (s *Scheduler) Schedule(recipient string, step Step, delay time.Duration) (string, error) {
	if _, ok := steps[step]; !ok {
		return "", fmt.Errorf("unknown campaign step %q", step)
	}
	data, err := json.Marshal(payload{Recipient: recipient, Step: step})
	if err != nil {
		return "", fmt.Errorf("encode step payload: %w", err)
	}
	dedupeKey := fmt.Sprintf("campaign:%s:%s", recipient, step)
	id, err := s.jobs.EnqueueJob(JobKindStep, time.Now().Add(delay), string(data), dedupeKey)
	if err != nil {
		return "", fmt.Errorf("enqueue campaign step: %w", err)
	}
	slog.Info("campaign.Schedule: step scheduled", "recipient", recipient, "step", step, "delay", delay, "job_id", id)
	return id, nil
}

// Register wires the step handler into a job runner.
func (s *Scheduler) Register(runner *store.JobRunner) {
	runner.RegisterHandler(JobKindStep, s.HandleStep)
}

// HandleStep executes one fired campaign step. The suppression re-check at
// fire time is mandatory: flags may be set after scheduling and before
// firing, and last-check-wins is the accepted race outcome. A suppressed
// step is a no-op, not an error. A send failure returns an error (so the job
// retries) and does not schedule the successor.
func (s *Scheduler) HandleStep(ctx context.Context, rawPayload string) error {
	var p payload
	if err := json.Unmarshal([]byte(rawPayload), &p); err != nil {
		return fmt.Errorf("decode step payload: %w", err)
	}
	spec, ok := steps[p.Step]
	if !ok {
		return fmt.Errorf("unknown campaign step %q", p.Step)
	}

	suppressed, reason, err := s.flags.Suppressed(ctx, p.Recipient)
	if err != nil {
		return fmt.Errorf("suppression check for %s: %w", p.Recipient, err)
	}
	if suppressed {
		slog.Info("campaign.HandleStep: skipping suppressed recipient", "recipient", p.Recipient, "step", p.Step, "reason", reason)
		return nil
	}

	body := twiml.PersonalizeAgent(spec.body, s.agentName)
	sid, err := s.sender.SendMessage(ctx, p.Recipient, body)
	if err != nil {
		// No successor on send failure; the chain is not advanced.
		return fmt.Errorf("send %s to %s: %w", p.Step, p.Recipient, err)
	}
	slog.Info("campaign.HandleStep: step sent", "recipient", p.Recipient, "step", p.Step, "sid", sid)

	s.logOutbound(ctx, p.Recipient, body, sid, p.Step)

	if spec.next != "" {
		if _, err := s.Schedule(p.Recipient, spec.next, spec.nextDelay); err != nil {
			slog.Error("campaign.HandleStep: failed to schedule successor", "error", err, "recipient", p.Recipient, "next", spec.next)
		}
	}
	return nil
}

// logOutbound records the sent step in the conversation store. Log failures
// are swallowed by policy: the message is already on the wire and a logging
// outage must not fail the job.
func (s *Scheduler) logOutbound(ctx context.Context, recipient, body, sid string, step Step) {
	cc, err := s.crmStore.GetContext(ctx, recipient, crm.LookupByPhoneNormalized)
	if err != nil {
		slog.Warn("campaign.logOutbound: context lookup failed, message not logged", "error", err, "recipient", recipient)
		return
	}
	if _, err := s.crmStore.LogMessage(ctx, models.MessageLogEntry{
		CustomerID:        cc.CustomerID,
		Channel:           models.ChannelSMS,
		ChannelIdentifier: recipient,
		Direction:         models.DirectionOutbound,
		MessageBody:       body,
		ContextID:         cc.ContextID,
		Metadata:          map[string]string{"twilio_sid": sid, "type": "auto_" + string(step)},
	}); err != nil {
		slog.Warn("campaign.logOutbound: log failed, continuing", "error", err, "recipient", recipient)
	}
}
