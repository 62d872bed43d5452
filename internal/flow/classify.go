// Package flow implements the conversation core: inbound classification, the
// reply generator, and the state-machine logic deciding how each inbound SMS
// is handled.
package flow

import (
	"strings"

	"github.com/kalkia/sarah-agent/internal/models"
)

// Classification is the outcome of keyword classification over an inbound body.
type Classification string

const (
	// ClassOptOut is a carrier-mandated unsubscribe request.
	ClassOptOut Classification = "OPT_OUT"
	// ClassHandoff is a request for a human to take over.
	ClassHandoff Classification = "HANDOFF"
	// ClassNormal is any other message, handled by the reply generator.
	ClassNormal Classification = "NORMAL"
)

// Classifier decides whether an inbound message is an opt-out, a human
// handoff request, or a normal message. Pure function over text; no side
// effects.
type Classifier struct {
	optOut  []models.KeywordRule
	handoff []models.KeywordRule
}

// NewClassifier creates a classifier with the default keyword rule sets.
func NewClassifier() *Classifier {
	return &Classifier{
		optOut:  models.DefaultOptOutRules(),
		handoff: models.DefaultHandoffRules(),
	}
}

// NewClassifierWithRules creates a classifier with explicit rule sets.
func NewClassifierWithRules(optOut, handoff []models.KeywordRule) *Classifier {
	return &Classifier{optOut: optOut, handoff: handoff}
}

// Classify normalizes the body (trim + lowercase) and checks opt-out rules
// first. Opt-out keywords are exact matches over the whole trimmed body;
// handoff keywords are substring matches, checked only when no opt-out rule
// matched.
func (c *Classifier) Classify(body string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(body))
	for _, rule := range c.optOut {
		if rule.Matches(normalized) {
			return ClassOptOut
		}
	}
	for _, rule := range c.handoff {
		if rule.Matches(normalized) {
			return ClassHandoff
		}
	}
	return ClassNormal
}
