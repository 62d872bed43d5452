package flow

import (
	"testing"

	"github.com/kalkia/sarah-agent/internal/models"
)

func TestClassifyOptOut(t *testing.T) {
	c := NewClassifier()
	for _, body := range []string{"stop", "STOP", "Stop", "  stop  ", "cancel", "UNSUBSCRIBE", "\tCancel\n"} {
		if got := c.Classify(body); got != ClassOptOut {
			t.Errorf("Classify(%q) = %v, want opt-out", body, got)
		}
	}
}

func TestClassifyOptOutRequiresExactMatch(t *testing.T) {
	c := NewClassifier()
	// "stop" embedded in a longer message must not opt the user out.
	for _, body := range []string{"please stop texting me", "nonstop", "can we stop by tomorrow"} {
		if got := c.Classify(body); got == ClassOptOut {
			t.Errorf("Classify(%q) = opt-out, want anything else", body)
		}
	}
}

func TestClassifyHandoff(t *testing.T) {
	c := NewClassifier()
	for _, body := range []string{
		"call me please",
		"I want to speak to a HUMAN",
		"get me a real person",
		"this is URGENT",
		"I need help with my account",
		"can I talk to a representative?",
	} {
		if got := c.Classify(body); got != ClassHandoff {
			t.Errorf("Classify(%q) = %v, want handoff", body, got)
		}
	}
}

func TestClassifyOptOutBeatsHandoff(t *testing.T) {
	// An exact opt-out keyword wins even when a rule set would also treat the
	// body as a handoff phrase.
	c := NewClassifierWithRules(
		[]models.KeywordRule{{Pattern: "stop", Kind: models.MatchExact}},
		[]models.KeywordRule{{Pattern: "stop", Kind: models.MatchSubstring}},
	)
	if got := c.Classify("STOP"); got != ClassOptOut {
		t.Errorf("Classify(STOP) = %v, want opt-out", got)
	}
}

func TestClassifyNormal(t *testing.T) {
	c := NewClassifier()
	for _, body := range []string{
		"what are your prices?",
		"yes I'm interested",
		"tell me more about the chatbots",
	} {
		if got := c.Classify(body); got != ClassNormal {
			t.Errorf("Classify(%q) = %v, want normal", body, got)
		}
	}
}
