package models

import "strings"

// MatchKind selects how a keyword rule is compared against an inbound body.
type MatchKind string

const (
	// MatchExact compares the whole trimmed body, case-insensitive.
	MatchExact MatchKind = "exact"
	// MatchSubstring looks for the keyword anywhere in the body, case-insensitive.
	MatchSubstring MatchKind = "substring"
)

// KeywordRule pairs a pattern with its match kind. Rules are configuration
// data shared by the classifier and its tests rather than literals buried in
// branch logic.
type KeywordRule struct {
	Pattern string
	Kind    MatchKind
}

// Matches reports whether the rule matches the given body. The body is
// lowercased and trimmed by the caller once; patterns are stored lowercase.
func (r KeywordRule) Matches(normalizedBody string) bool {
	switch r.Kind {
	case MatchExact:
		return normalizedBody == r.Pattern
	case MatchSubstring:
		return strings.Contains(normalizedBody, r.Pattern)
	default:
		return false
	}
}

// DefaultOptOutRules are the carrier-mandated unsubscribe keywords. Exact
// match only: "stop" inside another word must not opt a user out.
func DefaultOptOutRules() []KeywordRule {
	return []KeywordRule{
		{Pattern: "stop", Kind: MatchExact},
		{Pattern: "cancel", Kind: MatchExact},
		{Pattern: "unsubscribe", Kind: MatchExact},
	}
}

// DefaultHandoffRules are phrases that should route the conversation to a
// human. Substring match over the whole body.
func DefaultHandoffRules() []KeywordRule {
	return []KeywordRule{
		{Pattern: "call me", Kind: MatchSubstring},
		{Pattern: "speak to a human", Kind: MatchSubstring},
		{Pattern: "human", Kind: MatchSubstring},
		{Pattern: "real person", Kind: MatchSubstring},
		{Pattern: "representative", Kind: MatchSubstring},
		{Pattern: "agent", Kind: MatchSubstring},
		{Pattern: "help", Kind: MatchSubstring},
		{Pattern: "support", Kind: MatchSubstring},
		{Pattern: "emergency", Kind: MatchSubstring},
		{Pattern: "urgent", Kind: MatchSubstring},
	}
}
