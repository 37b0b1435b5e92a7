package usecases

import (
	"strings"
)

// Intents recognized by the fallback responder.
const (
	IntentGreeting = "greeting"
	IntentPricing  = "pricing"
	IntentHours    = "hours"
	IntentSupport  = "support"
	IntentHuman    = "human"
	IntentThanks   = "thanks"
	IntentGoodbye  = "goodbye"
	IntentUnknown  = "unknown"
)

const (
	ReplySafeDefault  = "I'm not sure — connecting you with a team member shortly."
	ReplyHumanHandoff = "Of course. I'm connecting you with a team member now, they will reply here shortly."
)

type intentRule struct {
	intent  string
	words   []string // matched against whole tokens
	phrases []string // matched as substrings
	reply   string
}

// Checked in order; the first rule that matches wins.
var intentTable = []intentRule{
	{
		intent:  IntentHuman,
		words:   []string{"human", "agent", "operator", "representative"},
		phrases: []string{"talk to someone", "speak to someone", "real person", "customer service"},
		reply:   ReplyHumanHandoff,
	},
	{
		intent:  IntentPricing,
		words:   []string{"price", "prices", "pricing", "cost", "costs", "plan", "plans", "subscription", "fee", "fees"},
		phrases: []string{"how much"},
		reply:   "Happy to help with pricing. A team member can share the current plans and prices, or ask me about a specific product.",
	},
	{
		intent:  IntentHours,
		words:   []string{"hours", "open", "opening", "close", "closing", "schedule"},
		phrases: []string{"what time"},
		reply:   "Our team will confirm our current opening hours. Is there anything else I can help you with meanwhile?",
	},
	{
		intent:  IntentSupport,
		words:   []string{"help", "problem", "issue", "error", "broken", "bug", "support"},
		phrases: []string{"not working", "doesn't work"},
		reply:   "Sorry you're having trouble. Could you describe what happened in a bit more detail?",
	},
	{
		intent: IntentThanks,
		words:  []string{"thanks", "thank", "thx", "ty"},
		reply:  "You're welcome! Let me know if there's anything else I can do.",
	},
	{
		intent:  IntentGoodbye,
		words:   []string{"bye", "goodbye", "cya"},
		phrases: []string{"see you"},
		reply:   "Goodbye! Feel free to message us any time.",
	},
	{
		intent:  IntentGreeting,
		words:   []string{"hi", "hello", "hey", "hola", "start", "halo", "hai"},
		phrases: []string{"good morning", "good afternoon", "good evening"},
		reply:   "Hello! How can I help you today?",
	},
}

// DetectIntent classifies text with the keyword intent table.
func DetectIntent(text string) string {
	if rule := matchIntent(text); rule != nil {
		return rule.intent
	}
	return IntentUnknown
}

func matchIntent(text string) *intentRule {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return nil
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '\''
	}) {
		words[w] = struct{}{}
	}

	for i := range intentTable {
		rule := &intentTable[i]
		for _, w := range rule.words {
			if _, ok := words[w]; ok {
				return rule
			}
		}
		for _, p := range rule.phrases {
			if strings.Contains(lower, p) {
				return rule
			}
		}
	}
	return nil
}

type FallbackReply struct {
	Text    string
	Intent  string
	Handoff bool
	// Source is "human", "knowledge", "intent" or "default".
	Source string
}

// FallbackResponder is the deterministic, non-generative responder.
type FallbackResponder struct {
	threshold int
}

func NewFallbackResponder(threshold int) *FallbackResponder {
	return &FallbackResponder{threshold: threshold}
}

// Respond picks a reply for text. An explicit request for a human hands
// off; a knowledge match at or above the threshold answers directly; a known
// intent gets its canned reply; anything else gets the safe default and a
// handoff.
func (f *FallbackResponder) Respond(text string, ranked []ScoredEntry) FallbackReply {
	rule := matchIntent(text)
	intent := IntentUnknown
	if rule != nil {
		intent = rule.intent
	}

	if intent == IntentHuman {
		return FallbackReply{Text: rule.reply, Intent: intent, Handoff: true, Source: "human"}
	}
	if len(ranked) > 0 && ranked[0].Score >= f.threshold {
		if answer := strings.TrimSpace(ranked[0].Entry.Answer); answer != "" {
			return FallbackReply{Text: answer, Intent: intent, Source: "knowledge"}
		}
	}
	if rule != nil {
		return FallbackReply{Text: rule.reply, Intent: intent, Source: "intent"}
	}
	return FallbackReply{Text: ReplySafeDefault, Intent: IntentUnknown, Handoff: true, Source: "default"}
}
