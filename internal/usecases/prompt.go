package usecases

import (
	"fmt"
	"strings"

	"chatdesk/internal/entities"
)

var baselineRules = []string{
	"You are a helpful, professional assistant answering customers on behalf of this business.",
	"Be friendly and concise. Keep answers under 300 words.",
	"Answer from the knowledge provided below. Never make up prices, policies or facts.",
	"If you do not know the answer, say so and offer to connect the customer with a team member.",
	"Use emojis sparingly.",
}

// BuildInstructions renders the instruction payload in a fixed order:
// tenant rules, baseline rules, knowledge, then the memory summary.
func BuildInstructions(rules []entities.AIRule, knowledge []ScoredEntry, mem *entities.ConversationMemory) string {
	var sb strings.Builder

	if len(rules) > 0 {
		sb.WriteString("BUSINESS RULES (highest precedence first):\n")
		for _, r := range rules {
			sb.WriteString(renderRule(r))
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}

	sb.WriteString("GUIDELINES:\n")
	for _, line := range baselineRules {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}

	if len(knowledge) > 0 {
		sb.WriteString("\nKNOWLEDGE BASE:\n")
		for _, k := range knowledge {
			fmt.Fprintf(&sb, "Q: %s\nA: %s\n", k.Entry.Question, k.Entry.Answer)
		}
	}

	if mem != nil && mem.MessageCount > 0 {
		sb.WriteString("\nCONVERSATION CONTEXT:\n")
		fmt.Fprintf(&sb, "- Previous messages from this customer: %d\n", mem.MessageCount)
		if mem.LastIntent != "" {
			fmt.Fprintf(&sb, "- Previous topic: %s\n", mem.LastIntent)
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}

func renderRule(r entities.AIRule) string {
	cond := strings.TrimSpace(r.Condition)
	directive := strings.TrimSpace(r.Directive)
	if cond == "" {
		return "- " + directive
	}
	return fmt.Sprintf("- When %s: %s", cond, directive)
}
