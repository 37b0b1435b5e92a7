package usecases

import (
	"sort"
	"strings"
	"unicode"

	"chatdesk/internal/entities"
)

// Scoring weights for knowledge retrieval.
const (
	scoreKeyword  = 2
	scoreQuestion = 3
	scoreToken    = 1
)

type ScoredEntry struct {
	Entry entities.KnowledgeEntry
	Score int
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "you": {}, "your": {}, "are": {}, "can": {},
	"what": {}, "how": {}, "does": {}, "with": {}, "this": {}, "that": {}, "have": {},
	"from": {}, "about": {}, "there": {}, "any": {}, "please": {},
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) < 3 {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// scoreEntry rates how well entry matches the inbound text: +2 per keyword
// found in the text, +3 when question and text contain one another, +1 per
// distinct text token present in the question or answer.
func scoreEntry(entry entities.KnowledgeEntry, text string, tokens []string) int {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return 0
	}
	score := 0
	for _, kw := range entry.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			score += scoreKeyword
		}
	}

	question := strings.ToLower(strings.TrimSpace(entry.Question))
	if question != "" && (strings.Contains(lower, question) || (len(tokens) > 0 && strings.Contains(question, lower))) {
		score += scoreQuestion
	}

	vocab := make(map[string]struct{})
	for _, t := range tokenize(entry.Question + " " + entry.Answer) {
		vocab[t] = struct{}{}
	}
	seen := make(map[string]struct{})
	for _, t := range tokens {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := vocab[t]; ok {
			score += scoreToken
		}
	}
	return score
}

// RankKnowledge returns up to topK entries with a positive score, best
// first. Ties go to the most recently updated entry.
func RankKnowledge(entries []entities.KnowledgeEntry, text string, topK int) []ScoredEntry {
	tokens := tokenize(text)
	scored := make([]ScoredEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Active {
			continue
		}
		if s := scoreEntry(e, text, tokens); s > 0 {
			scored = append(scored, ScoredEntry{Entry: e, Score: s})
		}
	}
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].Entry.UpdatedAt.After(scored[b].Entry.UpdatedAt)
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}
