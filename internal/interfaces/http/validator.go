package http

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Input validation constants
const (
	MaxIdentifierLength = 128
	MaxQuestionLength   = 1000
	MaxAnswerLength     = 10000
	MaxRuleLength       = 2000
	MaxNameLength       = 256
)

var (
	identifierPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)
	usernamePattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidIdentifier checks a provider identifier (bot id, phone number id,
// site key) before it is used in lookups.
func ValidIdentifier(s string) bool {
	return s != "" && len(s) <= MaxIdentifierLength && identifierPattern.MatchString(s)
}

// ValidUsername checks if a username is safe (alphanumeric + underscore + hyphen)
func ValidUsername(s string) bool {
	return s != "" && len(s) <= 64 && usernamePattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8, and trims space.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return strings.TrimSpace(s)
}

// ValidateLength checks if the rune count is within bounds
func ValidateLength(s string, min, max int) bool {
	l := utf8.RuneCountInString(s)
	return l >= min && l <= max
}

// SanitizeKeywords trims, lowercases and drops empty or duplicate keywords.
func SanitizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(SanitizeString(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
