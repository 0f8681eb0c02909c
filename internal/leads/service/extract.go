package service

import (
	"regexp"
	"strings"
	"unicode"

	"leadflow_backend/internal/eligibility"
)

// Lightweight heuristics that pull qualification fields out of free text.
// The generated conversation drives the questions; these extractors only
// capture the answers, so they favor precision over recall.

var (
	namePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)meu nome é\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
		regexp.MustCompile(`(?i)me chamo\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
		regexp.MustCompile(`(?i)\bsou (?:o|a)\s+([\p{L}]+(?:\s+[\p{L}]+)?)`),
	}

	interestKeywords = []string{
		"franquia", "abrir", "investir", "investimento", "unidade", "negócio", "loja",
	}

	// availabilityWords are matched as whole tokens; regexp \b is ASCII-only
	// and misfires next to accented characters.
	availabilityWords = map[string]bool{
		"manhã": true, "tarde": true, "noite": true, "hoje": true, "amanhã": true,
		"segunda": true, "terça": true, "quarta": true, "quinta": true,
		"sexta": true, "sábado": true, "domingo": true,
	}

	clockPattern = regexp.MustCompile(`\b\d{1,2}(?::\d{2}|h(?:\d{2})?)\b`)
)

const maxInterestLen = 160

// extractName returns a name introduced by a self-identification phrase.
func extractName(text string) (string, bool) {
	for _, pattern := range namePatterns {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1]), true
		}
	}
	return "", false
}

// extractRegion returns a UF code mentioned in the text.
func extractRegion(text string) (string, bool) {
	return eligibility.FindRegion(text)
}

// extractInterest captures the message as the stated interest when it
// mentions an investment-related keyword.
func extractInterest(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, keyword := range interestKeywords {
		if strings.Contains(lower, keyword) {
			trimmed := strings.TrimSpace(text)
			if runes := []rune(trimmed); len(runes) > maxInterestLen {
				trimmed = string(runes[:maxInterestLen])
			}
			return trimmed, true
		}
	}
	return "", false
}

// extractAvailability captures a day-part, weekday, or clock-time mention.
func extractAvailability(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, token := range strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r)
	}) {
		if availabilityWords[token] {
			return token, true
		}
	}
	if m := clockPattern.FindString(lower); m != "" {
		return m, true
	}
	return "", false
}
