// Package atomizer splits raw typing input into sentence-level atoms and
// redacts PII before anything touches storage. Everything here is pure and
// deterministic.
package atomizer

import (
	"regexp"
	"strings"
	"unicode"
)

// Placeholder tokens substituted for redacted PII
const (
	EmailPlaceholder         = "[EMAIL]"
	CreditCardPlaceholder    = "[CREDIT_CARD]"
	SensitiveCodePlaceholder = "[SENSITIVE_CODE]"
)

var (
	emailRegex = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)
	// Basic numeric sequence check: 13-16 digits, optionally grouped by
	// spaces or dashes.
	creditCardRegex = regexp.MustCompile(`\b(?:\d[ -]*?){13,16}\b`)
	// Any isolated 4-6 digit run. Known to over-redact years and counts;
	// kept as-is for compatibility with existing clients.
	sensitiveCodeRegex = regexp.MustCompile(`\b\d{4,6}\b`)
)

// Atomize splits text into sentence-level atoms. A split happens after
// `.`, `!` or `?` when the next character is whitespace, an uppercase letter
// (handles "Hello.Next"), or end-of-string. Atoms are trimmed and anything
// shorter than 2 characters after trimming is dropped.
func Atomize(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var atoms []string
	runes := []rune(trimmed)
	start := 0

	appendAtom := func(segment []rune) {
		atom := strings.TrimSpace(string(segment))
		if len([]rune(atom)) > 1 {
			atoms = append(atoms, atom)
		}
	}

	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '.', '!', '?':
			if i+1 >= len(runes) || unicode.IsSpace(runes[i+1]) || unicode.IsUpper(runes[i+1]) {
				appendAtom(runes[start : i+1])
				start = i + 1
			}
		}
	}

	if start < len(runes) {
		appendAtom(runes[start:])
	}

	return atoms
}

// ScrubPII redacts emails, credit-card-shaped numeric runs and isolated
// 4-6 digit codes. Redaction order matters: card runs must be consumed
// before the shorter code pattern gets a chance at their digits.
func ScrubPII(text string) string {
	if text == "" {
		return ""
	}

	scrubbed := emailRegex.ReplaceAllString(text, EmailPlaceholder)
	scrubbed = creditCardRegex.ReplaceAllString(scrubbed, CreditCardPlaceholder)
	scrubbed = sensitiveCodeRegex.ReplaceAllString(scrubbed, SensitiveCodePlaceholder)

	return scrubbed
}
