// Package sanitize normalizes raw model output into a single utterance.
package sanitize

import "strings"

// ReasoningDelimiter closes the reasoning block some models emit before answering.
const ReasoningDelimiter = "</think>"

var rolePrefixes = []string{"Agent:", "Operator:"}

// Clean strips speaker prefixes and reasoning output from raw.
//
// Only the first colon is treated as a name separator, so "I need help: now"
// becomes "now". The result may be empty; callers treat that as no usable
// response.
func Clean(raw string) string {
	out := strings.TrimSpace(raw)

	if _, after, ok := strings.Cut(out, ":"); ok {
		out = strings.TrimSpace(after)
	}

	if _, after, ok := strings.Cut(out, ReasoningDelimiter); ok {
		out = strings.TrimSpace(after)
	}

	for _, prefix := range rolePrefixes {
		if strings.Contains(out, prefix) {
			out = strings.TrimSpace(strings.ReplaceAll(out, prefix, ""))
		}
	}
	return out
}
