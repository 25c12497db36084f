package ranker

import (
	"regexp"
	"strings"
)

// compileFilterRegex validates and compiles an optional content regex
// filter. Per the ReDoS guard, a pattern longer than maxLen or one that
// fails to compile is silently ignored (the filter step becomes a no-op)
// rather than surfaced as an error.
func compileFilterRegex(pattern string, maxLen int) *regexp.Regexp {
	if pattern == "" || len(pattern) > maxLen {
		return nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}

// symbolBoost returns the additive score bump for an AST symbol match: an
// exact case-insensitive match between the normalized query and the
// candidate's symbol name earns the full boost, a substring match in
// either direction earns the partial boost, and anything else earns none.
func symbolBoost(queryText, symbolName string, exact, partial float64) float64 {
	if symbolName == "" || queryText == "" {
		return 0
	}
	q := strings.ToLower(strings.TrimSpace(queryText))
	s := strings.ToLower(symbolName)
	switch {
	case q == s:
		return exact
	case strings.Contains(s, q) || strings.Contains(q, s):
		return partial
	default:
		return 0
	}
}
