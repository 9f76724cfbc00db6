package openai

import "strings"

// truncateTokens keeps the first limit whitespace-delimited words of s.
// Words are not model tokens: the limit is a word budget chosen below the
// model window, and the server truncates whatever still overflows.
// Text within the limit is returned unchanged.
func truncateTokens(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	fields := strings.Fields(s)
	if len(fields) <= limit {
		return s
	}
	return strings.Join(fields[:limit], " ")
}
