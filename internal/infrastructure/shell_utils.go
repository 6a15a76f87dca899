package infrastructure

import "strings"

// AppleScriptQuote returns s as an AppleScript string literal, quotes
// included. Chapter and book names come from remote sources and may contain
// quotes or backslashes that would otherwise end the literal.
func AppleScriptQuote(s string) string {
	var result strings.Builder
	result.Grow(len(s) + 2)
	result.WriteByte('"')
	for _, c := range s {
		switch c {
		case '"', '\\':
			result.WriteByte('\\')
			result.WriteRune(c)
		case '\n', '\r', '\t':
			result.WriteByte(' ')
		default:
			result.WriteRune(c)
		}
	}
	result.WriteByte('"')
	return result.String()
}

// truncateString shortens s to maxLen characters, marking the cut
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
