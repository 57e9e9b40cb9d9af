package utils

import "strings"

// Truncate returns s truncated to maxLen bytes, with "..." appended if truncated.
// Newlines are flattened to spaces so previews stay single-line.
// If maxLen is 0 or negative, returns s unchanged.
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
