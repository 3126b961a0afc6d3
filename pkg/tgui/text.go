package tgui

import "unicode/utf8"

// Trunc returns s cut to at most n runes, with suffix appended when cut.
func Trunc(s string, n int, suffix string) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + suffix
		}
		count++
	}
	return s
}
