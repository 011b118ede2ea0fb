package tgui

import "unicode/utf8"

// TruncRunes returns s truncated to at most n runes.
// It appends an ellipsis "…" when truncated.
func TruncRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	cut, ok := runeCut(s, n)
	if !ok {
		return s
	}
	return s[:cut] + "…"
}

// CutRunes returns the first n runes of s, without any marker.
func CutRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	cut, ok := runeCut(s, n)
	if !ok {
		return s
	}
	return s[:cut]
}

// runeCut reports the byte offset after the n-th rune and whether s has
// more than n runes.
func runeCut(s string, n int) (int, bool) {
	if utf8.RuneCountInString(s) <= n {
		return len(s), false
	}
	count := 0
	for i := range s {
		if count == n {
			return i, true
		}
		count++
	}
	return len(s), false
}
