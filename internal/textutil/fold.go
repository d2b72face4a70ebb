package textutil

import (
	"strings"

	"golang.org/x/text/cases"
)

// Fold returns the Unicode case-folded form of s with surrounding whitespace
// removed. Folding handles cases that strings.ToLower misses, such as the
// German sharp s.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// EqualFold reports whether a and b match after case folding.
func EqualFold(a, b string) bool {
	return Fold(a) == Fold(b)
}

// ContainsFold reports whether s contains substr after case folding. Empty
// strings never match.
func ContainsFold(s, substr string) bool {
	fs, fsub := Fold(s), Fold(substr)
	if fs == "" || fsub == "" {
		return false
	}
	return strings.Contains(fs, fsub)
}
