package normalize

import (
	"strings"
	"unicode"
)

// collapseRuns shortens every run of 3 or more identical letters to keep
// runes. Shorter runs, digits and punctuation are left alone.
func collapseRuns(word string, keep int) string {
	runes := []rune(word)
	var b strings.Builder
	for i := 0; i < len(runes); {
		j := i + 1
		if unicode.IsLetter(runes[i]) {
			for j < len(runes) && unicode.ToLower(runes[j]) == unicode.ToLower(runes[i]) {
				j++
			}
		}
		n := j - i
		if n >= 3 {
			n = keep
		}
		b.WriteString(string(runes[i : i+n]))
		i = j
	}
	return b.String()
}

// hasLongRun reports whether word contains 3+ identical consecutive letters.
func hasLongRun(word string) bool {
	var prev rune
	run := 0
	for _, r := range word {
		lr := unicode.ToLower(r)
		if unicode.IsLetter(r) && run > 0 && lr == prev {
			run++
			if run >= 3 {
				return true
			}
		} else {
			run = 1
		}
		prev = lr
	}
	return false
}

// elongated reports whether a word carries emphasis elongation. A word made
// of a single repeated letter ("www", "AAA") is not treated as elongated.
func elongated(word string) bool {
	if !hasLongRun(word) {
		return false
	}
	lower := []rune(strings.ToLower(word))
	for _, r := range lower[1:] {
		if r != lower[0] {
			return true
		}
	}
	return false
}

// lookupForms returns the lowercased forms of word to try against the
// lexicon: as written, then the double-letter collapse, then single.
func lookupForms(word string) []string {
	lower := strings.ToLower(word)
	if !elongated(lower) {
		return []string{lower}
	}
	forms := []string{lower}
	for _, f := range []string{collapseRuns(lower, 2), collapseRuns(lower, 1)} {
		if f != forms[len(forms)-1] {
			forms = append(forms, f)
		}
	}
	return forms
}
