package sap

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize folds text for lexical matching of connection and server names:
// diacritics removed, anything not a letter or digit turned into a space,
// lower-cased and whitespace-collapsed.
func Normalize(text string) string {
	folded := Fold(text)
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteByte(' ')
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Fold decomposes text (NFKD) and drops the combining marks.
func Fold(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// MatchScore rates how well a visible label matches a target name. Both are
// normalized first. An empty label scores -1. Lengths count characters.
func MatchScore(candidate, target string) int {
	text := Normalize(candidate)
	if text == "" {
		return -1
	}
	want := Normalize(target)
	if text == want {
		return 100
	}
	if strings.Contains(text, want) {
		return 90
	}
	if utf8.RuneCountInString(text) >= 6 && strings.Contains(want, text) {
		return 70
	}

	targetTokens := strings.Fields(want)
	textTokens := make(map[string]struct{})
	for _, tok := range strings.Fields(text) {
		textTokens[tok] = struct{}{}
	}

	score := 0
	for _, tok := range targetTokens {
		if utf8.RuneCountInString(tok) <= 1 {
			continue
		}
		if _, ok := textTokens[tok]; ok {
			score += 8
		} else if strings.Contains(text, tok) {
			score += 5
		}
	}
	if len(targetTokens) > 0 && strings.HasPrefix(text, targetTokens[0]) {
		score += 10
	}
	return score
}

// bestMatch returns the index of the highest scoring label; ties keep the first.
// It returns -1 when labels is empty.
func bestMatch(labels []string, target string) (int, int) {
	best, bestScore := -1, -1
	for i, label := range labels {
		score := MatchScore(label, target)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best, bestScore
}

// descriptionMatches reports whether an open connection's description refers to
// the configured connection name: the name is a substring of the description or
// both share the same first three tokens.
func descriptionMatches(description, name string) bool {
	have := Normalize(description)
	want := Normalize(name)
	if have == "" || want == "" {
		return false
	}
	if strings.Contains(have, want) {
		return true
	}
	haveTokens := strings.Fields(have)
	wantTokens := strings.Fields(want)
	const leading = 3
	if len(wantTokens) < leading || len(haveTokens) < leading {
		return false
	}
	for i := 0; i < leading; i++ {
		if haveTokens[i] != wantTokens[i] {
			return false
		}
	}
	return true
}

// stripEllipsis removes "..." and "…" truncation markers from a display name.
func stripEllipsis(name string) string {
	cleaned := strings.ReplaceAll(name, "...", " ")
	cleaned = strings.ReplaceAll(cleaned, "…", " ")
	return strings.Join(strings.Fields(cleaned), " ")
}
