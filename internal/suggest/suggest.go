// Package suggest derives autocomplete candidates from content titles.
package suggest

import (
	"strings"
	"unicode/utf8"
)

// minTokenRunes is the exclusive lower bound on the length of a title word
// that becomes a candidate of its own.
const minTokenRunes = 2

// Build returns the completion candidates for title in derivation order: the
// title exactly as given, its lowercase form, the hyphenated form when the
// title has more than one word, then every word longer than two characters.
// Derived forms ignore surrounding whitespace. The result is deduplicated and
// never nil; a blank title has no candidates.
func Build(title string) []string {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return []string{}
	}

	out := make([]string, 0, 8)
	seen := make(map[string]struct{}, 8)
	add := func(s string) {
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}

	add(title)
	add(trimmed)
	add(strings.ToLower(trimmed))

	words := strings.Fields(trimmed)
	if len(words) > 1 {
		add(strings.Join(words, "-"))
	}
	for _, w := range words {
		if utf8.RuneCountInString(w) > minTokenRunes {
			add(w)
		}
	}
	return out
}
