package memory

import (
	"cmp"
	"math"
	"slices"
	"strings"
	"unicode"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
)

// tokenize lowercases s and splits it on anything that is not a letter or a
// digit, approximating the standard analyzer.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// documentTerms is the distinct term set more-like-this compares on.
func documentTerms(d domain.IndexDocument) []string {
	seen := make(map[string]struct{})
	var out []string
	eachTerm(d, func(t string) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	})
	return out
}

// mltTerms selects the terms of the reference document a more-like-this
// query looks for: the most frequent ones, ties broken alphabetically, at
// most engine.MLTMaxQueryTerms of them.
func mltTerms(d domain.IndexDocument) []string {
	freq := make(map[string]int)
	var terms []string
	eachTerm(d, func(t string) {
		if freq[t] == 0 {
			terms = append(terms, t)
		}
		freq[t]++
	})
	slices.SortFunc(terms, func(a, b string) int {
		if c := cmp.Compare(freq[b], freq[a]); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return terms[:min(len(terms), engine.MLTMaxQueryTerms)]
}

func eachTerm(d domain.IndexDocument, fn func(string)) {
	for _, t := range tokenize(d.Title) {
		fn(t)
	}
	for _, t := range tokenize(d.Description) {
		fn(t)
	}
	// type is a keyword field: one term for the whole value.
	if t := strings.ToLower(d.Type); t != "" {
		fn(t)
	}
}

func countOverlap(like, candidate []string) int {
	set := make(map[string]struct{}, len(candidate))
	for _, t := range candidate {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range like {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
}

func fuzzyContains(tokens []string, term string) bool {
	maxEdits := engine.Fuzziness(term)
	for _, tok := range tokens {
		if tok == term || (maxEdits > 0 && levenshtein([]rune(tok), []rune(term)) <= maxEdits) {
			return true
		}
	}
	return false
}

// fuzzyPrefix reports whether some prefix of s is within maxEdits of prefix.
// The first character must match exactly.
func fuzzyPrefix(s, prefix string, maxEdits int) bool {
	sr, pr := []rune(s), []rune(prefix)
	if len(sr) == 0 || len(pr) == 0 || sr[0] != pr[0] {
		return false
	}
	for l := len(pr) - maxEdits; l <= len(pr)+maxEdits; l++ {
		if l < 1 || l > len(sr) {
			continue
		}
		if levenshtein(sr[:l], pr) <= maxEdits {
			return true
		}
	}
	return false
}

// levenshtein is the edit distance between a and b with unit costs and
// adjacent transpositions counted as one edit, as Lucene's fuzzy queries do.
func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev2 := make([]int, len(b)+1)
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
			if i > 1 && j > 1 && a[i-1] == b[j-2] && a[i-2] == b[j-1] {
				cur[j] = min(cur[j], prev2[j-2]+1)
			}
		}
		prev2, prev, cur = prev, cur, prev2
	}
	return prev[len(b)]
}

const earthRadiusKm = 6371.0

// haversineKm is the great-circle distance between two points in kilometres.
func haversineKm(a, b domain.GeoPoint) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
