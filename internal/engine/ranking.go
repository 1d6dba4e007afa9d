package engine

import (
	"math"
	"time"
	"unicode/utf8"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
)

// MLTMaxQueryTerms caps how many terms of the reference document a
// more-like-this query selects.
const MLTMaxQueryTerms = 25

// Popularity is the rating boost: log10(1 + rating) scaled by the rating factor.
func Popularity(rating float64, cfg domain.RankingConfig) float64 {
	return math.Log10(1+math.Max(rating, 0)) * cfg.RatingFactor
}

// Recency returns the recency multiplier for a document last modified at
// updated: the configured boost inside the window, otherwise 1.
func Recency(updated, now time.Time, cfg domain.RankingConfig) float64 {
	if !updated.Before(now.Add(-cfg.RecencyWindow)) {
		return cfg.RecencyBoost
	}
	return 1
}

// TrendingBonus is the additive freshness bonus for trending. The windows are
// exclusive: a document in the hot window gets only the hot bonus.
func TrendingBonus(updated, now time.Time, cfg domain.RankingConfig) float64 {
	switch {
	case !updated.Before(now.Add(-cfg.TrendingHotWindow)):
		return cfg.TrendingHotBonus
	case !updated.Before(now.Add(-cfg.TrendingWarmWindow)):
		return cfg.TrendingWarmBonus
	default:
		return 0
	}
}

// TrendingScore combines like-count popularity with the freshness bonus.
func TrendingScore(likes int64, updated, now time.Time, cfg domain.RankingConfig) float64 {
	return 1.0 * (math.Log10(1+math.Max(float64(likes), 0)) + TrendingBonus(updated, now, cfg))
}

// Fuzziness is the edit distance tolerated for a query term, following
// Elasticsearch's AUTO setting: exact for one or two characters, one edit up
// to five, two beyond.
func Fuzziness(term string) int {
	switch n := utf8.RuneCountInString(term); {
	case n <= 2:
		return 0
	case n <= 5:
		return 1
	default:
		return 2
	}
}

// RequiredMatches is how many of n optional clauses must match for a
// percentage minimum_should_match. Like Elasticsearch it rounds down, but at
// least one clause is always required.
func RequiredMatches(n, percent int) int {
	if n <= 0 {
		return 0
	}
	return max(n*percent/100, 1)
}
