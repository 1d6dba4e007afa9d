package elasticsearch

import (
	"fmt"
	"strconv"
	"time"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
)

const (
	suggestionName  = "content_suggest"
	suggestMinFuzzy = 3
	typeFacetSize   = 50
)

// QueryBuilder turns domain queries into Elasticsearch request bodies.
type QueryBuilder struct {
	ranking   domain.RankingConfig
	indexName string
}

// NewQueryBuilder creates a query builder for indexName.
func NewQueryBuilder(ranking domain.RankingConfig, indexName string) *QueryBuilder {
	return &QueryBuilder{ranking: ranking, indexName: indexName}
}

// Build constructs the complete search body for q.
func (qb *QueryBuilder) Build(q *domain.SearchQuery) map[string]interface{} {
	body := map[string]interface{}{
		"query":            qb.buildQuery(q),
		"from":             max(q.From, 0),
		"size":             max(q.Size, 0),
		"sort":             qb.buildSort(q),
		"track_total_hits": true,
	}
	if q.Facets {
		body["aggs"] = qb.buildAggregations()
	}
	return body
}

func (qb *QueryBuilder) buildQuery(q *domain.SearchQuery) map[string]interface{} {
	filters := qb.buildFilters(q.Filters)

	switch q.Kind {
	case domain.KindTrending:
		filters = append(filters, term("published", true))
		return qb.trendingQuery(filters)

	case domain.KindSimilar:
		return boolQuery([]interface{}{qb.moreLikeThis(q.LikeID)}, filters)

	case domain.KindLocation:
		if q.Geo != nil {
			filters = append(filters, map[string]interface{}{
				"geo_distance": map[string]interface{}{
					"distance": formatKm(q.Geo.RadiusKm),
					"location": map[string]interface{}{"lat": q.Geo.Center.Lat, "lon": q.Geo.Center.Lon},
				},
			})
		}
		must := []interface{}{matchAll()}
		if q.Keyword != "" {
			must = []interface{}{qb.multiMatch(q.Keyword)}
		}
		return boolQuery(must, filters)

	case domain.KindOwner:
		return boolQuery([]interface{}{matchAll()}, filters)

	default:
		base := matchAll()
		if q.Keyword != "" {
			base = qb.multiMatch(q.Keyword)
		}
		return qb.ranked(boolQuery([]interface{}{base}, filters))
	}
}

// multiMatch is the base relevance clause: title outweighs description,
// typos are tolerated by term length, and most terms must match.
func (qb *QueryBuilder) multiMatch(keyword string) map[string]interface{} {
	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query": keyword,
			"fields": []string{
				"title^" + formatBoost(qb.ranking.TitleBoost),
				"description^" + formatBoost(qb.ranking.DescriptionBoost),
			},
			"type":                 "best_fields",
			"fuzziness":            "AUTO",
			"minimum_should_match": strconv.Itoa(qb.ranking.MinimumShouldMatch) + "%",
		},
	}
}

// ranked wraps query in the popularity and recency boosts. Both functions
// multiply; the recency function only applies inside its window.
func (qb *QueryBuilder) ranked(query map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"function_score": map[string]interface{}{
			"query": query,
			"functions": []interface{}{
				map[string]interface{}{
					"field_value_factor": map[string]interface{}{
						"field":    "rating",
						"modifier": "log1p",
						"missing":  0,
					},
					"weight": qb.ranking.RatingFactor,
				},
				map[string]interface{}{
					"filter": map[string]interface{}{
						"range": map[string]interface{}{
							"updatedAt": map[string]interface{}{"gte": "now-" + dateMath(qb.ranking.RecencyWindow)},
						},
					},
					"weight": qb.ranking.RecencyBoost,
				},
			},
			"score_mode": "multiply",
			"boost_mode": "multiply",
		},
	}
}

// trendingQuery scores log10(1 + likeCount) plus one freshness bonus over a
// match-all base of 1.0. The bonus windows do not overlap.
func (qb *QueryBuilder) trendingQuery(filters []interface{}) map[string]interface{} {
	hot := "now-" + dateMath(qb.ranking.TrendingHotWindow)
	warm := "now-" + dateMath(qb.ranking.TrendingWarmWindow)

	return map[string]interface{}{
		"function_score": map[string]interface{}{
			"query": boolQuery([]interface{}{matchAll()}, filters),
			"functions": []interface{}{
				map[string]interface{}{
					"field_value_factor": map[string]interface{}{
						"field":    "likeCount",
						"modifier": "log1p",
						"missing":  0,
					},
				},
				map[string]interface{}{
					"filter": map[string]interface{}{
						"range": map[string]interface{}{"updatedAt": map[string]interface{}{"gte": hot}},
					},
					"weight": qb.ranking.TrendingHotBonus,
				},
				map[string]interface{}{
					"filter": map[string]interface{}{
						"range": map[string]interface{}{"updatedAt": map[string]interface{}{"gte": warm, "lt": hot}},
					},
					"weight": qb.ranking.TrendingWarmBonus,
				},
			},
			"score_mode": "sum",
			"boost_mode": "multiply",
		},
	}
}

func (qb *QueryBuilder) moreLikeThis(id string) map[string]interface{} {
	return map[string]interface{}{
		"more_like_this": map[string]interface{}{
			"fields":               []string{"title", "description", "type"},
			"like":                 []interface{}{map[string]interface{}{"_index": qb.indexName, "_id": id}},
			"min_term_freq":        1,
			"min_doc_freq":         1,
			"max_query_terms":      engine.MLTMaxQueryTerms,
			"minimum_should_match": strconv.Itoa(qb.ranking.SimilarShouldMatch) + "%",
		},
	}
}

func (qb *QueryBuilder) buildFilters(f domain.Filters) []interface{} {
	var filters []interface{}

	if f.MinBudget != nil || f.MaxBudget != nil {
		r := map[string]interface{}{}
		if f.MinBudget != nil {
			r["gte"] = *f.MinBudget
		}
		if f.MaxBudget != nil {
			r["lte"] = *f.MaxBudget
		}
		filters = append(filters, map[string]interface{}{"range": map[string]interface{}{"budget": r}})
	}
	if f.MinRating != nil {
		filters = append(filters, map[string]interface{}{
			"range": map[string]interface{}{"rating": map[string]interface{}{"gte": *f.MinRating}},
		})
	}
	if f.Type != "" {
		filters = append(filters, term("type", f.Type))
	}
	if f.Published != nil {
		filters = append(filters, term("published", *f.Published))
	}
	if f.UserID != "" {
		filters = append(filters, term("userId", f.UserID))
	}
	return filters
}

// buildSort returns the explicit sort if any, else the kind's default.
// The id keyword is always the final tie-breaker.
func (qb *QueryBuilder) buildSort(q *domain.SearchQuery) []interface{} {
	var sort []interface{}

	switch {
	case len(q.Sort) > 0:
		for _, s := range q.Sort {
			dir := s.Direction
			if dir != domain.SortAsc {
				dir = domain.SortDesc
			}
			sort = append(sort, map[string]interface{}{sortField(s.Field): map[string]interface{}{"order": dir}})
		}
	case q.Kind == domain.KindLocation && q.Geo != nil:
		sort = append(sort, map[string]interface{}{
			"_geo_distance": map[string]interface{}{
				"location": map[string]interface{}{"lat": q.Geo.Center.Lat, "lon": q.Geo.Center.Lon},
				"order":    "asc",
				"unit":     "km",
			},
		})
	case q.Kind == domain.KindOwner:
		sort = append(sort, map[string]interface{}{"updatedAt": map[string]interface{}{"order": "desc"}})
	default:
		sort = append(sort,
			map[string]interface{}{"_score": map[string]interface{}{"order": "desc"}},
			map[string]interface{}{"updatedAt": map[string]interface{}{"order": "desc"}},
		)
	}

	return append(sort, map[string]interface{}{"id": map[string]interface{}{"order": "asc"}})
}

// buildAggregations constructs the type and budget facets.
func (qb *QueryBuilder) buildAggregations() map[string]interface{} {
	ranges := make([]map[string]interface{}, 0, 4)
	for _, r := range domain.BudgetRanges() {
		bucket := map[string]interface{}{"key": r.Key, "from": r.From}
		if r.To != nil {
			bucket["to"] = *r.To
		}
		ranges = append(ranges, bucket)
	}

	return map[string]interface{}{
		"type": map[string]interface{}{
			"terms": map[string]interface{}{"field": "type", "size": typeFacetSize},
		},
		"budget": map[string]interface{}{
			"range": map[string]interface{}{"field": "budget", "ranges": ranges},
		},
	}
}

// BuildSuggest constructs a completion request on the suggestions field.
// Prefixes of three or more characters tolerate one edit.
func (qb *QueryBuilder) BuildSuggest(prefix string, limit int) map[string]interface{} {
	completion := map[string]interface{}{
		"field":           "suggestions",
		"size":            limit,
		"skip_duplicates": true,
	}
	if len([]rune(prefix)) >= suggestMinFuzzy {
		completion["fuzzy"] = map[string]interface{}{"fuzziness": 1}
	}

	return map[string]interface{}{
		"_source": false,
		"suggest": map[string]interface{}{
			suggestionName: map[string]interface{}{
				"prefix":     prefix,
				"completion": completion,
			},
		},
	}
}

func sortField(field string) string {
	if field == domain.SortTitle {
		return "title.keyword"
	}
	return field
}

func boolQuery(must, filters []interface{}) map[string]interface{} {
	b := map[string]interface{}{"must": must}
	if len(filters) > 0 {
		b["filter"] = filters
	}
	return map[string]interface{}{"bool": b}
}

func matchAll() map[string]interface{} {
	return map[string]interface{}{"match_all": map[string]interface{}{}}
}

func term(field string, value interface{}) map[string]interface{} {
	return map[string]interface{}{"term": map[string]interface{}{field: value}}
}

func formatBoost(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func formatKm(km float64) string {
	return strconv.FormatFloat(km, 'f', -1, 64) + "km"
}

// dateMath renders d in Elasticsearch date math, in whole hours when possible.
func dateMath(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", int64(d/time.Hour))
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}
