package domain

import (
	"encoding/json"
	"math"
	"time"

	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/pagination"
)

// Kind selects how a SearchQuery is matched and ranked.
type Kind string

const (
	KindKeyword  Kind = "keyword"
	KindAdvanced Kind = "advanced"
	KindOwner    Kind = "owner"
	KindSimilar  Kind = "similar"
	KindTrending Kind = "trending"
	KindLocation Kind = "location"
)

// Sortable fields for advanced search.
const (
	SortBudget    = "budget"
	SortRating    = "rating"
	SortLikeCount = "likeCount"
	SortCreatedAt = "createdAt"
	SortUpdatedAt = "updatedAt"
	SortTitle     = "title"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

// ValidSortFields returns the fields advanced search can sort on.
func ValidSortFields() []string {
	return []string{SortBudget, SortRating, SortLikeCount, SortCreatedAt, SortUpdatedAt, SortTitle}
}

// IsValidSortField reports whether field is one of ValidSortFields.
func IsValidSortField(field string) bool {
	for _, f := range ValidSortFields() {
		if f == field {
			return true
		}
	}
	return false
}

// SortField is an explicit sort key.
type SortField struct {
	Field     string
	Direction string
}

// Filters are AND-ed constraints; nil or empty members add nothing.
type Filters struct {
	MinBudget *float64
	MaxBudget *float64
	MinRating *float64
	Type      string
	Published *bool
	UserID    string
}

// GeoFilter restricts matches to RadiusKm around Center.
type GeoFilter struct {
	Center   GeoPoint
	RadiusKm float64
}

// SearchQuery is the engine-level description of one query.
type SearchQuery struct {
	Kind    Kind
	Keyword string
	Filters Filters
	// Sort overrides the kind's default ordering. The id is always the final
	// tie-breaker.
	Sort []SortField
	// LikeID is the reference document for KindSimilar.
	LikeID string
	Geo    *GeoFilter
	Facets bool
	From   int
	Size   int
}

// FacetBucket is one count in a facet breakdown.
type FacetBucket struct {
	Key   string `json:"key"`
	Count int64  `json:"count"`
}

// Facets are the aggregations returned with advanced search.
type Facets struct {
	Type   []FacetBucket `json:"type"`
	Budget []FacetBucket `json:"budget"`
}

// BudgetRange is a half-open [From, To) budget bracket. A nil To is unbounded.
type BudgetRange struct {
	Key  string
	From float64
	To   *float64
}

// Contains reports whether v falls inside the bracket.
func (b BudgetRange) Contains(v float64) bool {
	if v < b.From {
		return false
	}
	return b.To == nil || v < *b.To
}

// BudgetRanges returns the fixed budget facet brackets in display order.
func BudgetRanges() []BudgetRange {
	to := func(v float64) *float64 { return &v }
	return []BudgetRange{
		{Key: "0-100", From: 0, To: to(100)},
		{Key: "100-500", From: 100, To: to(500)},
		{Key: "500-1000", From: 500, To: to(1000)},
		{Key: "1000+", From: 1000},
	}
}

// SearchHits is the raw engine output for one query.
type SearchHits struct {
	Documents []IndexDocument
	Total     int64
	Facets    *Facets
}

// AdvancedSearchParams are the inputs of a filtered, faceted search.
type AdvancedSearchParams struct {
	Keyword       string
	MinBudget     *float64
	MaxBudget     *float64
	MinRating     *float64
	Type          string
	Published     *bool
	SortBy        string
	SortDirection string
	Page          pagination.Params
}

// Validate checks the parameters before any engine call.
func (p AdvancedSearchParams) Validate() error {
	if p.MinBudget != nil && p.MaxBudget != nil && *p.MinBudget > *p.MaxBudget {
		return apperrors.InvalidInput("minBudget must not exceed maxBudget")
	}
	if p.MinRating != nil && *p.MinRating < 0 {
		return apperrors.InvalidInput("minRating must not be negative")
	}
	if p.SortBy != "" && !IsValidSortField(p.SortBy) {
		return apperrors.InvalidInputf("sortBy must be one of %v", ValidSortFields())
	}
	switch p.SortDirection {
	case "", SortAsc, SortDesc:
	default:
		return apperrors.InvalidInput("sortDirection must be asc or desc")
	}
	return nil
}

// LocationSearchParams are the inputs of a radius search.
type LocationSearchParams struct {
	Lat       float64
	Lon       float64
	RadiusKm  float64
	Keyword   string
	Published *bool
	Page      pagination.Params
}

// Validate checks the coordinate and radius.
func (p LocationSearchParams) Validate() error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return apperrors.InvalidInput("lat must be between -90 and 90")
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return apperrors.InvalidInput("lon must be between -180 and 180")
	}
	if math.IsNaN(p.RadiusKm) || p.RadiusKm <= 0 {
		return apperrors.InvalidInput("distanceKm must be positive")
	}
	return nil
}

// SearchResultPage is one page of results. Only the page position and the
// total are stored; the derived paging fields are computed on demand.
type SearchResultPage struct {
	Items         []IndexDocument
	Page          int
	Size          int
	TotalElements int64
	Facets        *Facets

	degraded bool
}

// EmptyPage returns a page with no items at the given position.
func EmptyPage(page, size int) SearchResultPage {
	return SearchResultPage{Items: []IndexDocument{}, Page: page, Size: size}
}

// MarkDegraded flags the page as served without the search engine.
func (p *SearchResultPage) MarkDegraded() { p.degraded = true }

// Degraded reports whether the page stands in for a failed engine call.
func (p SearchResultPage) Degraded() bool { return p.degraded }

func (p SearchResultPage) TotalPages() int { return pagination.TotalPages(p.TotalElements, p.Size) }

func (p SearchResultPage) HasNext() bool { return pagination.HasNext(p.Page, p.TotalElements, p.Size) }

func (p SearchResultPage) HasPrevious() bool { return pagination.HasPrevious(p.Page) }

type pageJSON struct {
	Items []IndexDocument `json:"items"`
	pagination.Meta
	Facets *Facets `json:"facets,omitempty"`
}

// MarshalJSON materialises the derived paging fields.
func (p SearchResultPage) MarshalJSON() ([]byte, error) {
	items := p.Items
	if items == nil {
		items = []IndexDocument{}
	}
	return json.Marshal(pageJSON{
		Items:  items,
		Meta:   pagination.NewMeta(p.Page, p.Size, p.TotalElements),
		Facets: p.Facets,
	})
}

// UnmarshalJSON reads the stored fields back, ignoring the derived ones.
func (p *SearchResultPage) UnmarshalJSON(data []byte) error {
	var raw pageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = SearchResultPage{
		Items:         raw.Items,
		Page:          raw.Page,
		Size:          raw.Size,
		TotalElements: raw.TotalElements,
		Facets:        raw.Facets,
	}
	if p.Items == nil {
		p.Items = []IndexDocument{}
	}
	return nil
}

// RankingConfig holds the scoring constants shared by every engine.
type RankingConfig struct {
	TitleBoost           float64       `env:"RANKING_TITLE_BOOST" envDefault:"3"`
	DescriptionBoost     float64       `env:"RANKING_DESCRIPTION_BOOST" envDefault:"1"`
	MinimumShouldMatch   int           `env:"RANKING_MINIMUM_SHOULD_MATCH" envDefault:"70"`
	RatingFactor         float64       `env:"RANKING_RATING_FACTOR" envDefault:"1"`
	RecencyBoost         float64       `env:"RANKING_RECENCY_BOOST" envDefault:"1.2"`
	RecencyWindow        time.Duration `env:"RANKING_RECENCY_WINDOW" envDefault:"720h"`
	SimilarShouldMatch   int           `env:"RANKING_SIMILAR_SHOULD_MATCH" envDefault:"60"`
	TrendingHotWindow    time.Duration `env:"RANKING_TRENDING_HOT_WINDOW" envDefault:"168h"`
	TrendingHotBonus     float64       `env:"RANKING_TRENDING_HOT_BONUS" envDefault:"2.5"`
	TrendingWarmWindow   time.Duration `env:"RANKING_TRENDING_WARM_WINDOW" envDefault:"720h"`
	TrendingWarmBonus    float64       `env:"RANKING_TRENDING_WARM_BONUS" envDefault:"1.2"`
	SimilarCandidatePool int           `env:"RANKING_SIMILAR_CANDIDATE_POOL" envDefault:"50"`
}

// DefaultRankingConfig returns the production scoring constants.
func DefaultRankingConfig() RankingConfig {
	return RankingConfig{
		TitleBoost:           3,
		DescriptionBoost:     1,
		MinimumShouldMatch:   70,
		RatingFactor:         1,
		RecencyBoost:         1.2,
		RecencyWindow:        30 * 24 * time.Hour,
		SimilarShouldMatch:   60,
		TrendingHotWindow:    7 * 24 * time.Hour,
		TrendingHotBonus:     2.5,
		TrendingWarmWindow:   30 * 24 * time.Hour,
		TrendingWarmBonus:    1.2,
		SimilarCandidatePool: 50,
	}
}

// Validate checks the weights are usable.
func (c RankingConfig) Validate() error {
	switch {
	case c.TitleBoost <= c.DescriptionBoost || c.DescriptionBoost <= 0:
		return apperrors.InvalidInput("title boost must exceed a positive description boost")
	case c.MinimumShouldMatch < 1 || c.MinimumShouldMatch > 100:
		return apperrors.InvalidInput("minimum should match must be a percentage")
	case c.SimilarShouldMatch < 1 || c.SimilarShouldMatch > 100:
		return apperrors.InvalidInput("similar should match must be a percentage")
	case c.RatingFactor <= 0 || c.RecencyBoost < 1:
		return apperrors.InvalidInput("rating factor must be positive and recency boost at least 1")
	case c.TrendingHotWindow <= 0 || c.TrendingWarmWindow <= c.TrendingHotWindow:
		return apperrors.InvalidInput("trending warm window must be longer than the hot window")
	case c.SimilarCandidatePool < 1:
		return apperrors.InvalidInput("similar candidate pool must be positive")
	}
	return nil
}
