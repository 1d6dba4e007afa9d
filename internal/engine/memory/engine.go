package memory

import (
	"context"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
)

// Engine is an in-memory implementation of the SearchEngine interface. It
// applies the same ranking model as the Elasticsearch engine with a
// simplified analyzer, and orders ties deterministically.
// Thread-safe via sync.RWMutex.
type Engine struct {
	mu      sync.RWMutex
	docs    map[string]domain.IndexDocument
	ranking domain.RankingConfig
	now     func() time.Time
}

var _ engine.SearchEngine = (*Engine)(nil)

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source used for recency scoring.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRanking overrides the scoring constants.
func WithRanking(cfg domain.RankingConfig) Option {
	return func(e *Engine) { e.ranking = cfg }
}

// New creates a new in-memory search engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		docs:    make(map[string]domain.IndexDocument),
		ranking: domain.DefaultRankingConfig(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) EnsureSchema(context.Context) error { return nil }

func (e *Engine) Ping(context.Context) error { return nil }

// Upsert adds or replaces a single document.
func (e *Engine) Upsert(ctx context.Context, doc *domain.IndexDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.docs[doc.ID] = clone(*doc)
	return nil
}

// BulkUpsert adds or replaces docs. Documents without an id are reported as
// failures.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.IndexDocument) (*domain.BulkResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	result := &domain.BulkResult{}
	for i := range docs {
		if docs[i].ID == "" {
			result.Failures = append(result.Failures, domain.BulkFailure{Reason: "missing document id"})
			continue
		}
		e.docs[docs[i].ID] = clone(docs[i])
		result.Succeeded++
	}
	return result, nil
}

// Delete removes a document by id.
func (e *Engine) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.docs, id)
	return nil
}

// DeleteAll empties the index.
func (e *Engine) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	clear(e.docs)
	return nil
}

// Get returns a copy of the document with id.
func (e *Engine) Get(ctx context.Context, id string) (*domain.IndexDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()

	doc, ok := e.docs[id]
	if !ok {
		return nil, apperrors.NotFound("content", id)
	}
	out := clone(doc)
	return &out, nil
}

// Count returns the number of indexed documents.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

type hit struct {
	doc      domain.IndexDocument
	score    float64
	distance float64
}

// Search executes q against the in-memory index.
func (e *Engine) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchHits, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.now()
	terms := tokenize(q.Keyword)

	var likeTerms []string
	if q.Kind == domain.KindSimilar {
		like, ok := e.docs[q.LikeID]
		if !ok {
			return &domain.SearchHits{Documents: []domain.IndexDocument{}}, nil
		}
		likeTerms = mltTerms(like)
	}

	matched := make([]hit, 0)
	for _, d := range e.docs {
		if !matchesFilters(d, q.Filters) {
			continue
		}
		h := hit{doc: d}

		switch q.Kind {
		case domain.KindKeyword, domain.KindAdvanced:
			base := 1.0
			if len(terms) > 0 {
				var ok bool
				if base, ok = e.textScore(d, terms); !ok {
					continue
				}
			}
			h.score = base * engine.Popularity(d.Rating, e.ranking) * engine.Recency(d.UpdatedAt, now, e.ranking)

		case domain.KindTrending:
			if !d.Published {
				continue
			}
			h.score = engine.TrendingScore(d.LikeCount, d.UpdatedAt, now, e.ranking)

		case domain.KindSimilar:
			if d.ID == q.LikeID {
				continue
			}
			overlap := countOverlap(likeTerms, documentTerms(d))
			if overlap < engine.RequiredMatches(len(likeTerms), e.ranking.SimilarShouldMatch) {
				continue
			}
			h.score = float64(overlap)

		case domain.KindLocation:
			if q.Geo == nil || d.Location == nil {
				continue
			}
			h.distance = haversineKm(q.Geo.Center, *d.Location)
			if h.distance > q.Geo.RadiusKm {
				continue
			}
			if len(terms) > 0 {
				if _, ok := e.textScore(d, terms); !ok {
					continue
				}
			}

		case domain.KindOwner:
			// Filters already restrict to the owner.
		}

		matched = append(matched, h)
	}

	result := &domain.SearchHits{Total: int64(len(matched))}
	if q.Facets {
		result.Facets = buildFacets(matched)
	}

	sort.Slice(matched, less(q, matched))

	from := min(max(q.From, 0), len(matched))
	to := min(from+max(q.Size, 0), len(matched))
	result.Documents = make([]domain.IndexDocument, 0, to-from)
	for _, h := range matched[from:to] {
		result.Documents = append(result.Documents, clone(h.doc))
	}
	return result, nil
}

// textScore scores d against the query terms: each matching term adds the
// weight of the best field it matched in. ok is false when fewer terms
// matched than the minimum-should-match threshold requires.
func (e *Engine) textScore(d domain.IndexDocument, terms []string) (score float64, ok bool) {
	title := tokenize(d.Title)
	desc := tokenize(d.Description)

	hits := 0
	for _, term := range terms {
		var best float64
		if fuzzyContains(title, term) {
			best = e.ranking.TitleBoost
		} else if fuzzyContains(desc, term) {
			best = e.ranking.DescriptionBoost
		}
		if best > 0 {
			hits++
			score += best
		}
	}
	return score, hits >= engine.RequiredMatches(len(terms), e.ranking.MinimumShouldMatch)
}

func matchesFilters(d domain.IndexDocument, f domain.Filters) bool {
	switch {
	case f.MinBudget != nil && d.Budget < *f.MinBudget:
		return false
	case f.MaxBudget != nil && d.Budget > *f.MaxBudget:
		return false
	case f.MinRating != nil && d.Rating < *f.MinRating:
		return false
	case f.Type != "" && d.Type != f.Type:
		return false
	case f.Published != nil && d.Published != *f.Published:
		return false
	case f.UserID != "" && d.UserID != f.UserID:
		return false
	}
	return true
}

func buildFacets(hits []hit) *domain.Facets {
	typeCounts := make(map[string]int64)
	ranges := domain.BudgetRanges()
	budgetCounts := make([]int64, len(ranges))

	for _, h := range hits {
		if h.doc.Type != "" {
			typeCounts[h.doc.Type]++
		}
		for i, r := range ranges {
			if r.Contains(h.doc.Budget) {
				budgetCounts[i]++
				break
			}
		}
	}

	facets := &domain.Facets{
		Type:   make([]domain.FacetBucket, 0, len(typeCounts)),
		Budget: make([]domain.FacetBucket, 0, len(ranges)),
	}
	for k, v := range typeCounts {
		facets.Type = append(facets.Type, domain.FacetBucket{Key: k, Count: v})
	}
	// Terms buckets are ordered by count, then key, like the engine returns them.
	sort.Slice(facets.Type, func(i, j int) bool {
		if facets.Type[i].Count != facets.Type[j].Count {
			return facets.Type[i].Count > facets.Type[j].Count
		}
		return facets.Type[i].Key < facets.Type[j].Key
	})
	for i, r := range ranges {
		facets.Budget = append(facets.Budget, domain.FacetBucket{Key: r.Key, Count: budgetCounts[i]})
	}
	return facets
}

// less returns the ordering for q: the explicit sort if any, else the kind's
// default. The document id is always the final tie-breaker.
func less(q *domain.SearchQuery, hits []hit) func(i, j int) bool {
	return func(i, j int) bool {
		a, b := hits[i], hits[j]

		if len(q.Sort) > 0 {
			for _, s := range q.Sort {
				if c := compareField(a.doc, b.doc, s.Field); c != 0 {
					if s.Direction == domain.SortAsc {
						return c < 0
					}
					return c > 0
				}
			}
			return a.doc.ID < b.doc.ID
		}

		switch q.Kind {
		case domain.KindOwner:
		case domain.KindLocation:
			if a.distance != b.distance {
				return a.distance < b.distance
			}
			return a.doc.ID < b.doc.ID
		default:
			if a.score != b.score {
				return a.score > b.score
			}
		}
		if !a.doc.UpdatedAt.Equal(b.doc.UpdatedAt) {
			return a.doc.UpdatedAt.After(b.doc.UpdatedAt)
		}
		return a.doc.ID < b.doc.ID
	}
}

func compareField(a, b domain.IndexDocument, field string) int {
	cmpFloat := func(x, y float64) int {
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	}

	switch field {
	case domain.SortBudget:
		return cmpFloat(a.Budget, b.Budget)
	case domain.SortRating:
		return cmpFloat(a.Rating, b.Rating)
	case domain.SortLikeCount:
		return cmpFloat(float64(a.LikeCount), float64(b.LikeCount))
	case domain.SortCreatedAt:
		return a.CreatedAt.Compare(b.CreatedAt)
	case domain.SortUpdatedAt:
		return a.UpdatedAt.Compare(b.UpdatedAt)
	case domain.SortTitle:
		return strings.Compare(a.Title, b.Title)
	}
	return 0
}

func clone(d domain.IndexDocument) domain.IndexDocument {
	d.Suggestions = slices.Clone(d.Suggestions)
	if d.Suggestions == nil {
		d.Suggestions = []string{}
	}
	if d.Location != nil {
		loc := *d.Location
		d.Location = &loc
	}
	return d
}

// Suggest returns completions whose suggestion inputs start with prefix,
// ignoring case. Prefixes of three or more characters also match with one
// edit. Each document contributes its first matching input; exact matches
// sort before fuzzy ones.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix = strings.ToLower(strings.TrimSpace(prefix))
	if prefix == "" || limit <= 0 {
		return []string{}, nil
	}
	maxEdits := 0
	if len([]rune(prefix)) >= 3 {
		maxEdits = 1
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	type option struct {
		text  string
		exact bool
	}
	best := make(map[string]bool)
	for _, d := range e.docs {
		var fuzzy string
		found := false
		for _, s := range d.Suggestions {
			lower := strings.ToLower(s)
			if strings.HasPrefix(lower, prefix) {
				best[s] = true
				found = true
				break
			}
			if fuzzy == "" && maxEdits > 0 && fuzzyPrefix(lower, prefix, maxEdits) {
				fuzzy = s
			}
		}
		if !found && fuzzy != "" && !best[fuzzy] {
			best[fuzzy] = false
		}
	}

	options := make([]option, 0, len(best))
	for text, exact := range best {
		options = append(options, option{text: text, exact: exact})
	}
	sort.Slice(options, func(i, j int) bool {
		if options[i].exact != options[j].exact {
			return options[i].exact
		}
		return options[i].text < options[j].text
	})

	out := make([]string, 0, min(limit, len(options)))
	for _, o := range options[:min(limit, len(options))] {
		out = append(out, o.text)
	}
	return out, nil
}
