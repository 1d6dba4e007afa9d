package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/cache"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/history"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/recommend"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/pagination"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/tracing"
)

const (
	DefaultQueryTimeout = 5 * time.Second
	DefaultCacheTTL     = 30 * time.Second

	DefaultSuggestLimit = 10
	MaxSuggestLimit     = 20

	tracerName = "search-service"
)

// SuggestResult is the outcome of an autocomplete request.
type SuggestResult struct {
	Suggestions []string `json:"suggestions"`

	degraded bool
}

// Degraded reports whether the suggestions stand in for a failed engine call.
func (r SuggestResult) Degraded() bool { return r.degraded }

// SearchService implements the read-only query operations over the index.
// Engine failures never surface as errors: the caller gets an empty page
// flagged as degraded instead.
type SearchService struct {
	engine       engine.SearchEngine
	assembler    *ResultAssembler
	cache        cache.Cache
	history      history.Store
	reranker     recommend.Reranker
	ranking      domain.RankingConfig
	queryTimeout time.Duration
	cacheTTL     time.Duration
	logger       *slog.Logger
}

// Option configures a SearchService.
type Option func(*SearchService)

// WithCache enables result caching for keyword searches and suggestions.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *SearchService) {
		s.cache = c
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithHistory records keywords searched by identified callers.
func WithHistory(h history.Store) Option {
	return func(s *SearchService) { s.history = h }
}

// WithReranker reorders similarity candidates with a recommendation model.
func WithReranker(r recommend.Reranker) Option {
	return func(s *SearchService) { s.reranker = r }
}

// WithQueryTimeout bounds every engine call.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *SearchService) {
		if d > 0 {
			s.queryTimeout = d
		}
	}
}

// WithRanking sets the scoring constants; only the similarity candidate pool
// is read by the service itself.
func WithRanking(cfg domain.RankingConfig) Option {
	return func(s *SearchService) { s.ranking = cfg }
}

// NewSearchService creates a new search service.
func NewSearchService(eng engine.SearchEngine, logger *slog.Logger, opts ...Option) *SearchService {
	s := &SearchService{
		engine:       eng,
		assembler:    NewResultAssembler(logger),
		cache:        cache.Noop{},
		ranking:      domain.DefaultRankingConfig(),
		queryTimeout: DefaultQueryTimeout,
		cacheTTL:     DefaultCacheTTL,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SearchByKeyword runs a ranked full-text search. A non-nil caller has the
// keyword added to their recent-search history.
func (s *SearchService) SearchByKeyword(ctx context.Context, keyword string, page pagination.Params, caller *domain.Caller) (domain.SearchResultPage, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return domain.SearchResultPage{}, apperrors.InvalidInput("keyword is required")
	}

	if caller != nil && s.history != nil {
		if err := s.history.Record(ctx, caller.UserID, keyword); err != nil {
			s.log(ctx).WarnContext(ctx, "failed to record search history",
				slog.String("user_id", caller.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	const op = "keyword"
	key := cache.Key(op, keyword, page.Page, page.Size)
	var cached domain.SearchResultPage
	if s.cacheGet(ctx, op, key, &cached) {
		return cached, nil
	}

	result := s.run(ctx, op, page, &domain.SearchQuery{
		Kind:    domain.KindKeyword,
		Keyword: keyword,
		From:    page.Offset(),
		Size:    page.Size,
	})
	if !result.Degraded() {
		s.cacheSet(ctx, op, key, result)
	}
	return result, nil
}

// AdvancedSearch runs a filtered, faceted search. Without a keyword every
// document passing the filters matches.
func (s *SearchService) AdvancedSearch(ctx context.Context, params domain.AdvancedSearchParams) (domain.SearchResultPage, error) {
	if err := params.Validate(); err != nil {
		return domain.SearchResultPage{}, err
	}

	q := &domain.SearchQuery{
		Kind:    domain.KindAdvanced,
		Keyword: strings.TrimSpace(params.Keyword),
		Filters: domain.Filters{
			MinBudget: params.MinBudget,
			MaxBudget: params.MaxBudget,
			MinRating: params.MinRating,
			Type:      strings.TrimSpace(params.Type),
			Published: params.Published,
		},
		Facets: true,
		From:   params.Page.Offset(),
		Size:   params.Page.Size,
	}
	if params.SortBy != "" {
		dir := params.SortDirection
		if dir == "" {
			dir = domain.SortDesc
		}
		q.Sort = []domain.SortField{{Field: params.SortBy, Direction: dir}}
	}

	return s.run(ctx, "advanced", params.Page, q), nil
}

// FindByUserID lists a user's content, most recently modified first.
func (s *SearchService) FindByUserID(ctx context.Context, userID string, page pagination.Params) (domain.SearchResultPage, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.SearchResultPage{}, apperrors.InvalidInput("userId is required")
	}

	return s.run(ctx, "owner", page, &domain.SearchQuery{
		Kind:    domain.KindOwner,
		Filters: domain.Filters{UserID: userID},
		From:    page.Offset(),
		Size:    page.Size,
	}), nil
}

// GetSuggestions returns autocomplete completions for prefix. A blank prefix
// yields no suggestions without touching the engine.
func (s *SearchService) GetSuggestions(ctx context.Context, prefix string, limit int) SuggestResult {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return SuggestResult{Suggestions: []string{}}
	}
	limit = ClampSuggestLimit(limit)

	const op = "suggest"
	key := cache.Key(op, strings.ToLower(prefix), limit)
	var cached SuggestResult
	if s.cacheGet(ctx, op, key, &cached) {
		return cached
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "search."+op, attribute.Int("search.limit", limit))
	start := time.Now()

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	suggestions, err := s.engine.Suggest(qctx, prefix, limit)
	cancel()

	searchOperationDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
	tracing.EndSpan(span, err)

	if err != nil {
		s.assembler.Degraded(ctx, op, 0, limit, err)
		return SuggestResult{Suggestions: []string{}, degraded: true}
	}
	if suggestions == nil {
		suggestions = []string{}
	}

	result := SuggestResult{Suggestions: suggestions}
	s.cacheSet(ctx, op, key, result)
	return result
}

// ClampSuggestLimit maps a requested limit into [1, MaxSuggestLimit], using
// DefaultSuggestLimit when none was given.
func ClampSuggestLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSuggestLimit
	case limit > MaxSuggestLimit:
		return MaxSuggestLimit
	default:
		return limit
	}
}

// FindSimilarContent returns documents resembling the one with id. An id
// missing from the index yields an empty page.
//
// With a reranker configured only the top SimilarCandidatePool matches are
// reordered and paged, so TotalElements (and with it totalPages and hasNext)
// counts that pool, not every match. Pages past the pool are empty.
func (s *SearchService) FindSimilarContent(ctx context.Context, id string, page pagination.Params) (domain.SearchResultPage, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.SearchResultPage{}, apperrors.InvalidInput("id is required")
	}

	const op = "similar"
	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	ref, err := s.engine.Get(qctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return domain.EmptyPage(page.Page, page.Size), nil
		}
		return s.assembler.Degraded(ctx, op, page.Page, page.Size, err), nil
	}

	if s.reranker == nil {
		return s.run(ctx, op, page, &domain.SearchQuery{
			Kind:   domain.KindSimilar,
			LikeID: id,
			From:   page.Offset(),
			Size:   page.Size,
		}), nil
	}

	// The model reorders a fixed candidate pool; paging happens over the
	// reordered pool.
	pool := s.run(ctx, op, pagination.Params{Page: 0, Size: s.ranking.SimilarCandidatePool}, &domain.SearchQuery{
		Kind:   domain.KindSimilar,
		LikeID: id,
		Size:   s.ranking.SimilarCandidatePool,
	})
	if pool.Degraded() {
		pool.Page, pool.Size = page.Page, page.Size
		return pool, nil
	}

	candidates := pool.Items
	ranked, err := s.reranker.Rerank(ctx, ref, candidates)
	if err != nil {
		s.log(ctx).WarnContext(ctx, "recommendation model failed, keeping similarity order",
			slog.String("content_id", id),
			slog.String("error", err.Error()),
		)
		ranked = candidates
	}

	from, to := len(ranked), len(ranked)
	if page.Page >= 0 && page.Size > 0 && page.Page <= len(ranked)/page.Size {
		from = page.Offset()
		to = min(from+page.Size, len(ranked))
	}
	return s.assembler.Assemble(&domain.SearchHits{
		Documents: ranked[from:to],
		Total:     int64(len(ranked)),
	}, page.Page, page.Size), nil
}

// FindTrendingContent ranks published content by likes and freshness.
func (s *SearchService) FindTrendingContent(ctx context.Context, page pagination.Params) (domain.SearchResultPage, error) {
	return s.run(ctx, "trending", page, &domain.SearchQuery{
		Kind: domain.KindTrending,
		From: page.Offset(),
		Size: page.Size,
	}), nil
}

// SearchByLocation returns content within the radius, nearest first.
func (s *SearchService) SearchByLocation(ctx context.Context, params domain.LocationSearchParams) (domain.SearchResultPage, error) {
	if err := params.Validate(); err != nil {
		return domain.SearchResultPage{}, err
	}

	return s.run(ctx, "location", params.Page, &domain.SearchQuery{
		Kind:    domain.KindLocation,
		Keyword: strings.TrimSpace(params.Keyword),
		Filters: domain.Filters{Published: params.Published},
		Geo: &domain.GeoFilter{
			Center:   domain.GeoPoint{Lat: params.Lat, Lon: params.Lon},
			RadiusKm: params.RadiusKm,
		},
		From: params.Page.Offset(),
		Size: params.Page.Size,
	}), nil
}

// RecentSearches returns the caller's most recent keywords, newest first.
func (s *SearchService) RecentSearches(ctx context.Context, caller domain.Caller, limit int) ([]string, error) {
	if s.history == nil {
		return []string{}, nil
	}
	keywords, err := s.history.Recent(ctx, caller.UserID, limit)
	if err != nil {
		return nil, apperrors.Unavailable("search history", err)
	}
	return keywords, nil
}

// run executes q under the query timeout and assembles the page, degrading
// on any engine failure.
func (s *SearchService) run(ctx context.Context, op string, page pagination.Params, q *domain.SearchQuery) domain.SearchResultPage {
	ctx, span := tracing.StartSpan(ctx, tracerName, "search."+op,
		attribute.String("search.kind", string(q.Kind)),
		attribute.Int("search.from", q.From),
		attribute.Int("search.size", q.Size),
	)
	start := time.Now()

	qctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	hits, err := s.engine.Search(qctx, q)
	cancel()

	searchOperationDuration.WithLabelValues(op, outcome(err)).Observe(time.Since(start).Seconds())
	if err == nil {
		span.SetAttributes(attribute.Int64("search.total", hits.Total))
	}
	tracing.EndSpan(span, err)

	if err != nil {
		return s.assembler.Degraded(ctx, op, page.Page, page.Size, err)
	}
	return s.assembler.Assemble(hits, page.Page, page.Size)
}

func (s *SearchService) cacheGet(ctx context.Context, op, key string, dst any) bool {
	found, err := s.cache.Get(ctx, key, dst)
	switch {
	case err != nil:
		cacheRequests.WithLabelValues(op, "error").Inc()
		s.log(ctx).WarnContext(ctx, "query cache read failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
		return false
	case found:
		cacheRequests.WithLabelValues(op, "hit").Inc()
		return true
	default:
		cacheRequests.WithLabelValues(op, "miss").Inc()
		return false
	}
}

func (s *SearchService) cacheSet(ctx context.Context, op, key string, v any) {
	if err := s.cache.Set(ctx, key, v, s.cacheTTL); err != nil {
		s.log(ctx).WarnContext(ctx, "query cache write failed",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}

func (s *SearchService) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}
