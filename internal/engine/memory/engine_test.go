package memory

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
)

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

func newTestEngine() *Engine {
	return New(WithClock(func() time.Time { return testNow }))
}

func daysAgo(d int) time.Time { return testNow.Add(-time.Duration(d) * 24 * time.Hour) }

func newTestDoc(id, title, description string) domain.IndexDocument {
	return domain.NewIndexDocument(domain.ContentRecord{
		ID:          id,
		Title:       title,
		Description: description,
		Rating:      4,
		Published:   true,
		Type:        "tour",
		UserID:      "u1",
		CreatedAt:   daysAgo(100),
		UpdatedAt:   daysAgo(100),
	})
}

func index(t *testing.T, eng *Engine, docs ...domain.IndexDocument) {
	t.Helper()
	for i := range docs {
		require.NoError(t, eng.Upsert(context.Background(), &docs[i]))
	}
}

func ids(docs []domain.IndexDocument) []string {
	out := make([]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.ID)
	}
	return out
}

func keyword(q string) *domain.SearchQuery {
	return &domain.SearchQuery{Kind: domain.KindKeyword, Keyword: q, Size: 10}
}

func TestEngine_UpsertIsIdempotent(t *testing.T) {
	eng := newTestEngine()
	doc := newTestDoc("c1", "Tokyo Adventure", "Ten days in Japan")

	index(t, eng, doc)
	first, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)

	index(t, eng, doc)
	second, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, eng.Count())
	assert.Equal(t, first, second)
}

func TestEngine_UpsertReplacesWholeDocument(t *testing.T) {
	eng := newTestEngine()
	index(t, eng, newTestDoc("c1", "Tokyo Adventure", "old description"))

	updated := newTestDoc("c1", "Kyoto Temples", "")
	index(t, eng, updated)

	got, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Kyoto Temples", got.Title)
	assert.Empty(t, got.Description)
	assert.NotContains(t, got.Suggestions, "Tokyo")
}

func TestEngine_DeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	index(t, eng, newTestDoc("c1", "Tokyo Adventure", ""))

	require.NoError(t, eng.Delete(ctx, "c1"))
	require.NoError(t, eng.Delete(ctx, "c1"))
	require.NoError(t, eng.Delete(ctx, "never-indexed"))

	_, err := eng.Get(ctx, "c1")
	assert.True(t, apperrors.IsNotFound(err))
	assert.Equal(t, 0, eng.Count())
}

func TestEngine_GetReturnsCopy(t *testing.T) {
	eng := newTestEngine()
	index(t, eng, newTestDoc("c1", "Tokyo Adventure", ""))

	got, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)
	got.Suggestions[0] = "mutated"

	again, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo Adventure", again.Suggestions[0])
}

func TestEngine_BulkUpsertReportsMissingIDs(t *testing.T) {
	eng := newTestEngine()

	res, err := eng.BulkUpsert(context.Background(), []domain.IndexDocument{
		newTestDoc("a", "Alps", ""),
		{Title: "no id"},
		newTestDoc("b", "Bali", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Len(t, res.Failures, 1)
	assert.Equal(t, 2, eng.Count())
}

func TestEngine_DeleteAll(t *testing.T) {
	eng := newTestEngine()
	index(t, eng, newTestDoc("a", "Alps", ""), newTestDoc("b", "Bali", ""))

	require.NoError(t, eng.DeleteAll(context.Background()))
	assert.Equal(t, 0, eng.Count())
}

func TestEngine_Keyword_MatchesTitleAndDescriptionCaseInsensitive(t *testing.T) {
	eng := newTestEngine()
	index(t, eng,
		newTestDoc("a", "TOKYO Adventure", ""),
		newTestDoc("b", "Japan Rail", "Start in tokyo, end in Osaka"),
		newTestDoc("c", "Paris Walking Tour", "Montmartre and the Seine"),
	)

	hits, err := eng.Search(context.Background(), keyword("tokyo"))
	require.NoError(t, err)

	assert.Equal(t, int64(2), hits.Total)
	assert.Equal(t, []string{"a", "b"}, ids(hits.Documents), "title matches outrank description matches")
}

func TestEngine_Keyword_TypoTolerance(t *testing.T) {
	eng := newTestEngine()
	index(t, eng, newTestDoc("a", "Barcelona Food Tour", ""))

	for _, q := range []string{"barcelnoa", "barcelon", "tokio"} {
		hits, err := eng.Search(context.Background(), keyword(q))
		require.NoError(t, err)
		if q == "tokio" {
			assert.Zero(t, hits.Total, q)
			continue
		}
		assert.Equal(t, int64(1), hits.Total, q)
	}

	// Two-letter terms must match exactly.
	index(t, eng, newTestDoc("b", "NY nights", ""))
	hits, err := eng.Search(context.Background(), keyword("nx"))
	require.NoError(t, err)
	assert.Zero(t, hits.Total)
}

func TestEngine_Keyword_MinimumShouldMatch(t *testing.T) {
	eng := newTestEngine()
	index(t, eng,
		newTestDoc("a", "Rome food walking tour", ""),
		newTestDoc("b", "Rome museums", ""),
	)

	// Four terms: at least two must match.
	hits, err := eng.Search(context.Background(), keyword("rome food lisbon porto"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(hits.Documents))
}

func TestEngine_Keyword_PopularityAndRecencyBoosts(t *testing.T) {
	eng := newTestEngine()
	lowRated := newTestDoc("a", "Lisbon Trams", "")
	lowRated.Rating = 1
	highRated := newTestDoc("b", "Lisbon Tiles", "")
	highRated.Rating = 5
	index(t, eng, lowRated, highRated)

	hits, err := eng.Search(context.Background(), keyword("lisbon"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(hits.Documents))

	// With equal ratings the recent edit decides.
	lowRated.Rating = 5
	lowRated.UpdatedAt = daysAgo(3)
	index(t, eng, lowRated)

	hits, err = eng.Search(context.Background(), keyword("lisbon"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(hits.Documents))
}

func TestEngine_Keyword_TieBreakers(t *testing.T) {
	eng := newTestEngine()
	older := newTestDoc("b", "Oslo Fjords", "")
	newer := newTestDoc("c", "Oslo Fjords", "")
	newer.UpdatedAt = daysAgo(90)
	sameAsOlder := newTestDoc("a", "Oslo Fjords", "")
	index(t, eng, older, newer, sameAsOlder)

	hits, err := eng.Search(context.Background(), keyword("oslo"))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, ids(hits.Documents))
}

func TestEngine_Pagination(t *testing.T) {
	eng := newTestEngine()
	for i := 0; i < 25; i++ {
		index(t, eng, newTestDoc(fmt.Sprintf("d%02d", i), "Seville Tapas", ""))
	}

	q := keyword("seville")
	q.From, q.Size = 20, 10
	hits, err := eng.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, int64(25), hits.Total)
	assert.Equal(t, []string{"d20", "d21", "d22", "d23", "d24"}, ids(hits.Documents))

	q.From = 40
	hits, err = eng.Search(context.Background(), q)
	require.NoError(t, err)
	assert.Empty(t, hits.Documents)
	assert.NotNil(t, hits.Documents)
}

func TestEngine_Advanced_FiltersAndFacets(t *testing.T) {
	eng := newTestEngine()
	budgets := map[string]float64{"a": 50, "b": 100, "c": 499, "d": 750, "e": 1000, "f": 5000}
	for id, b := range budgets {
		d := newTestDoc(id, "Trip "+id, "")
		d.Budget = b
		if b >= 1000 {
			d.Type = "luxury"
		}
		index(t, eng, d)
	}
	unpublished := newTestDoc("g", "Draft", "")
	unpublished.Published = false
	index(t, eng, unpublished)

	published := true
	minBudget, maxBudget := 100.0, 1000.0
	hits, err := eng.Search(context.Background(), &domain.SearchQuery{
		Kind: domain.KindAdvanced,
		Filters: domain.Filters{
			MinBudget: &minBudget,
			MaxBudget: &maxBudget,
			Published: &published,
		},
		Sort:   []domain.SortField{{Field: domain.SortBudget, Direction: domain.SortAsc}},
		Facets: true,
		Size:   10,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c", "d", "e"}, ids(hits.Documents))
	require.NotNil(t, hits.Facets)
	assert.Equal(t, []domain.FacetBucket{
		{Key: "0-100", Count: 0},
		{Key: "100-500", Count: 2},
		{Key: "500-1000", Count: 1},
		{Key: "1000+", Count: 1},
	}, hits.Facets.Budget)
	assert.Equal(t, []domain.FacetBucket{{Key: "tour", Count: 3}, {Key: "luxury", Count: 1}}, hits.Facets.Type)
}

func TestEngine_Advanced_TypeAndRatingFilters(t *testing.T) {
	eng := newTestEngine()
	a := newTestDoc("a", "Hike", "")
	a.Type, a.Rating = "outdoor", 4.5
	b := newTestDoc("b", "Hike", "")
	b.Type, b.Rating = "outdoor", 2
	c := newTestDoc("c", "Hike", "")
	c.Type, c.Rating = "city", 5
	index(t, eng, a, b, c)

	minRating := 3.0
	hits, err := eng.Search(context.Background(), &domain.SearchQuery{
		Kind:    domain.KindAdvanced,
		Filters: domain.Filters{Type: "outdoor", MinRating: &minRating},
		Size:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(hits.Documents))
}

func TestEngine_Owner_SortedByUpdatedDesc(t *testing.T) {
	eng := newTestEngine()
	a := newTestDoc("a", "One", "")
	a.UpdatedAt = daysAgo(10)
	b := newTestDoc("b", "Two", "")
	b.UpdatedAt = daysAgo(1)
	other := newTestDoc("c", "Three", "")
	other.UserID = "u2"
	index(t, eng, a, b, other)

	hits, err := eng.Search(context.Background(), &domain.SearchQuery{
		Kind:    domain.KindOwner,
		Filters: domain.Filters{UserID: "u1"},
		Size:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, ids(hits.Documents))
}

func TestEngine_Similar(t *testing.T) {
	eng := newTestEngine()
	index(t, eng,
		newTestDoc("ref", "Kyoto temple walk", "Zen gardens and tea"),
		newTestDoc("close", "Kyoto temple tour", "Zen gardens and tea ceremony"),
		newTestDoc("far", "Berlin nightlife", "Techno clubs"),
	)

	hits, err := eng.Search(context.Background(), &domain.SearchQuery{Kind: domain.KindSimilar, LikeID: "ref", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"close"}, ids(hits.Documents))

	hits, err = eng.Search(context.Background(), &domain.SearchQuery{Kind: domain.KindSimilar, LikeID: "missing", Size: 10})
	require.NoError(t, err)
	assert.Empty(t, hits.Documents)
	assert.Zero(t, hits.Total)
}

func TestEngine_Similar_CapsReferenceTerms(t *testing.T) {
	words := func(from, to int) string {
		var b strings.Builder
		for i := from; i < to; i++ {
			fmt.Fprintf(&b, "w%02d ", i)
		}
		return b.String()
	}

	eng := newTestEngine()
	index(t, eng,
		newTestDoc("ref", "Kyoto temple", words(0, 40)),
		newTestDoc("match", "Kyoto temple", words(0, 16)),
		newTestDoc("miss", "Berlin", words(30, 40)),
	)

	hits, err := eng.Search(context.Background(), &domain.SearchQuery{Kind: domain.KindSimilar, LikeID: "ref", Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"match"}, ids(hits.Documents))
}

func TestMLTTerms_MostFrequentFirst(t *testing.T) {
	doc := newTestDoc("ref", "Temple temple", "temple garden garden")
	assert.Equal(t, []string{"temple", "garden", "tour"}, mltTerms(doc))

	var long strings.Builder
	for i := 0; i < 60; i++ {
		fmt.Fprintf(&long, "t%02d ", i)
	}
	terms := mltTerms(newTestDoc("long", "", long.String()))
	require.Len(t, terms, engine.MLTMaxQueryTerms)
	assert.Equal(t, "t00", terms[0])
	assert.Equal(t, "t24", terms[len(terms)-1])
}

func TestEngine_Trending_RecentBeatsOld(t *testing.T) {
	eng := newTestEngine()
	recent := newTestDoc("a", "Same", "")
	recent.LikeCount, recent.UpdatedAt = 10, daysAgo(2)
	old := newTestDoc("b", "Same", "")
	old.LikeCount, old.UpdatedAt = 10, daysAgo(60)
	hidden := newTestDoc("c", "Same", "")
	hidden.LikeCount, hidden.UpdatedAt, hidden.Published = 1000, daysAgo(1), false
	index(t, eng, old, recent, hidden)

	hits, err := eng.Search(context.Background(), &domain.SearchQuery{Kind: domain.KindTrending, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(hits.Documents))
}

func TestEngine_Location_OrdersByDistance(t *testing.T) {
	eng := newTestEngine()
	center := domain.GeoPoint{Lat: 48.8566, Lon: 2.3522}
	kmPerDegree := earthRadiusKm * math.Pi / 180

	at := func(id string, km float64) domain.IndexDocument {
		d := newTestDoc(id, "Spot "+id, "")
		d.Location = &domain.GeoPoint{Lat: center.Lat + km/kmPerDegree, Lon: center.Lon}
		return d
	}
	noLocation := newTestDoc("x", "Nowhere", "")
	index(t, eng, at("twenty", 20), at("five", 5), at("one", 1), noLocation)

	hits, err := eng.Search(context.Background(), &domain.SearchQuery{
		Kind: domain.KindLocation,
		Geo:  &domain.GeoFilter{Center: center, RadiusKm: 10},
		Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "five"}, ids(hits.Documents))
	assert.Equal(t, int64(2), hits.Total)
}

func TestEngine_Location_KeywordDoesNotReorder(t *testing.T) {
	eng := newTestEngine()
	center := domain.GeoPoint{Lat: 0, Lon: 0}
	near := newTestDoc("near", "Cafe", "great coffee")
	near.Location = &domain.GeoPoint{Lat: 0.01, Lon: 0}
	far := newTestDoc("far", "Coffee Coffee", "")
	far.Location = &domain.GeoPoint{Lat: 0.05, Lon: 0}
	index(t, eng, far, near)

	hits, err := eng.Search(context.Background(), &domain.SearchQuery{
		Kind:    domain.KindLocation,
		Keyword: "coffee",
		Geo:     &domain.GeoFilter{Center: center, RadiusKm: 50},
		Size:    10,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "far"}, ids(hits.Documents))
}

func TestEngine_Suggest(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine()
	index(t, eng,
		newTestDoc("a", "Paris Walking Tour", ""),
		newTestDoc("b", "Parma Ham Tasting", ""),
		newTestDoc("c", "Lisbon by Tram", ""),
	)

	got, err := eng.Suggest(ctx, "PAR", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Paris Walking Tour", "Parma Ham Tasting"}, got)

	got, err = eng.Suggest(ctx, "walk", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Walking"}, got)

	got, err = eng.Suggest(ctx, "lisb", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	// One edit is tolerated from three characters on, but the first
	// character must match.
	got, err = eng.Suggest(ctx, "xisbon", 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = eng.Suggest(ctx, "lisobn", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lisbon by Tram"}, got)

	got, err = eng.Suggest(ctx, "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEngine_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine().Search(ctx, keyword("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLevenshtein(t *testing.T) {
	assert.Equal(t, 0, levenshtein([]rune("tokyo"), []rune("tokyo")))
	assert.Equal(t, 1, levenshtein([]rune("tokyo"), []rune("tokio")))
	assert.Equal(t, 1, levenshtein([]rune("lisbon"), []rune("lisobn")))
	assert.Equal(t, 3, levenshtein([]rune(""), []rune("abc")))
	assert.Equal(t, 2, levenshtein([]rune("barcelona"), []rune("barcelnoaa")))
}
