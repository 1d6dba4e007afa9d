package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/service"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/httputil"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/middleware"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/pagination"
)

// HeaderDegraded marks a response served without the search engine.
const HeaderDegraded = "X-Search-Degraded"

// SearchHandler handles HTTP requests for the query endpoints.
type SearchHandler struct {
	service *service.SearchService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.SearchService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v1/search. An identified caller has the keyword
// added to their recent searches.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	var caller *domain.Caller
	if id, ok := middleware.IdentityFromContext(r.Context()); ok {
		caller = &domain.Caller{UserID: id.UserID, Role: id.Role}
	}

	result, err := h.service.SearchByKeyword(r.Context(), r.URL.Query().Get("keyword"), page, caller)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// SearchPublic handles GET /api/v1/search/public
func (h *SearchHandler) SearchPublic(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.SearchByKeyword(r.Context(), r.URL.Query().Get("keyword"), page, nil)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// Advanced handles GET /api/v1/search/advanced
func (h *SearchHandler) Advanced(w http.ResponseWriter, r *http.Request) {
	params, err := advancedParams(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.AdvancedSearch(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

func advancedParams(r *http.Request) (domain.AdvancedSearchParams, error) {
	q := r.URL.Query()
	p := domain.AdvancedSearchParams{
		Keyword:       q.Get("keyword"),
		Type:          q.Get("type"),
		SortBy:        q.Get("sortBy"),
		SortDirection: strings.ToLower(q.Get("sortDirection")),
	}

	var err error
	if p.MinBudget, err = httputil.QueryFloat(r, "minBudget"); err != nil {
		return p, err
	}
	if p.MaxBudget, err = httputil.QueryFloat(r, "maxBudget"); err != nil {
		return p, err
	}
	if p.MinRating, err = httputil.QueryFloat(r, "minRating"); err != nil {
		return p, err
	}
	if p.Published, err = httputil.QueryBool(r, "isPublished"); err != nil {
		return p, err
	}
	p.Page, err = pagination.FromRequest(r)
	return p, err
}

// MyContent handles GET /api/v1/search/my-content
func (h *SearchHandler) MyContent(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.IdentityFromContext(r.Context())
	h.listOwner(w, r, id.UserID)
}

// ByUser handles GET /api/v1/search/users/{userId}
func (h *SearchHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	h.listOwner(w, r, chi.URLParam(r, "userId"))
}

func (h *SearchHandler) listOwner(w http.ResponseWriter, r *http.Request, userID string) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.FindByUserID(r.Context(), userID, page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// Suggest handles GET /api/v1/search/suggest
func (h *SearchHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.QueryInt(r, "limit", service.DefaultSuggestLimit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result := h.service.GetSuggestions(r.Context(), r.URL.Query().Get("prefix"), limit)
	if result.Degraded() {
		w.Header().Set(HeaderDegraded, "true")
	}
	httputil.WriteData(w, http.StatusOK, result)
}

// Similar handles GET /api/v1/search/similar/{id}
func (h *SearchHandler) Similar(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.FindSimilarContent(r.Context(), chi.URLParam(r, "id"), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// Trending handles GET /api/v1/search/trending
func (h *SearchHandler) Trending(w http.ResponseWriter, r *http.Request) {
	page, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.FindTrendingContent(r.Context(), page)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

// Location handles GET /api/v1/search/location
func (h *SearchHandler) Location(w http.ResponseWriter, r *http.Request) {
	params, err := locationParams(r)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	result, err := h.service.SearchByLocation(r.Context(), params)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	writePage(w, result)
}

func locationParams(r *http.Request) (domain.LocationSearchParams, error) {
	p := domain.LocationSearchParams{Keyword: r.URL.Query().Get("keyword")}

	var err error
	if p.Lat, err = httputil.RequiredFloat(r, "lat"); err != nil {
		return p, err
	}
	if p.Lon, err = httputil.RequiredFloat(r, "lon"); err != nil {
		return p, err
	}
	if p.RadiusKm, err = httputil.RequiredFloat(r, "distanceKm"); err != nil {
		return p, err
	}
	if p.Published, err = httputil.QueryBool(r, "isPublished"); err != nil {
		return p, err
	}
	p.Page, err = pagination.FromRequest(r)
	return p, err
}

// Recent handles GET /api/v1/search/recent
func (h *SearchHandler) Recent(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("caller identity is required"), h.logger)
		return
	}
	limit, err := httputil.QueryInt(r, "limit", 10)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	keywords, err := h.service.RecentSearches(r.Context(), domain.Caller{UserID: id.UserID, Role: id.Role}, limit)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, map[string]any{"keywords": keywords})
}

// writePage writes a result page, flagging degraded ones so clients and
// caches can tell them apart from a real empty result.
func writePage(w http.ResponseWriter, page domain.SearchResultPage) {
	if page.Degraded() {
		w.Header().Set(HeaderDegraded, "true")
	}
	httputil.WriteData(w, http.StatusOK, page)
}
