package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/httpclient"
)

const contentsPath = "/api/v1/contents"

// HTTPSource reads content from the content service's REST API through a
// circuit breaker.
type HTTPSource struct {
	client  *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

var _ ContentSource = (*HTTPSource)(nil)

type recordResponse struct {
	Data domain.ContentRecord `json:"data"`
}

type listResponse struct {
	Data struct {
		Items      []domain.ContentRecord `json:"items"`
		TotalPages int                    `json:"totalPages"`
	} `json:"data"`
}

// NewHTTPSource creates a source for the content service at baseURL.
func NewHTTPSource(client *httpclient.CircuitBreakerClient, baseURL string, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// Get fetches one record by id. A 404 from the service maps to not-found.
func (s *HTTPSource) Get(ctx context.Context, id string) (*domain.ContentRecord, error) {
	var resp recordResponse
	if err := s.client.GetJSON(ctx, s.baseURL+contentsPath+"/"+url.PathEscape(id), &resp); err != nil {
		return nil, fmt.Errorf("get content %s: %w", id, err)
	}
	return &resp.Data, nil
}

// List fetches one page of records.
func (s *HTTPSource) List(ctx context.Context, page, size int) (*Page, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))

	var resp listResponse
	if err := s.client.GetJSON(ctx, s.baseURL+contentsPath+"?"+q.Encode(), &resp); err != nil {
		return nil, fmt.Errorf("list contents page %d: %w", page, err)
	}

	s.logger.DebugContext(ctx, "fetched content page",
		slog.Int("page", page),
		slog.Int("count", len(resp.Data.Items)),
		slog.Int("total_pages", resp.Data.TotalPages),
	)
	return &Page{Records: resp.Data.Items, TotalPages: resp.Data.TotalPages}, nil
}
