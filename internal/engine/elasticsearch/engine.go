package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.opentelemetry.io/otel"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
)

// Config holds the connection settings for the Elasticsearch engine.
type Config struct {
	Addresses []string
	Username  string
	Password  string
	IndexName string
	// MaxRetries bounds transport-level retries per request.
	MaxRetries int
	// Refresh is passed to write requests: "true", "false" or "wait_for".
	Refresh string
}

// Engine is an Elasticsearch-backed implementation of the SearchEngine interface.
type Engine struct {
	client    *elasticsearch.Client
	indexName string
	refresh   string
	queries   *QueryBuilder
	logger    *slog.Logger
}

var _ engine.SearchEngine = (*Engine)(nil)

// esSearchResponse is the structure used to decode Elasticsearch search responses.
type esSearchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source domain.IndexDocument `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Type   esBuckets `json:"type"`
		Budget esBuckets `json:"budget"`
	} `json:"aggregations"`
}

type esBuckets struct {
	Buckets []struct {
		Key      interface{} `json:"key"`
		DocCount int64       `json:"doc_count"`
	} `json:"buckets"`
}

type esSuggestResponse struct {
	Suggest map[string][]struct {
		Options []struct {
			Text string `json:"text"`
		} `json:"options"`
	} `json:"suggest"`
}

type esGetResponse struct {
	Found  bool                 `json:"found"`
	Source domain.IndexDocument `json:"_source"`
}

// esBulkResponse is the structure used to decode Elasticsearch bulk responses.
type esBulkResponse struct {
	Errors bool `json:"errors"`
	Items  []struct {
		Index struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"index"`
	} `json:"items"`
}

// esErrorResponse is used to decode Elasticsearch error responses.
type esErrorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// New creates an Elasticsearch engine. It does not touch the index; call
// EnsureSchema at startup.
func New(cfg Config, ranking domain.RankingConfig, logger *slog.Logger) (*Engine, error) {
	if cfg.IndexName == "" {
		cfg.IndexName = DefaultIndexName
	}
	if cfg.Refresh == "" {
		cfg.Refresh = "false"
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:       cfg.Addresses,
		Username:        cfg.Username,
		Password:        cfg.Password,
		MaxRetries:      cfg.MaxRetries,
		DisableRetry:    cfg.MaxRetries <= 0,
		RetryOnStatus:   []int{http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout},
		Instrumentation: elasticsearch.NewOpenTelemetryInstrumentation(otel.GetTracerProvider(), false),
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}

	return &Engine{
		client:    client,
		indexName: cfg.IndexName,
		refresh:   cfg.Refresh,
		queries:   NewQueryBuilder(ranking, cfg.IndexName),
		logger:    logger,
	}, nil
}

// Ping checks whether the Elasticsearch cluster is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	res, err := e.client.Ping(e.client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping: unexpected status %s", res.Status())
	}
	return nil
}

// EnsureSchema creates the index with its mapping, or puts the current
// mapping on an existing index so newly added fields are mapped.
func (e *Engine) EnsureSchema(ctx context.Context) error {
	res, err := e.client.Indices.Exists([]string{e.indexName}, e.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ensure schema: check index: %w", err)
	}
	closeBody(res)

	if res.StatusCode == http.StatusOK {
		res, err = e.client.Indices.PutMapping(
			[]string{e.indexName},
			strings.NewReader(indexProperties()),
			e.client.Indices.PutMapping.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("elasticsearch put mapping: %w", err)
		}
		defer closeBody(res)
		if res.IsError() {
			return decodeError("elasticsearch put mapping", res)
		}
		e.logger.InfoContext(ctx, "elasticsearch mapping updated", slog.String("index", e.indexName))
		return nil
	}

	res, err = e.client.Indices.Create(
		e.indexName,
		e.client.Indices.Create.WithBody(strings.NewReader(buildIndexMapping())),
		e.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch create index: %w", err)
	}
	defer closeBody(res)
	if res.IsError() {
		return decodeError("elasticsearch create index", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index created", slog.String("index", e.indexName))
	return nil
}

// Upsert indexes doc under its id, replacing any previous version.
func (e *Engine) Upsert(ctx context.Context, doc *domain.IndexDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: marshal document: %w", err)
	}

	res, err := e.client.Index(
		e.indexName,
		bytes.NewReader(data),
		e.client.Index.WithDocumentID(doc.ID),
		e.client.Index.WithRefresh(e.refresh),
		e.client.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch upsert: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return decodeError("elasticsearch upsert", res)
	}

	e.logger.DebugContext(ctx, "indexed content", slog.String("content_id", doc.ID))
	return nil
}

// Delete removes a document by id. A missing document is not an error.
func (e *Engine) Delete(ctx context.Context, id string) error {
	res, err := e.client.Delete(
		e.indexName,
		id,
		e.client.Delete.WithRefresh(e.refresh),
		e.client.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return decodeError("elasticsearch delete", res)
	}

	e.logger.DebugContext(ctx, "deleted content", slog.String("content_id", id))
	return nil
}

// DeleteAll removes every document from the index, keeping its mapping.
func (e *Engine) DeleteAll(ctx context.Context) error {
	body := `{"query":{"match_all":{}}}`
	res, err := e.client.DeleteByQuery(
		[]string{e.indexName},
		strings.NewReader(body),
		e.client.DeleteByQuery.WithConflicts("proceed"),
		e.client.DeleteByQuery.WithRefresh(true),
		e.client.DeleteByQuery.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete all: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return decodeError("elasticsearch delete all", res)
	}

	e.logger.InfoContext(ctx, "elasticsearch index emptied", slog.String("index", e.indexName))
	return nil
}

// DeleteIndex removes the entire Elasticsearch index. A 404 response is
// treated as success.
func (e *Engine) DeleteIndex(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		[]string{e.indexName},
		e.client.Indices.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch delete index: %w", err)
	}
	defer closeBody(res)

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return decodeError("elasticsearch delete index", res)
	}
	return nil
}

// Get fetches one document by id.
func (e *Engine) Get(ctx context.Context, id string) (*domain.IndexDocument, error) {
	res, err := e.client.Get(e.indexName, id, e.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("elasticsearch get: %w", err)
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NotFound("content", id)
	}
	if res.IsError() {
		return nil, decodeError("elasticsearch get", res)
	}

	var esResp esGetResponse
	if err := json.NewDecoder(res.Body).Decode(&esResp); err != nil {
		return nil, fmt.Errorf("elasticsearch get: decode response: %w", err)
	}
	if !esResp.Found {
		return nil, apperrors.NotFound("content", id)
	}
	doc := esResp.Source
	if doc.Suggestions == nil {
		doc.Suggestions = []string{}
	}
	return &doc, nil
}

// BulkUpsert indexes docs with the bulk NDJSON API, collecting per-item
// failures.
func (e *Engine) BulkUpsert(ctx context.Context, docs []domain.IndexDocument) (*domain.BulkResult, error) {
	result := &domain.BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := range docs {
		action := map[string]interface{}{
			"index": map[string]interface{}{"_index": e.indexName, "_id": docs[i].ID},
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk upsert: encode action: %w", err)
		}
		if err := enc.Encode(docs[i]); err != nil {
			return nil, fmt.Errorf("elasticsearch bulk upsert: encode document: %w", err)
		}
	}

	res, err := e.client.Bulk(
		bytes.NewReader(buf.Bytes()),
		e.client.Bulk.WithIndex(e.indexName),
		e.client.Bulk.WithRefresh(e.refresh),
		e.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch bulk upsert: %w", err)
	}
	defer closeBody(res)

	if res.IsError() {
		return nil, decodeError("elasticsearch bulk upsert", res)
	}

	var bulkResp esBulkResponse
	if err := json.NewDecoder(res.Body).Decode(&bulkResp); err != nil {
		return nil, fmt.Errorf("elasticsearch bulk upsert: decode response: %w", err)
	}

	for _, item := range bulkResp.Items {
		if item.Index.Error.Type != "" || item.Index.Status >= http.StatusBadRequest {
			result.Failures = append(result.Failures, domain.BulkFailure{
				ID:     item.Index.ID,
				Reason: item.Index.Error.Type + ": " + item.Index.Error.Reason,
			})
			continue
		}
		result.Succeeded++
	}

	e.logger.InfoContext(ctx, "bulk indexed content",
		slog.Int("count", len(docs)),
		slog.Int("failed", len(result.Failures)),
	)
	return result, nil
}

// Search executes q and decodes hits and facets.
func (e *Engine) Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchHits, error) {
	start := time.Now()

	var esResp esSearchResponse
	if err := e.search(ctx, e.queries.Build(q), &esResp); err != nil {
		// More-like-this on an id missing from the index answers with no hits;
		// an absent index is reported the same way.
		if q.Kind == domain.KindSimilar && errors.Is(err, apperrors.ErrNotFound) {
			return &domain.SearchHits{Documents: []domain.IndexDocument{}}, nil
		}
		return nil, err
	}

	hits := &domain.SearchHits{
		Documents: make([]domain.IndexDocument, 0, len(esResp.Hits.Hits)),
		Total:     esResp.Hits.Total.Value,
	}
	for _, h := range esResp.Hits.Hits {
		doc := h.Source
		if doc.Suggestions == nil {
			doc.Suggestions = []string{}
		}
		hits.Documents = append(hits.Documents, doc)
	}

	if q.Facets {
		hits.Facets = &domain.Facets{
			Type:   toBuckets(esResp.Aggregations.Type),
			Budget: toBuckets(esResp.Aggregations.Budget),
		}
	}

	e.logger.DebugContext(ctx, "search executed",
		slog.String("kind", string(q.Kind)),
		slog.Int64("total", hits.Total),
		slog.Duration("took", time.Since(start)),
	)
	return hits, nil
}

// Suggest runs a completion suggester on the suggestions field.
func (e *Engine) Suggest(ctx context.Context, prefix string, limit int) ([]string, error) {
	var esResp esSuggestResponse
	if err := e.search(ctx, e.queries.BuildSuggest(prefix, limit), &esResp); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	out := make([]string, 0, limit)
	for _, entry := range esResp.Suggest[suggestionName] {
		for _, opt := range entry.Options {
			if _, dup := seen[opt.Text]; dup {
				continue
			}
			seen[opt.Text] = struct{}{}
			out = append(out, opt.Text)
			if len(out) == limit {
				return out, nil
			}
		}
	}
	return out, nil
}

func (e *Engine) search(ctx context.Context, body map[string]interface{}, dst interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("elasticsearch search: marshal query: %w", err)
	}

	res, err := e.client.Search(
		e.client.Search.WithIndex(e.indexName),
		e.client.Search.WithBody(bytes.NewReader(data)),
		e.client.Search.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("elasticsearch search: %w", err)
	}
	defer closeBody(res)

	if res.StatusCode == http.StatusNotFound {
		return apperrors.NotFound("index", e.indexName)
	}
	if res.IsError() {
		return decodeError("elasticsearch search", res)
	}

	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("elasticsearch search: decode response: %w", err)
	}
	return nil
}

func toBuckets(b esBuckets) []domain.FacetBucket {
	out := make([]domain.FacetBucket, 0, len(b.Buckets))
	for _, bucket := range b.Buckets {
		out = append(out, domain.FacetBucket{Key: fmt.Sprint(bucket.Key), Count: bucket.DocCount})
	}
	return out
}

func decodeError(op string, res *esapi.Response) error {
	var errResp esErrorResponse
	if err := json.NewDecoder(res.Body).Decode(&errResp); err == nil && errResp.Error.Type != "" {
		return fmt.Errorf("%s: %s: %s", op, errResp.Error.Type, errResp.Error.Reason)
	}
	return fmt.Errorf("%s: unexpected status %s", op, res.Status())
}

func closeBody(res *esapi.Response) {
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
