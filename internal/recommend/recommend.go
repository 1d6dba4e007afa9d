package recommend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/httpclient"
)

// Reranker orders similarity candidates by an external model.
type Reranker interface {
	Rerank(ctx context.Context, ref *domain.IndexDocument, candidates []domain.IndexDocument) ([]domain.IndexDocument, error)
}

type candidate struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Type        string `json:"type"`
}

type rerankRequest struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Candidates  []candidate `json:"candidates"`
}

type rerankResponse struct {
	Ranked []string `json:"ranked"`
}

// HTTPReranker calls the recommendation model over HTTP behind a circuit
// breaker.
type HTTPReranker struct {
	client *httpclient.CircuitBreakerClient
	url    string
	logger *slog.Logger
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker creates a reranker posting to url.
func NewHTTPReranker(client *httpclient.CircuitBreakerClient, url string, logger *slog.Logger) *HTTPReranker {
	return &HTTPReranker{client: client, url: url, logger: logger}
}

// Rerank returns candidates in the model's order. Candidates the model does
// not mention keep their relative order after the ranked ones.
func (r *HTTPReranker) Rerank(ctx context.Context, ref *domain.IndexDocument, candidates []domain.IndexDocument) ([]domain.IndexDocument, error) {
	if len(candidates) < 2 {
		return candidates, nil
	}

	req := rerankRequest{
		ID:          ref.ID,
		Title:       ref.Title,
		Description: ref.Description,
		Candidates:  make([]candidate, 0, len(candidates)),
	}
	for _, c := range candidates {
		req.Candidates = append(req.Candidates, candidate{
			ID: c.ID, Title: c.Title, Description: c.Description, Type: c.Type,
		})
	}

	var resp rerankResponse
	if err := r.client.PostJSON(ctx, r.url, req, &resp); err != nil {
		return nil, fmt.Errorf("rerank similar content: %w", err)
	}

	r.logger.DebugContext(ctx, "reranked similar content",
		slog.String("content_id", ref.ID),
		slog.Int("candidates", len(candidates)),
		slog.Int("ranked", len(resp.Ranked)),
	)
	return Reorder(candidates, resp.Ranked), nil
}

// Reorder places docs named in ranked first, in that order, followed by the
// rest in their original order. Unknown and repeated ids are ignored.
func Reorder(docs []domain.IndexDocument, ranked []string) []domain.IndexDocument {
	pos := make(map[string]int, len(docs))
	for i, d := range docs {
		pos[d.ID] = i
	}

	used := make([]bool, len(docs))
	out := make([]domain.IndexDocument, 0, len(docs))
	for _, id := range ranked {
		i, ok := pos[id]
		if !ok || used[i] {
			continue
		}
		used[i] = true
		out = append(out, docs[i])
	}
	for i, d := range docs {
		if !used[i] {
			out = append(out, d)
		}
	}
	return out
}
