package engine

import (
	"context"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
)

// SearchEngine stores IndexDocuments and answers queries over them.
// Implementations may use Elasticsearch, in-memory storage, or other backends.
type SearchEngine interface {
	// EnsureSchema creates the index, or applies the current mapping to an
	// existing one so newly derived fields become searchable.
	EnsureSchema(ctx context.Context) error

	// Upsert inserts or fully replaces the document with doc.ID.
	Upsert(ctx context.Context, doc *domain.IndexDocument) error

	// BulkUpsert upserts docs, reporting per-document failures in the result.
	// An error means the batch as a whole could not be written.
	BulkUpsert(ctx context.Context, docs []domain.IndexDocument) (*domain.BulkResult, error)

	// Delete removes a document. Deleting an unknown id is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every document while keeping the index.
	DeleteAll(ctx context.Context) error

	// Get returns a document or an error wrapping apperrors.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.IndexDocument, error)

	// Search executes q and returns the requested window of hits.
	Search(ctx context.Context, q *domain.SearchQuery) (*domain.SearchHits, error)

	// Suggest returns up to limit distinct completions for prefix.
	Suggest(ctx context.Context, prefix string, limit int) ([]string, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error
}
