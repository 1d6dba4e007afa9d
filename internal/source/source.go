package source

import (
	"context"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
)

// Page is one slice of the primary store's content enumeration.
type Page struct {
	Records    []domain.ContentRecord
	TotalPages int
}

// ContentSource is the read capability of the primary content store.
type ContentSource interface {
	// Get returns one record, or an error wrapping apperrors.ErrNotFound.
	Get(ctx context.Context, id string) (*domain.ContentRecord, error)
	// List returns the 0-based page of records ordered by id.
	List(ctx context.Context, page, size int) (*Page, error)
}
