package service

import (
	"context"
	"log/slog"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

// ResultAssembler turns engine hits into result pages.
type ResultAssembler struct {
	logger *slog.Logger
}

// NewResultAssembler creates a result assembler.
func NewResultAssembler(logger *slog.Logger) *ResultAssembler {
	return &ResultAssembler{logger: logger}
}

// Assemble builds the page at position page of the given size from hits.
func (a *ResultAssembler) Assemble(hits *domain.SearchHits, page, size int) domain.SearchResultPage {
	if hits == nil {
		return domain.EmptyPage(page, size)
	}
	items := hits.Documents
	if items == nil {
		items = []domain.IndexDocument{}
	}
	return domain.SearchResultPage{
		Items:         items,
		Page:          page,
		Size:          size,
		TotalElements: hits.Total,
		Facets:        hits.Facets,
	}
}

// Degraded returns the empty page served in place of a failed engine call.
// The failure is logged and counted, and the page is flagged so it is
// neither cached nor presented as a real empty result.
func (a *ResultAssembler) Degraded(ctx context.Context, operation string, page, size int, err error) domain.SearchResultPage {
	logger.WithContext(ctx, a.logger).WarnContext(ctx, "search engine unavailable, serving degraded result",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
	degradedResponses.WithLabelValues(operation).Inc()

	p := domain.EmptyPage(page, size)
	p.MarkDegraded()
	return p
}
