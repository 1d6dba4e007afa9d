package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/httputil"
)

// IndexAdmin is the privileged index maintenance surface.
type IndexAdmin interface {
	ResetAndRebuild(ctx context.Context) (*domain.RebuildReport, error)
	Migrate(ctx context.Context) (*domain.RebuildReport, error)
	SyncOne(ctx context.Context, id string) (*domain.IndexDocument, error)
}

// AdminHandler handles the index maintenance endpoints.
type AdminHandler struct {
	admin  IndexAdmin
	logger *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(admin IndexAdmin, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, logger: logger}
}

// ResetIndex handles POST /api/v1/search/admin/reset-index. The rebuild is
// not cancelled when the client goes away, so the index is never left half
// reset by a dropped connection.
func (h *AdminHandler) ResetIndex(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.ResetAndRebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, report)
}

// Reindex handles POST /api/v1/search/admin/reindex
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Migrate(context.WithoutCancel(r.Context()))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, report)
}

// SyncOne handles POST /api/v1/search/admin/sync/{id}
func (h *AdminHandler) SyncOne(w http.ResponseWriter, r *http.Request) {
	doc, err := h.admin.SyncOne(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, doc)
}
