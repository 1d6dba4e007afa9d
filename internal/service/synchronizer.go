package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/source"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/validator"
)

const (
	// DefaultRebuildBatchSize is the page size used to enumerate the primary store.
	DefaultRebuildBatchSize = 200

	// EventIndexRebuilt is published after the index was reset or migrated.
	EventIndexRebuilt = "search.index.rebuilt"

	eventSource = "search-service"
)

// EventPublisher publishes domain events; satisfied by *pkgkafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// IndexRebuiltData is the payload of the index rebuilt event.
type IndexRebuiltData struct {
	Operation string               `json:"operation"`
	Report    domain.RebuildReport `json:"report"`
}

// Synchronizer keeps the search index consistent with the primary store.
type Synchronizer struct {
	engine       engine.SearchEngine
	source       source.ContentSource
	publisher    EventPublisher
	rebuiltTopic string
	batchSize    int
	rebuilding   atomic.Bool
	now          func() time.Time
	logger       *slog.Logger
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithPublisher announces completed rebuilds on topic.
func WithPublisher(p EventPublisher, topic string) SyncOption {
	return func(s *Synchronizer) {
		s.publisher = p
		if topic != "" {
			s.rebuiltTopic = topic
		}
	}
}

// WithBatchSize sets the rebuild page size.
func WithBatchSize(n int) SyncOption {
	return func(s *Synchronizer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithSyncClock overrides the time source used in rebuild reports.
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *Synchronizer) { s.now = now }
}

// NewSynchronizer creates a synchronizer writing to eng and reading from src.
func NewSynchronizer(eng engine.SearchEngine, src source.ContentSource, logger *slog.Logger, opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{
		engine:       eng,
		source:       src,
		rebuiltTopic: EventIndexRebuilt,
		batchSize:    DefaultRebuildBatchSize,
		now:          time.Now,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleCreated indexes a newly created record.
func (s *Synchronizer) HandleCreated(ctx context.Context, rec domain.ContentRecord) error {
	return s.upsert(ctx, "created", rec)
}

// HandleUpdated replaces the indexed document with one built from rec. An
// update for an id never seen before simply creates it.
func (s *Synchronizer) HandleUpdated(ctx context.Context, rec domain.ContentRecord) error {
	return s.upsert(ctx, "updated", rec)
}

// HandleDeleted removes the document with id. Unknown ids are not an error.
func (s *Synchronizer) HandleDeleted(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperrors.InvalidInput("content id is required")
	}

	err := s.engine.Delete(ctx, id)
	syncOperations.WithLabelValues("deleted", outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("delete content %s: %w", id, err)
	}

	s.log(ctx).InfoContext(ctx, "content removed from index", slog.String("content_id", id))
	return nil
}

func (s *Synchronizer) upsert(ctx context.Context, op string, rec domain.ContentRecord) error {
	if err := validator.Validate(rec); err != nil {
		syncOperations.WithLabelValues(op, "invalid").Inc()
		return fmt.Errorf("%s content: %w", op, err)
	}

	doc := domain.NewIndexDocument(rec)
	err := s.engine.Upsert(ctx, &doc)
	syncOperations.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("index content %s: %w", rec.ID, err)
	}

	s.log(ctx).InfoContext(ctx, "content indexed",
		slog.String("content_id", rec.ID),
		slog.String("operation", op),
	)
	return nil
}

// RebuildAll enumerates every record in the primary store and upserts its
// document. Records that fail to derive or write are counted in the report;
// only a failure to enumerate aborts the run, returning the partial report.
func (s *Synchronizer) RebuildAll(ctx context.Context) (*domain.RebuildReport, error) {
	report := &domain.RebuildReport{StartedAt: s.now(), FailedIDs: []string{}}
	l := s.log(ctx)

	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			report.Finish(s.now())
			return report, fmt.Errorf("rebuild index: %w", err)
		}

		p, err := s.source.List(ctx, page, s.batchSize)
		if err != nil {
			report.Finish(s.now())
			syncOperations.WithLabelValues("rebuild", "error").Inc()
			return report, fmt.Errorf("rebuild index: list page %d: %w", page, err)
		}

		docs := make([]domain.IndexDocument, 0, len(p.Records))
		for _, rec := range p.Records {
			report.Total++
			if err := validator.Validate(rec); err != nil {
				l.WarnContext(ctx, "skipping invalid content record",
					slog.String("content_id", rec.ID),
					slog.String("error", err.Error()),
				)
				report.RecordFailure(rec.ID)
				continue
			}
			docs = append(docs, domain.NewIndexDocument(rec))
		}

		if len(docs) > 0 {
			s.writeBatch(ctx, docs, report)
		}

		l.DebugContext(ctx, "rebuild page processed",
			slog.Int("page", page),
			slog.Int("records", len(p.Records)),
			slog.Int("total_pages", p.TotalPages),
		)
		if len(p.Records) == 0 || page+1 >= p.TotalPages {
			break
		}
	}

	report.Finish(s.now())
	syncOperations.WithLabelValues("rebuild", "success").Inc()
	l.InfoContext(ctx, "index rebuild completed",
		slog.Int("total", report.Total),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", report.Failed),
		slog.Int64("duration_ms", report.DurationMs),
	)
	return report, nil
}

func (s *Synchronizer) writeBatch(ctx context.Context, docs []domain.IndexDocument, report *domain.RebuildReport) {
	res, err := s.engine.BulkUpsert(ctx, docs)
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "bulk upsert failed",
			slog.Int("count", len(docs)),
			slog.String("error", err.Error()),
		)
		for _, d := range docs {
			report.RecordFailure(d.ID)
		}
		return
	}

	report.Succeeded += res.Succeeded
	for _, f := range res.Failures {
		s.log(ctx).WarnContext(ctx, "document rejected by index",
			slog.String("content_id", f.ID),
			slog.String("reason", f.Reason),
		)
		report.RecordFailure(f.ID)
	}
}

// ResetAndRebuild empties the index and rebuilds it from the primary store.
// Only one reset or migration runs at a time; a concurrent call fails with
// a conflict.
func (s *Synchronizer) ResetAndRebuild(ctx context.Context) (*domain.RebuildReport, error) {
	return s.exclusive(ctx, "reset", s.engine.DeleteAll)
}

// Migrate applies the current index mapping, so newly derived fields are
// mapped, then rebuilds every document.
func (s *Synchronizer) Migrate(ctx context.Context) (*domain.RebuildReport, error) {
	return s.exclusive(ctx, "migrate", s.engine.EnsureSchema)
}

func (s *Synchronizer) exclusive(ctx context.Context, op string, prepare func(context.Context) error) (*domain.RebuildReport, error) {
	if !s.rebuilding.CompareAndSwap(false, true) {
		return nil, apperrors.Conflict("an index rebuild is already in progress")
	}
	defer s.rebuilding.Store(false)

	s.log(ctx).InfoContext(ctx, "index rebuild started", slog.String("operation", op))

	if err := prepare(ctx); err != nil {
		syncOperations.WithLabelValues(op, "error").Inc()
		return nil, fmt.Errorf("%s index: %w", op, err)
	}

	report, err := s.RebuildAll(ctx)
	if err != nil {
		return report, err
	}

	s.publishRebuilt(ctx, op, report)
	return report, nil
}

func (s *Synchronizer) publishRebuilt(ctx context.Context, op string, report *domain.RebuildReport) {
	if s.publisher == nil {
		return
	}

	ev, err := pkgkafka.NewEvent(EventIndexRebuilt, "search-index", "search_index", eventSource,
		IndexRebuiltData{Operation: op, Report: *report})
	if err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to build rebuilt event", slog.String("error", err.Error()))
		return
	}
	ev.WithCorrelationID(logger.CorrelationIDFromContext(ctx))

	if err := s.publisher.Publish(ctx, s.rebuiltTopic, ev); err != nil {
		s.log(ctx).ErrorContext(ctx, "failed to publish rebuilt event",
			slog.String("topic", s.rebuiltTopic),
			slog.String("error", err.Error()),
		)
	}
}

// SyncOne re-reads one record from the primary store and indexes it. When
// the store no longer has the record its stale document is removed and a
// not-found error is returned.
func (s *Synchronizer) SyncOne(ctx context.Context, id string) (*domain.IndexDocument, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.InvalidInput("content id is required")
	}

	rec, err := s.source.Get(ctx, id)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			if delErr := s.engine.Delete(ctx, id); delErr != nil {
				s.log(ctx).WarnContext(ctx, "failed to remove stale document",
					slog.String("content_id", id),
					slog.String("error", delErr.Error()),
				)
			}
			syncOperations.WithLabelValues("sync_one", "not_found").Inc()
			return nil, apperrors.NotFound("content", id)
		}
		syncOperations.WithLabelValues("sync_one", "error").Inc()
		return nil, fmt.Errorf("sync content %s: %w", id, err)
	}

	if err := s.upsert(ctx, "sync_one", *rec); err != nil {
		return nil, err
	}
	doc := domain.NewIndexDocument(*rec)
	return &doc, nil
}

func (s *Synchronizer) log(ctx context.Context) *slog.Logger {
	return logger.WithContext(ctx, s.logger)
}
