package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/engine/memory"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/source"
	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/suggest"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

// fakeSource serves records in id order. failPage makes List fail on that
// page; gate, when set, blocks List until closed.
type fakeSource struct {
	mu       sync.Mutex
	records  map[string]domain.ContentRecord
	failPage int
	started  chan struct{}
	gate     chan struct{}
	once     sync.Once
}

func newFakeSource(recs ...domain.ContentRecord) *fakeSource {
	s := &fakeSource{records: make(map[string]domain.ContentRecord), failPage: -1}
	for _, r := range recs {
		s.records[r.ID] = r
	}
	return s
}

func (s *fakeSource) Get(_ context.Context, id string) (*domain.ContentRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, apperrors.NotFound("content", id)
	}
	return &rec, nil
}

func (s *fakeSource) List(ctx context.Context, page, size int) (*source.Page, error) {
	if s.gate != nil {
		s.once.Do(func() { close(s.started) })
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if page == s.failPage {
		return nil, errors.New("content service unavailable")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	from := min(page*size, len(ids))
	to := min(from+size, len(ids))
	out := &source.Page{Records: make([]domain.ContentRecord, 0, to-from)}
	for _, id := range ids[from:to] {
		out.Records = append(out.Records, s.records[id])
	}
	out.TotalPages = (len(ids) + size - 1) / size
	return out, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []*pkgkafka.Event
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, ev *pkgkafka.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, ev)
	return nil
}

// rejectingEngine reports one id as rejected in every bulk write.
type rejectingEngine struct {
	*memory.Engine
	reject string
}

func (r *rejectingEngine) BulkUpsert(ctx context.Context, docs []domain.IndexDocument) (*domain.BulkResult, error) {
	kept := make([]domain.IndexDocument, 0, len(docs))
	res := &domain.BulkResult{}
	for _, d := range docs {
		if d.ID == r.reject {
			res.Failures = append(res.Failures, domain.BulkFailure{ID: d.ID, Reason: "mapper_parsing_exception: failed to parse"})
			continue
		}
		kept = append(kept, d)
	}
	inner, err := r.Engine.BulkUpsert(ctx, kept)
	if err != nil {
		return nil, err
	}
	res.Succeeded = inner.Succeeded
	return res, nil
}

func numbered(n int) []domain.ContentRecord {
	out := make([]domain.ContentRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, record(fmt.Sprintf("c%02d", i), fmt.Sprintf("Trip number %d", i)))
	}
	return out
}

func newSync(eng *memory.Engine, src *fakeSource, opts ...SyncOption) *Synchronizer {
	opts = append([]SyncOption{WithSyncClock(func() time.Time { return testNow })}, opts...)
	return NewSynchronizer(eng, src, logger.Discard(), opts...)
}

// ---------------------------------------------------------------------------
// Event handlers
// ---------------------------------------------------------------------------

func TestHandleCreated_IsIdempotent(t *testing.T) {
	eng := newTestEngine()
	syncer := newSync(eng, newFakeSource())
	rec := record("c1", "Tokyo Adventure")

	require.NoError(t, syncer.HandleCreated(context.Background(), rec))
	first, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)

	require.NoError(t, syncer.HandleCreated(context.Background(), rec))
	second, err := eng.Get(context.Background(), "c1")
	require.NoError(t, err)

	assert.Equal(t, 1, eng.Count())
	assert.Equal(t, first, second)
	assert.Equal(t, suggest.Build("Tokyo Adventure"), second.Suggestions)
}

func TestHandleUpdated_ReplacesDocument(t *testing.T) {
	eng := newTestEngine()
	syncer := newSync(eng, newFakeSource())
	ctx := context.Background()

	require.NoError(t, syncer.HandleCreated(ctx, record("c1", "Tokyo Adventure")))
	updated := record("c1", "Osaka Street Food")
	updated.LikeCount = 7
	require.NoError(t, syncer.HandleUpdated(ctx, updated))

	doc, err := eng.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "Osaka Street Food", doc.Title)
	assert.EqualValues(t, 7, doc.LikeCount)
	assert.NotContains(t, doc.Suggestions, "Tokyo")
}

func TestHandleUpdated_UnknownIDCreates(t *testing.T) {
	eng := newTestEngine()
	syncer := newSync(eng, newFakeSource())

	require.NoError(t, syncer.HandleUpdated(context.Background(), record("fresh", "Brand new")))
	assert.Equal(t, 1, eng.Count())
}

func TestHandleCreated_RejectsInvalidRecord(t *testing.T) {
	eng := newTestEngine()
	syncer := newSync(eng, newFakeSource())

	bad := record("", "No id")
	assert.ErrorIs(t, syncer.HandleCreated(context.Background(), bad), apperrors.ErrInvalidInput)

	negative := record("c1", "Negative")
	negative.Rating = -1
	assert.ErrorIs(t, syncer.HandleUpdated(context.Background(), negative), apperrors.ErrInvalidInput)
	assert.Zero(t, eng.Count())
}

func TestHandleDeleted(t *testing.T) {
	eng := newTestEngine()
	syncer := newSync(eng, newFakeSource())
	ctx := context.Background()

	require.NoError(t, syncer.HandleCreated(ctx, record("c1", "Tokyo Adventure")))
	require.NoError(t, syncer.HandleDeleted(ctx, "c1"))
	require.NoError(t, syncer.HandleDeleted(ctx, "c1"), "deleting twice is not an error")
	assert.Zero(t, eng.Count())

	assert.ErrorIs(t, syncer.HandleDeleted(ctx, " "), apperrors.ErrInvalidInput)
}

func TestCreatedSearchDeletedScenario(t *testing.T) {
	eng := newTestEngine()
	syncer := newSync(eng, newFakeSource())
	svc := NewSearchService(eng, logger.Discard())
	ctx := context.Background()

	rec := record("c1", "Tokyo Adventure")
	rec.Rating = 4.5
	require.NoError(t, syncer.HandleCreated(ctx, rec))

	found, err := svc.SearchByKeyword(ctx, "tokyo", page(0, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, itemIDs(found))

	suggestions := svc.GetSuggestions(ctx, "tok", 10)
	assert.Contains(t, suggestions.Suggestions, "Tokyo Adventure")

	require.NoError(t, syncer.HandleDeleted(ctx, "c1"))

	gone, err := svc.SearchByKeyword(ctx, "tokyo", page(0, 10), nil)
	require.NoError(t, err)
	assert.Empty(t, gone.Items)
	assert.Zero(t, gone.TotalElements)
}

// ---------------------------------------------------------------------------
// RebuildAll
// ---------------------------------------------------------------------------

func TestRebuildAll_IndexesEveryRecord(t *testing.T) {
	eng := newTestEngine()
	recs := numbered(7)
	syncer := newSync(eng, newFakeSource(recs...), WithBatchSize(3))

	report, err := syncer.RebuildAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 7, report.Total)
	assert.Equal(t, 7, report.Succeeded)
	assert.Zero(t, report.Failed)
	assert.Equal(t, []string{}, report.FailedIDs)
	assert.Equal(t, testNow, report.StartedAt)
	assert.Equal(t, 7, eng.Count())

	for _, rec := range recs {
		doc, err := eng.Get(context.Background(), rec.ID)
		require.NoError(t, err)
		assert.Equal(t, suggest.Build(rec.Title), doc.Suggestions)
	}
}

func TestRebuildAll_EmptyStore(t *testing.T) {
	syncer := newSync(newTestEngine(), newFakeSource())

	report, err := syncer.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Total)
}

func TestRebuildAll_CountsInvalidAndRejectedRecords(t *testing.T) {
	recs := numbered(4)
	recs[1].Rating = -2
	eng := &rejectingEngine{Engine: newTestEngine(), reject: recs[3].ID}
	syncer := NewSynchronizer(eng, newFakeSource(recs...), logger.Discard(), WithBatchSize(2))

	report, err := syncer.RebuildAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, report.Failed)
	assert.ElementsMatch(t, []string{recs[1].ID, recs[3].ID}, report.FailedIDs)
}

func TestRebuildAll_ListFailureReturnsPartialReport(t *testing.T) {
	src := newFakeSource(numbered(5)...)
	src.failPage = 1
	syncer := newSync(newTestEngine(), src, WithBatchSize(2))

	report, err := syncer.RebuildAll(context.Background())
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 2, report.Succeeded)
}

func TestRebuildAll_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	syncer := newSync(newTestEngine(), newFakeSource(numbered(3)...))

	report, err := syncer.RebuildAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, report.Total)
}

// ---------------------------------------------------------------------------
// ResetAndRebuild / Migrate
// ---------------------------------------------------------------------------

func TestResetAndRebuild_DropsStaleDocuments(t *testing.T) {
	eng := newTestEngine()
	seed(t, eng, record("stale", "Removed upstream"))
	pub := &recordingPublisher{}
	syncer := newSync(eng, newFakeSource(numbered(3)...), WithPublisher(pub, "search.index.rebuilt"))

	report, err := syncer.ResetAndRebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.Equal(t, 3, eng.Count())

	_, err = eng.Get(context.Background(), "stale")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "search.index.rebuilt", pub.topics[0])
	assert.Equal(t, EventIndexRebuilt, pub.events[0].EventType)

	var data IndexRebuiltData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, "reset", data.Operation)
	assert.Equal(t, 3, data.Report.Total)
}

func TestResetAndRebuild_RejectsConcurrentRun(t *testing.T) {
	src := newFakeSource(numbered(2)...)
	src.started = make(chan struct{})
	src.gate = make(chan struct{})
	syncer := newSync(newTestEngine(), src)

	done := make(chan error, 1)
	go func() {
		_, err := syncer.ResetAndRebuild(context.Background())
		done <- err
	}()
	<-src.started

	_, err := syncer.ResetAndRebuild(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	_, err = syncer.Migrate(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	close(src.gate)
	require.NoError(t, <-done)

	_, err = syncer.ResetAndRebuild(context.Background())
	assert.NoError(t, err, "the lock is released after a run")
}

func TestMigrate_RebuildsAndAnnounces(t *testing.T) {
	eng := newTestEngine()
	pub := &recordingPublisher{}
	syncer := newSync(eng, newFakeSource(numbered(2)...), WithPublisher(pub, ""))

	report, err := syncer.Migrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	require.Len(t, pub.topics, 1)
	assert.Equal(t, EventIndexRebuilt, pub.topics[0])
	var data IndexRebuiltData
	require.NoError(t, pub.events[0].UnmarshalData(&data))
	assert.Equal(t, "migrate", data.Operation)
}

func TestResetAndRebuild_NoEventOnFailure(t *testing.T) {
	src := newFakeSource(numbered(2)...)
	src.failPage = 0
	pub := &recordingPublisher{}
	syncer := newSync(newTestEngine(), src, WithPublisher(pub, ""))

	_, err := syncer.ResetAndRebuild(context.Background())
	require.Error(t, err)
	assert.Empty(t, pub.events)
}

// ---------------------------------------------------------------------------
// SyncOne
// ---------------------------------------------------------------------------

func TestSyncOne(t *testing.T) {
	eng := newTestEngine()
	src := newFakeSource(record("c1", "Tokyo Adventure"))
	syncer := newSync(eng, src)

	doc, err := syncer.SyncOne(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, "Tokyo Adventure", doc.Title)
	assert.Equal(t, 1, eng.Count())
}

func TestSyncOne_RemovesStaleDocument(t *testing.T) {
	eng := newTestEngine()
	seed(t, eng, record("gone", "Deleted upstream"))
	syncer := newSync(eng, newFakeSource())

	_, err := syncer.SyncOne(context.Background(), "gone")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Zero(t, eng.Count())

	_, err = syncer.SyncOne(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}
