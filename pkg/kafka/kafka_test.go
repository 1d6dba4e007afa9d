package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

type stubWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *stubWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *stubWriter) Close() error { return nil }

func headerValue(headers []kafka.Header, key string) string {
	return NewHeaderCarrier(&headers).Get(key)
}

// --- Event ---

func TestNewEvent(t *testing.T) {
	evt, err := NewEvent("content.created", "c1", "content", "content-service", map[string]string{"id": "c1"})
	require.NoError(t, err)

	assert.NotEmpty(t, evt.EventID)
	assert.Equal(t, 1, evt.Version)
	assert.Equal(t, "c1", evt.AggregateID)
	assert.WithinDuration(t, time.Now(), evt.Timestamp, time.Second)

	raw, err := evt.WithCorrelationID("corr-1").Marshal()
	require.NoError(t, err)

	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", decoded.CorrelationID)

	var payload map[string]string
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, "c1", payload["id"])
}

func TestNewEvent_UnmarshalableData(t *testing.T) {
	_, err := NewEvent("x", "id", "content", "src", make(chan int))
	assert.Error(t, err)
}

func TestEvent_UnmarshalDataEmpty(t *testing.T) {
	evt := &Event{EventID: "e1"}
	var target map[string]any
	assert.Error(t, evt.UnmarshalData(&target))
}

// --- DLQ ---

func TestDLQProducer_PublishAddsFailureHeaders(t *testing.T) {
	w := &stubWriter{}
	d := newDLQProducer(w, "", logger.Discard())

	msg := kafka.Message{
		Topic:     "content.created",
		Partition: 2,
		Offset:    99,
		Key:       []byte("c1"),
		Value:     []byte(`{}`),
		Headers:   []kafka.Header{{Key: "event_type", Value: []byte("content.created")}},
	}
	require.NoError(t, d.Publish(context.Background(), msg, Permanent(errors.New("missing id")), "search-indexer"))

	require.Len(t, w.msgs, 1)
	out := w.msgs[0]
	assert.Equal(t, "search.dlq.content.created", out.Topic)
	assert.Equal(t, []byte("c1"), out.Key)
	assert.Equal(t, "content.created", headerValue(out.Headers, "event_type"))
	assert.Equal(t, "2", headerValue(out.Headers, "dlq.original_partition"))
	assert.Equal(t, "99", headerValue(out.Headers, "dlq.original_offset"))
	assert.Equal(t, "search-indexer", headerValue(out.Headers, "dlq.consumer_group"))
	assert.Equal(t, "true", headerValue(out.Headers, "dlq.permanent"))
	assert.Equal(t, "missing id", headerValue(out.Headers, "dlq.error"))
}

func TestDLQProducer_CustomPrefixAndWriteError(t *testing.T) {
	w := &stubWriter{err: errors.New("broker down")}
	d := newDLQProducer(w, "travel.dlq", logger.Discard())

	assert.Equal(t, "travel.dlq.content.deleted", d.Topic("content.deleted"))
	err := d.Publish(context.Background(), kafka.Message{Topic: "content.deleted"}, errors.New("x"), "g")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "travel.dlq.content.deleted")
}

// --- Producer ---

func TestProducer_PublishKeysByAggregate(t *testing.T) {
	w := &stubWriter{}
	p := &Producer{writer: w, logger: logger.Discard()}

	evt, err := NewEvent("search.index.rebuilt", "content-index", "search_index", "search-service", map[string]int{"total": 3})
	require.NoError(t, err)
	evt.WithCorrelationID("corr-7")

	require.NoError(t, p.Publish(context.Background(), "search.index.rebuilt", evt))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, []byte("content-index"), w.msgs[0].Key)
	assert.Equal(t, "corr-7", headerValue(w.msgs[0].Headers, "correlation_id"))
	assert.Equal(t, "search-service", headerValue(w.msgs[0].Headers, "source"))
}

func TestProducer_PublishError(t *testing.T) {
	p := &Producer{writer: &stubWriter{err: errors.New("no leader")}, logger: logger.Discard()}
	evt, err := NewEvent("t", "a", "x", "s", nil)
	require.NoError(t, err)
	assert.Error(t, p.Publish(context.Background(), "t", evt))
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}

// --- Trace headers ---

func TestHeaderCarrier(t *testing.T) {
	headers := []kafka.Header{{Key: "existing", Value: []byte("v1")}}
	c := NewHeaderCarrier(&headers)

	assert.Equal(t, "v1", c.Get("existing"))
	assert.Empty(t, c.Get("missing"))

	c.Set("existing", "v2")
	c.Set("new", "v3")
	assert.Equal(t, "v2", c.Get("existing"))
	assert.ElementsMatch(t, []string{"existing", "new"}, c.Keys())
	assert.Len(t, headers, 2)
}

func TestTraceContext_RoundTrip(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceContext(ctx, nil)
	require.NotEmpty(t, headerValue(headers, "traceparent"))

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	assert.Equal(t, traceID, got.TraceID())
}

// --- Idempotency ---

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryIdempotencyStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "evt-1"))
	ok, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, s.Len())
}

func TestRedisIdempotencyStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisIdempotencyStore(client, "search:idem:", time.Hour)
	ctx := context.Background()

	ok, err := s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Add(ctx, "evt-1"))
	ok, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("search:idem:evt-1"))

	mr.FastForward(2 * time.Hour)
	ok, err = s.Contains(ctx, "evt-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

type failingStore struct{}

func (failingStore) Contains(context.Context, string) (bool, error) { return false, errors.New("down") }
func (failingStore) Add(context.Context, string) error             { return errors.New("down") }

func TestIdempotentHandler(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Hour)

	calls := 0
	fail := true
	h := IdempotentHandler(store, func(context.Context, *Event) error {
		calls++
		if fail {
			return errors.New("transient")
		}
		return nil
	}, logger.Discard())

	evt := &Event{EventID: "evt-1", EventType: "content.created"}

	require.Error(t, h(ctx, evt))
	fail = false
	require.NoError(t, h(ctx, evt))
	require.NoError(t, h(ctx, evt))
	assert.Equal(t, 2, calls, "failed attempt is not recorded, duplicate after success is skipped")

	require.NoError(t, h(ctx, &Event{}))
	require.NoError(t, h(ctx, &Event{}))
	assert.Equal(t, 4, calls, "events without id always pass through")
}

func TestIdempotentHandler_StoreFailureProcesses(t *testing.T) {
	calls := 0
	h := IdempotentHandler(failingStore{}, func(context.Context, *Event) error {
		calls++
		return nil
	}, logger.Discard())

	require.NoError(t, h(context.Background(), &Event{EventID: "e"}))
	require.NoError(t, h(context.Background(), &Event{EventID: "e"}))
	assert.Equal(t, 2, calls)
}
