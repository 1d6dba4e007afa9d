package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/knaznarjes/MoveBackendDevops-sub000/internal/domain"
	apperrors "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/errors"
	pkgkafka "github.com/knaznarjes/MoveBackendDevops-sub000/pkg/kafka"
	"github.com/knaznarjes/MoveBackendDevops-sub000/pkg/logger"
)

// Indexer applies content changes to the search index.
type Indexer interface {
	HandleCreated(ctx context.Context, rec domain.ContentRecord) error
	HandleUpdated(ctx context.Context, rec domain.ContentRecord) error
	HandleDeleted(ctx context.Context, id string) error
}

// Registry maps each subscribed topic to its handler. It is built once at
// startup and read-only afterwards.
type Registry struct {
	handlers map[string]pkgkafka.Handler
	logger   *slog.Logger
}

// NewRegistry subscribes idx to the three content topics.
func NewRegistry(topics Topics, idx Indexer, logger *slog.Logger) *Registry {
	r := &Registry{handlers: make(map[string]pkgkafka.Handler, 3), logger: logger}

	r.handlers[topics.Created] = r.bind(OperationCreated, func(ctx context.Context, env Envelope) error {
		return idx.HandleCreated(ctx, env.Payload)
	})
	r.handlers[topics.Updated] = r.bind(OperationUpdated, func(ctx context.Context, env Envelope) error {
		return idx.HandleUpdated(ctx, env.Payload)
	})
	r.handlers[topics.Deleted] = r.bind(OperationDeleted, func(ctx context.Context, env Envelope) error {
		return idx.HandleDeleted(ctx, env.ID)
	})
	return r
}

// bind decodes the envelope for op and passes it to apply. Malformed events
// and records the index rejects are marked permanent so the consumer does
// not retry them.
func (r *Registry) bind(op Operation, apply func(context.Context, Envelope) error) pkgkafka.Handler {
	return func(ctx context.Context, ev *pkgkafka.Event) error {
		if ev.CorrelationID != "" {
			ctx = logger.WithCorrelationID(ctx, ev.CorrelationID)
		}

		env, err := Decode(ev, op)
		if err != nil {
			return pkgkafka.Permanent(err)
		}

		if err := apply(ctx, env); err != nil {
			if errors.Is(err, apperrors.ErrInvalidInput) {
				return pkgkafka.Permanent(err)
			}
			return fmt.Errorf("handle %s event for %s: %w", op, env.ID, err)
		}

		logger.WithContext(ctx, r.logger).DebugContext(ctx, "content event applied",
			slog.String("event_id", ev.EventID),
			slog.String("operation", string(op)),
			slog.String("content_id", env.ID),
		)
		return nil
	}
}

// Topics returns the subscribed topics in sorted order.
func (r *Registry) Topics() []string {
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Handler returns the handler for topic.
func (r *Registry) Handler(topic string) (pkgkafka.Handler, bool) {
	h, ok := r.handlers[topic]
	return h, ok
}

// Use wraps every handler with mw, e.g. to add idempotency.
func (r *Registry) Use(mw func(pkgkafka.Handler) pkgkafka.Handler) {
	for t, h := range r.handlers {
		r.handlers[t] = mw(h)
	}
}

// Dispatch routes ev to the handler for topic. Events on topics nobody
// subscribed to are permanent failures.
func (r *Registry) Dispatch(ctx context.Context, topic string, ev *pkgkafka.Event) error {
	h, ok := r.handlers[topic]
	if !ok {
		return pkgkafka.Permanent(fmt.Errorf("no handler for topic %q", topic))
	}
	return h(ctx, ev)
}
