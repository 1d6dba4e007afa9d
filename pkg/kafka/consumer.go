package kafka

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 100 * time.Millisecond
	workerQueueSize     = 16
	commitTimeout       = 5 * time.Second
)

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

// MessageReader is the subset of *kafka.Reader used by the consumer.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeadLetterPublisher receives messages that could not be handled.
type DeadLetterPublisher interface {
	Publish(ctx context.Context, msg kafka.Message, cause error, consumerGroup string) error
}

// ConsumerConfig holds Kafka consumer configuration.
type ConsumerConfig struct {
	Brokers  []string
	GroupID  string
	Topic    string
	MinBytes int
	MaxBytes int

	// Concurrency is the number of workers. Messages with the same key always
	// land on the same worker, so per-key order is preserved.
	Concurrency  int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Consumer reads one topic and dispatches messages to a fixed worker pool.
// A message that still fails after MaxRetries attempts, or fails with a
// Permanent error, is handed to the dead-letter publisher (or logged and
// dropped when none is configured) and then committed. Offsets are committed
// per partition in order: a message is covered by a commit only once it and
// every earlier message of its partition have finished.
type Consumer struct {
	reader     MessageReader
	handler    Handler
	dlq        DeadLetterPublisher
	logger     *slog.Logger
	topic      string
	group      string
	workers    int
	maxRetries int
	backoff    time.Duration
	offsets    *offsetTracker
	commitMu   sync.Mutex
	closeOnce  sync.Once
}

// ConsumerOption customises a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetter routes exhausted and permanent failures to p.
func WithDeadLetter(p DeadLetterPublisher) ConsumerOption {
	return func(c *Consumer) { c.dlq = p }
}

// WithReader replaces the kafka-go reader, e.g. with a stub in tests.
func WithReader(r MessageReader) ConsumerOption {
	return func(c *Consumer) { c.reader = r }
}

// NewConsumer creates a consumer for cfg.Topic in cfg.GroupID.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		handler:    handler,
		logger:     logger.With(slog.String("topic", cfg.Topic), slog.String("consumer_group", cfg.GroupID)),
		topic:      cfg.Topic,
		group:      cfg.GroupID,
		workers:    max(cfg.Concurrency, 1),
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
		offsets:    newOffsetTracker(),
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.backoff <= 0 {
		c.backoff = defaultRetryBackoff
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.reader == nil {
		c.reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Topic,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}
	return c
}

// Start fetches messages until ctx is cancelled, then drains the workers
// and closes the reader.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("consumer started", slog.Int("workers", c.workers))

	queues := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range queues {
		queues[i] = make(chan kafka.Message, workerQueueSize)
		wg.Add(1)
		go func(q <-chan kafka.Message) {
			defer wg.Done()
			for msg := range q {
				c.process(ctx, msg)
			}
		}(queues[i])
	}

	err := c.fetchLoop(ctx, queues)

	for _, q := range queues {
		close(q)
	}
	wg.Wait()
	c.logger.Info("consumer stopped")

	if closeErr := c.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (c *Consumer) fetchLoop(ctx context.Context, queues []chan kafka.Message) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.logger.ErrorContext(ctx, "failed to fetch message", slog.String("error", err.Error()))
			if !sleep(ctx, c.backoff) {
				return nil
			}
			continue
		}
		ConsumerMessagesReceived.WithLabelValues(c.topic, c.group).Inc()
		c.offsets.track(msg)

		select {
		case queues[c.route(msg, len(queues))] <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// route picks the worker for msg by key hash, falling back to the partition
// for unkeyed messages.
func (c *Consumer) route(msg kafka.Message, n int) int {
	if n == 1 {
		return 0
	}
	if len(msg.Key) == 0 {
		return msg.Partition % n
	}
	h := fnv.New32a()
	_, _ = h.Write(msg.Key)
	return int(h.Sum32() % uint32(n))
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	start := time.Now()
	err := c.handle(ctx, msg)
	ConsumerProcessingDuration.WithLabelValues(c.topic, c.group).Observe(time.Since(start).Seconds())

	if err != nil {
		if ctx.Err() != nil {
			// Shutting down: never mark it finished, so neither it nor any later
			// offset of its partition is committed and both are redelivered.
			return
		}
		ConsumerMessagesFailed.WithLabelValues(c.topic, c.group).Inc()
		c.deadLetter(ctx, msg, err)
	} else {
		ConsumerMessagesProcessed.WithLabelValues(c.topic, c.group).Inc()
	}

	c.commit(ctx, msg)
}

// commit marks msg finished and commits the furthest contiguous finished
// offset of its partition. Commits are serialized so the committed offset
// never moves backwards; they outlive ctx so work finished while draining
// is not redelivered.
func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	upTo, ok := c.offsets.complete(msg)
	if !ok {
		return
	}

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), commitTimeout)
	defer cancel()
	if err := c.reader.CommitMessages(commitCtx, upTo); err != nil {
		c.logger.ErrorContext(ctx, "failed to commit message",
			slog.Int("partition", upTo.Partition),
			slog.Int64("offset", upTo.Offset),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	event, err := UnmarshalEvent(msg.Value)
	if err != nil {
		return Permanent(fmt.Errorf("decode event: %w", err))
	}
	ctx = ExtractTraceContext(ctx, msg.Headers)

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		lastErr = c.handler(ctx, event)
		if lastErr == nil || IsPermanent(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		c.logger.WarnContext(ctx, "handler failed, will retry",
			slog.String("event_id", event.EventID),
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", c.maxRetries),
			slog.String("error", lastErr.Error()),
		)
		if attempt < c.maxRetries && !sleep(ctx, time.Duration(attempt)*c.backoff) {
			return ctx.Err()
		}
	}
	return lastErr
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) {
	attrs := []any{
		slog.String("key", string(msg.Key)),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
		slog.Bool("permanent", IsPermanent(cause)),
		slog.String("error", cause.Error()),
	}

	if c.dlq == nil {
		c.logger.ErrorContext(ctx, "event dropped after failed processing", attrs...)
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, c.group); err != nil {
		c.logger.ErrorContext(ctx, "dead-letter publish failed, event dropped",
			append(attrs, slog.String("dlq_error", err.Error()))...)
		return
	}
	ConsumerDLQPublished.WithLabelValues(c.topic, c.group).Inc()
}

// Close closes the reader. It is safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
	})
	return err
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
