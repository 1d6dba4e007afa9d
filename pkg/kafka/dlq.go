package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultDLQPrefix prefixes dead-letter topic names.
const DefaultDLQPrefix = "search.dlq"

// MessageWriter is the subset of *kafka.Writer used by producers.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DLQProducer republishes failed messages to `<prefix>.<original topic>`
// with the failure context attached as headers.
type DLQProducer struct {
	writer MessageWriter
	prefix string
	logger *slog.Logger
}

// NewDLQProducer creates a DLQ producer. An empty prefix selects DefaultDLQPrefix.
func NewDLQProducer(brokers []string, prefix string, logger *slog.Logger) *DLQProducer {
	return newDLQProducer(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}, prefix, logger)
}

func newDLQProducer(w MessageWriter, prefix string, logger *slog.Logger) *DLQProducer {
	if prefix == "" {
		prefix = DefaultDLQPrefix
	}
	return &DLQProducer{writer: w, prefix: prefix, logger: logger}
}

// Topic returns the dead-letter topic for originalTopic.
func (d *DLQProducer) Topic(originalTopic string) string {
	return d.prefix + "." + originalTopic
}

// Publish implements DeadLetterPublisher.
func (d *DLQProducer) Publish(ctx context.Context, msg kafka.Message, cause error, consumerGroup string) error {
	topic := d.Topic(msg.Topic)

	headers := make([]kafka.Header, 0, len(msg.Headers)+6)
	headers = append(headers, msg.Headers...)
	headers = append(headers,
		kafka.Header{Key: "dlq.original_topic", Value: []byte(msg.Topic)},
		kafka.Header{Key: "dlq.original_partition", Value: []byte(strconv.Itoa(msg.Partition))},
		kafka.Header{Key: "dlq.original_offset", Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		kafka.Header{Key: "dlq.consumer_group", Value: []byte(consumerGroup)},
		kafka.Header{Key: "dlq.permanent", Value: []byte(strconv.FormatBool(IsPermanent(cause)))},
	)
	if cause != nil {
		headers = append(headers, kafka.Header{Key: "dlq.error", Value: []byte(cause.Error())})
	}

	err := d.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("publish to DLQ %s: %w", topic, err)
	}

	d.logger.WarnContext(ctx, "message sent to DLQ",
		slog.String("dlq_topic", topic),
		slog.String("original_topic", msg.Topic),
		slog.Int("partition", msg.Partition),
		slog.Int64("offset", msg.Offset),
	)
	return nil
}

// Close closes the DLQ producer.
func (d *DLQProducer) Close() error {
	return d.writer.Close()
}
