// Package consumer runs the saga's reactive handlers: fetch a message,
// skip duplicates, invoke the handler with bounded retries, dead-letter
// what still fails, and always commit the offset. A handler resolves every
// message to exactly one of its defined outcomes or the message ends up on
// the dead-letter topic; no saga leg is silently lost.
package consumer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/orderflow/orderflow/internal/events"
	"github.com/orderflow/orderflow/pkg/tracing"
)

type HandleFunc func(ctx context.Context, msg kafka.Message) error

// Reader is the subset of kafka.Reader the loop needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type DeadLetterWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Deduper is the processed-event set; satisfied by idempotency.Store.
// Seen must not write: a message is marked only after it resolved, so a
// crash between check and resolution leaves redelivery free to handle it.
type Deduper interface {
	EventKey(eventID string) string
	OffsetKey(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable; the message goes straight to the
// dead-letter topic.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

type Config struct {
	Log         *slog.Logger
	Reader      Reader
	Handle      HandleFunc
	Idempotency Deduper
	DeadLetter  DeadLetterWriter
	DLQTopic    string
	Name        string // span and log identity, e.g. "user.order-created"
	MaxAttempts int
	Backoff     time.Duration
}

type Consumer struct {
	cfg    Config
	tracer trace.Tracer
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func New(cfg Config) *Consumer {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Consumer{cfg: cfg, tracer: otel.Tracer(cfg.Name)}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.cfg.Reader.Close()

	for {
		msg, err := c.cfg.Reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		c.process(ctx, msg)
		// The inbound message is acknowledged regardless of outcome;
		// failures have already been retried or dead-lettered.
		_ = c.cfg.Reader.CommitMessages(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	key := c.idempotencyKey(msg)
	seen, err := c.cfg.Idempotency.Seen(ctx, key)
	if err != nil {
		// Fall through and handle anyway: the state layer is idempotent.
		c.cfg.Log.Warn("idempotency check failed", "consumer", c.cfg.Name, "err", err)
	} else if seen {
		c.cfg.Log.Info("duplicate message skipped", "consumer", c.cfg.Name, "key", key)
		return
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, c.cfg.Name)
	defer span.End()

	var last error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		last = c.cfg.Handle(msgCtx, msg)
		if last == nil {
			c.markProcessed(msgCtx, key)
			return
		}
		if IsPermanent(last) {
			break
		}
		c.cfg.Log.Warn("handler failed, retrying",
			"consumer", c.cfg.Name, "attempt", attempt, "err", last)
		if attempt < c.cfg.MaxAttempts {
			select {
			case <-msgCtx.Done():
				return
			case <-time.After(c.cfg.Backoff * time.Duration(attempt)):
			}
		}
	}

	span.RecordError(last)
	c.cfg.Log.Error("handler exhausted, dead-lettering",
		"consumer", c.cfg.Name, "topic", msg.Topic, "offset", msg.Offset, "err", last)
	if err := c.deadLetter(msgCtx, msg, last); err == nil {
		c.markProcessed(msgCtx, key)
	}
}

// markProcessed runs only once the message is resolved (handled or
// dead-lettered). A failed mark is tolerable: the state layer is
// idempotent, so a redelivered message re-resolves harmlessly.
func (c *Consumer) markProcessed(ctx context.Context, key string) {
	if err := c.cfg.Idempotency.Mark(ctx, key); err != nil {
		c.cfg.Log.Warn("idempotency mark failed", "consumer", c.cfg.Name, "key", key, "err", err)
	}
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	if c.cfg.DeadLetter == nil || c.cfg.DLQTopic == "" {
		return nil
	}
	dead := kafka.Message{
		Topic:   c.cfg.DLQTopic,
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: append(msg.Headers, kafka.Header{Key: "dlq_error", Value: []byte(cause.Error())}),
	}
	if err := c.cfg.DeadLetter.WriteMessages(ctx, dead); err != nil {
		c.cfg.Log.Error("dead-letter publish failed", "consumer", c.cfg.Name, "err", err)
		return err
	}
	return nil
}

func (c *Consumer) idempotencyKey(msg kafka.Message) string {
	if id := HeaderValue(msg.Headers, events.HeaderEventID); id != "" {
		return c.cfg.Idempotency.EventKey(id)
	}
	return c.cfg.Idempotency.OffsetKey(msg.Topic, msg.Partition, msg.Offset)
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
