// Package consumer runs Kafka consumer group loops with inbox-based
// deduplication, so event handlers only need at-least-once semantics
// on their side effects.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/meetsync/meetsync/internal/inbox"
	"github.com/meetsync/meetsync/libs/kafkax"
)

// Handler processes one message. Returning an error keeps the message
// recorded in the inbox, so a retried delivery is still skipped; handlers
// should log and absorb transient failures they want redelivered.
type Handler func(ctx context.Context, msg kafka.Message) error

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

type Consumer struct {
	logger  *slog.Logger
	inbox   *inbox.Repository
	cfg     Config
	handler Handler
}

func New(logger *slog.Logger, inboxRepo *inbox.Repository, cfg Config, handler Handler) *Consumer {
	return &Consumer{logger: logger, inbox: inboxRepo, cfg: cfg, handler: handler}
}

// Run consumes until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	brokers := kafkax.SplitBrokers(c.cfg.Brokers)
	if len(brokers) == 0 {
		c.logger.Warn("consumer disabled, no kafka brokers configured", "topic", c.cfg.Topic)
		return
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		GroupID: c.cfg.GroupID,
		Topic:   c.cfg.Topic,
	})
	defer func() { _ = reader.Close() }()

	c.logger.Info("consumer started", "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read failed", "topic", c.cfg.Topic, "error", err)
			time.Sleep(time.Second)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) {
	msgCtx := kafkax.ExtractTraceContext(ctx, msg)
	msgCtx, span := otel.Tracer("consumer").Start(msgCtx, "kafka.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination.name", msg.Topic),
		),
	)
	defer span.End()

	meta := kafkax.ExtractEventMeta(msg)
	fresh, err := c.inbox.Record(msgCtx, meta.EventID, meta.EventType)
	if err != nil {
		span.RecordError(err)
		c.logger.Error("inbox record failed", "event_id", meta.EventID, "error", err)
		return
	}
	if !fresh {
		c.logger.Info("duplicate event skipped", "event_id", meta.EventID, "topic", msg.Topic)
		return
	}

	if err := c.handler(msgCtx, msg); err != nil {
		span.RecordError(err)
		c.logger.Error("event handler failed", "event_id", meta.EventID, "topic", msg.Topic, "error", err)
	}
}
