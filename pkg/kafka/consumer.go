package kafka

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

// maxHandlerRetries bounds in-process handler attempts per message. After the
// last attempt the message is committed (and sent to the DLQ when enabled) so
// a poison message cannot wedge the partition.
const maxHandlerRetries = 3

// Handler processes one decoded event.
type Handler func(ctx context.Context, event *Event) error

var consumerMessagesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "kafka_consumer_messages_total",
		Help: "Total messages fetched by Kafka consumers, by outcome",
	},
	[]string{"topic", "group", "result"},
)

// ConsumerConfig holds Kafka consumer settings. A consumer group acts as a
// durable queue binding: each group receives its own copy of the stream.
type ConsumerConfig struct {
	Brokers   []string
	GroupID   string
	Topic     string
	MinBytes  int
	MaxBytes  int
	EnableDLQ bool
}

// Consumer runs a fetch/handle/commit loop for a single topic and group.
type Consumer struct {
	reader    *kafka.Reader
	dlq       *DLQProducer
	handler   Handler
	logger    *slog.Logger
	closeOnce sync.Once
}

// NewConsumer creates a consumer. When cfg.EnableDLQ is set, messages that
// exhaust their retries are forwarded to the topic's dead-letter queue before
// being committed.
func NewConsumer(cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: cfg.MinBytes,
		MaxBytes: cfg.MaxBytes,
	})

	c := &Consumer{
		reader:  r,
		handler: handler,
		logger:  logger,
	}
	if cfg.EnableDLQ {
		c.dlq = NewDLQProducer(cfg.Brokers, logger)
	}
	return c
}

// Start consumes messages until the context is canceled.
func (c *Consumer) Start(ctx context.Context) error {
	topic := c.reader.Config().Topic
	group := c.reader.Config().GroupID

	c.logger.Info("consumer started",
		slog.String("topic", topic),
		slog.String("group", group),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping", slog.String("topic", topic))
			return c.Close()
		default:
		}

		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("failed to fetch message",
				slog.String("topic", topic),
				slog.String("error", err.Error()),
			)
			continue
		}

		event, err := UnmarshalEvent(msg.Value)
		if err != nil {
			// Undecodable payloads can never succeed; commit immediately.
			c.logger.Error("failed to unmarshal event, dropping message",
				slog.String("topic", msg.Topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.String("error", err.Error()),
			)
			consumerMessagesTotal.WithLabelValues(topic, group, "undecodable").Inc()
			c.deadLetter(ctx, msg, err, group)
			c.commit(ctx, msg)
			continue
		}

		if lastErr := c.handleWithRetries(ctx, event, msg); lastErr != nil {
			c.logger.Error("handler failed after all retries, skipping poison message",
				slog.String("event_type", event.EventType),
				slog.String("aggregate_id", event.AggregateID),
				slog.String("topic", msg.Topic),
				slog.Int("partition", msg.Partition),
				slog.Int64("offset", msg.Offset),
				slog.Int("retries", maxHandlerRetries),
				slog.String("error", lastErr.Error()),
			)
			consumerMessagesTotal.WithLabelValues(topic, group, "poison").Inc()
			c.deadLetter(ctx, msg, lastErr, group)
		} else {
			consumerMessagesTotal.WithLabelValues(topic, group, "ok").Inc()
		}

		c.commit(ctx, msg)
	}
}

// handleWithRetries runs the handler up to maxHandlerRetries times with a
// linear backoff between attempts. Returns the last error, or nil on success.
func (c *Consumer) handleWithRetries(ctx context.Context, event *Event, msg kafka.Message) error {
	var lastErr error
	for attempt := 1; attempt <= maxHandlerRetries; attempt++ {
		if lastErr = c.handler(ctx, event); lastErr == nil {
			return nil
		}

		c.logger.Warn("handler failed",
			slog.String("event_type", event.EventType),
			slog.String("aggregate_id", event.AggregateID),
			slog.String("topic", msg.Topic),
			slog.Int("attempt", attempt),
			slog.Int("max_retries", maxHandlerRetries),
			slog.String("error", lastErr.Error()),
		)

		if attempt < maxHandlerRetries {
			select {
			case <-ctx.Done():
				return lastErr
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
		}
	}
	return lastErr
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message, cause error, group string) {
	if c.dlq == nil {
		return
	}
	if err := c.dlq.Publish(ctx, msg, cause, group); err != nil {
		c.logger.Error("failed to forward message to DLQ",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Consumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		c.logger.Error("failed to commit message",
			slog.String("topic", msg.Topic),
			slog.Int64("offset", msg.Offset),
			slog.String("error", err.Error()),
		)
	}
}

// Close closes the reader and the DLQ producer. Safe to call multiple times.
func (c *Consumer) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.reader.Close()
		if c.dlq != nil {
			if dlqErr := c.dlq.Close(); err == nil {
				err = dlqErr
			}
		}
	})
	return err
}
