package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/metrics"
	"github.com/pricewatch/crypto-notify/pkg/models"
	"github.com/pricewatch/crypto-notify/pkg/retry"
)

// Reader abstracts the Kafka subscription stream
type Reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// ReaderFactory opens a fresh subscription. The consumer calls it again after
// a transport failure, so each invocation must return an independent reader.
type ReaderFactory func() Reader

// Handler receives each decoded change event. It is invoked synchronously:
// the consumer does not read the next message until the handler returns.
type Handler func(event models.ChangeEvent)

// Consumer turns broker messages back into callbacks. It runs until the
// context is cancelled, resubscribing after transport failures with bounded
// backoff. Recovery is an iterative loop, never recursion.
type Consumer struct {
	newReader ReaderFactory
	backoff   retry.Policy
	logger    *zap.Logger
}

func NewConsumer(factory ReaderFactory, backoff retry.Policy, logger *zap.Logger) *Consumer {
	return &Consumer{
		newReader: factory,
		backoff:   backoff,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled. Transport failures are logged and the
// subscription is rebuilt indefinitely; only cancellation ends the loop.
func (c *Consumer) Run(ctx context.Context, handler Handler) error {
	delay := c.backoff.InitialDelay

	for {
		reader := c.newReader()
		processed, err := c.consume(ctx, reader, handler)
		if cerr := reader.Close(); cerr != nil {
			c.logger.Warn("Failed to close reader", zap.Error(cerr))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if processed > 0 {
			// The previous subscription was healthy; start the schedule over
			delay = c.backoff.InitialDelay
		}

		metrics.ConsumerReconnectsTotal.Inc()
		c.logger.Error("Subscription failed, reconnecting",
			zap.Error(err),
			zap.Duration("delay", delay))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if c.backoff.MaxDelay > 0 && delay > c.backoff.MaxDelay {
			delay = c.backoff.MaxDelay
		}
	}
}

// consume reads messages until the subscription fails or ctx is cancelled.
// Malformed payloads are logged and skipped; they never halt consumption.
func (c *Consumer) consume(ctx context.Context, reader Reader, handler Handler) (int, error) {
	processed := 0
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			return processed, err
		}

		var event models.ChangeEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			metrics.EventsConsumedTotal.WithLabelValues("decode_error").Inc()
			c.logger.Error("Skipping malformed message",
				zap.Error(err),
				zap.String("topic", msg.Topic),
				zap.Int64("offset", msg.Offset))
			continue
		}

		metrics.EventsConsumedTotal.WithLabelValues("ok").Inc()
		handler(event)
		processed++
	}
}
