package broker

import (
	"context"
	"encoding/json"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/metrics"
	"github.com/pricewatch/crypto-notify/pkg/models"
)

// Writer abstracts the Kafka producer
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Notifier is the producer side of the pipeline. It is the sole entry point
// collaborators use to announce a price transition.
type Notifier struct {
	writer    Writer
	threshold float64
	clock     clockwork.Clock
	logger    *zap.Logger
}

func NewNotifier(writer Writer, threshold float64, clock clockwork.Clock, logger *zap.Logger) *Notifier {
	return &Notifier{
		writer:    writer,
		threshold: threshold,
		clock:     clock,
		logger:    logger,
	}
}

// NotifyPriceChange classifies the transition and publishes it. Publishing is
// best-effort: failures are logged and swallowed so that the operation that
// triggered the notification (a valuation refresh, say) never fails with it.
func (n *Notifier) NotifyPriceChange(ctx context.Context, symbol string, oldPrice, newPrice float64, userID int64) models.ChangeEvent {
	event := models.NewChangeEvent(symbol, oldPrice, newPrice, userID, n.clock.Now().UTC(), n.threshold)
	n.publish(ctx, event)
	return event
}

func (n *Notifier) publish(ctx context.Context, event models.ChangeEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("Failed to encode change event", zap.Error(err), zap.String("symbol", event.Symbol))
		return
	}

	// Keyed by symbol so the broker preserves per-symbol ordering
	msgs := []kafka.Message{{
		Topic: TopicAllUpdates,
		Key:   []byte(event.Symbol),
		Value: payload,
	}}
	if event.IsSignificant {
		msgs = append(msgs, kafka.Message{
			Topic: TopicSignificantChanges,
			Key:   []byte(event.Symbol),
			Value: payload,
		})
	}

	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		for _, m := range msgs {
			metrics.EventsPublishedTotal.WithLabelValues(m.Topic, "error").Inc()
		}
		n.logger.Error("Failed to publish change event",
			zap.Error(err),
			zap.String("symbol", event.Symbol),
			zap.Float64("percentage_change", event.PercentageChange))
		return
	}

	for _, m := range msgs {
		metrics.EventsPublishedTotal.WithLabelValues(m.Topic, "ok").Inc()
	}
	n.logger.Debug("Published change event",
		zap.String("symbol", event.Symbol),
		zap.Float64("percentage_change", event.PercentageChange),
		zap.Bool("significant", event.IsSignificant))
}
