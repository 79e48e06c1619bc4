// Package broker is the durable pub/sub layer between the price-ingestion
// path and the realtime gateway. It owns topic provisioning, the producer
// used by NotifyPriceChange, and the consumer loop feeding the fan-out.
package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pricewatch/crypto-notify/pkg/config"
	"github.com/pricewatch/crypto-notify/pkg/retry"
)

// Broker holds the shared Kafka handles for one service process.
type Broker struct {
	cfg    config.KafkaConfig
	logger *zap.Logger
	writer *kafka.Writer
	admin  Admin
}

// Connect dials the cluster with bounded backoff and idempotently ensures
// both topics exist. Exhausting the budget is fatal: the caller must not
// report readiness without a broker connection.
func Connect(ctx context.Context, cfg config.KafkaConfig, logger *zap.Logger) (*Broker, error) {
	policy := retry.Policy{
		MaxAttempts:  cfg.ConnectMaxAttempts,
		InitialDelay: cfg.ConnectInitialDelay,
		MaxDelay:     cfg.ConnectMaxDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			logger.Warn("Kafka connect failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}

	var admin Admin
	err := retry.DoVoid(ctx, policy, retry.Transient, func() error {
		a, err := DialAdmin(ctx, cfg.Brokers)
		if err != nil {
			return err
		}
		if err := EnsureTopics(ctx, a, logger, Topics()...); err != nil {
			a.Close()
			return err
		}
		admin = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("broker connect: %w", err)
	}

	writer := &kafka.Writer{
		Addr: kafka.TCP(cfg.Brokers...),
		// Hash balancer keeps every message for a symbol on one partition
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}

	logger.Info("Connected to Kafka", zap.Strings("brokers", cfg.Brokers))
	return &Broker{cfg: cfg, logger: logger, writer: writer, admin: admin}, nil
}

// Notifier returns the producer-side API bound to this broker connection.
func (b *Broker) Notifier(threshold float64) *Notifier {
	return NewNotifier(b.writer, threshold, clockwork.NewRealClock(), b.logger)
}

// Consumer returns a consumer over both topics. The group keeps committed
// offsets, so a restarted consumer resumes at new messages; StartOffset only
// applies before the group has ever committed, giving a first-start replay.
func (b *Broker) Consumer(groupID string) *Consumer {
	factory := func() Reader {
		return kafka.NewReader(kafka.ReaderConfig{
			Brokers:           b.cfg.Brokers,
			GroupID:           groupID,
			GroupTopics:       Topics(),
			StartOffset:       kafka.FirstOffset,
			MinBytes:          1,
			MaxBytes:          10e6,
			MaxWait:           200 * time.Millisecond,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    10 * time.Second,
		})
	}

	backoff := retry.Policy{
		InitialDelay: b.cfg.ConnectInitialDelay,
		MaxDelay:     b.cfg.ConnectMaxDelay,
	}
	return NewConsumer(factory, backoff, b.logger)
}

// Close tears down producer and admin concurrently. The process is exiting,
// so individual failures are logged rather than raised.
func (b *Broker) Close() {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.writer.Close(); err != nil {
			b.logger.Error("Error closing Kafka writer", zap.Error(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.admin.Close(); err != nil {
			b.logger.Error("Error closing Kafka admin", zap.Error(err))
		}
	}()

	wg.Wait()
	b.logger.Info("Kafka connections closed")
}
