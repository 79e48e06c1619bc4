package broker

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const topicPartitions = 4

// Admin is the narrow administrative surface the pipeline needs. Keeping it
// this small makes topic provisioning testable without a live cluster.
type Admin interface {
	ListTopics(ctx context.Context) ([]string, error)
	CreateTopics(ctx context.Context, configs ...kafka.TopicConfig) error
	Close() error
}

type kafkaAdmin struct {
	conn           *kafka.Conn
	controllerConn *kafka.Conn
}

var _ Admin = (*kafkaAdmin)(nil)

// DialAdmin connects to the first reachable broker and resolves the cluster
// controller, which is the only node that accepts topic creation.
func DialAdmin(ctx context.Context, brokers []string) (Admin, error) {
	var conn *kafka.Conn
	var err error
	for _, addr := range brokers {
		conn, err = kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dial brokers %v: %w", brokers, err)
	}

	controller, err := conn.Controller()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("resolve controller: %w", err)
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("dial controller %s: %w", controllerAddr, err)
	}

	return &kafkaAdmin{conn: conn, controllerConn: controllerConn}, nil
}

func (a *kafkaAdmin) ListTopics(ctx context.Context) ([]string, error) {
	partitions, err := a.conn.ReadPartitions()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var topics []string
	for _, p := range partitions {
		if !seen[p.Topic] {
			seen[p.Topic] = true
			topics = append(topics, p.Topic)
		}
	}
	return topics, nil
}

func (a *kafkaAdmin) CreateTopics(ctx context.Context, configs ...kafka.TopicConfig) error {
	return a.controllerConn.CreateTopics(configs...)
}

func (a *kafkaAdmin) Close() error {
	err := a.conn.Close()
	if cerr := a.controllerConn.Close(); err == nil {
		err = cerr
	}
	return err
}

// EnsureTopics idempotently creates any of the named topics that do not exist
// yet. Topics that are already present are left untouched.
func EnsureTopics(ctx context.Context, admin Admin, logger *zap.Logger, names ...string) error {
	existing, err := admin.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	present := make(map[string]bool, len(existing))
	for _, t := range existing {
		present[t] = true
	}

	var missing []kafka.TopicConfig
	for _, name := range names {
		if present[name] {
			continue
		}
		missing = append(missing, kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     topicPartitions,
			ReplicationFactor: 1,
		})
	}

	if len(missing) == 0 {
		return nil
	}

	if err := admin.CreateTopics(ctx, missing...); err != nil {
		return fmt.Errorf("create topics: %w", err)
	}

	for _, tc := range missing {
		logger.Info("Created topic", zap.String("topic", tc.Topic))
	}
	return nil
}
