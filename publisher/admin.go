package publisher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// kafkaAdmin creates topics through the cluster controller.
type kafkaAdmin struct {
	brokers           []string
	clientID          string
	numPartitions     int
	replicationFactor int
}

func (a *kafkaAdmin) EnsureTopic(ctx context.Context, topic string) error {
	dialer := &kafka.Dialer{ClientID: a.clientID, Timeout: 10 * time.Second}

	conn, err := a.dialAny(ctx, dialer)
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("find kafka controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("dial kafka controller: %w", err)
	}
	defer ctrl.Close()

	partitions, replication := a.numPartitions, a.replicationFactor
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}
	err = ctrl.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     partitions,
		ReplicationFactor: replication,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	return nil
}

func (a *kafkaAdmin) dialAny(ctx context.Context, dialer *kafka.Dialer) (*kafka.Conn, error) {
	var lastErr error
	for _, broker := range a.brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return nil, fmt.Errorf("dial kafka: %w", lastErr)
}
