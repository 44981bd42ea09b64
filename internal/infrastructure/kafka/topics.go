package kafka

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

const (
	StockChangedPartitions = 6
	DefaultPartitions      = 3
)

// LedgerTopics lists the topics the service produces to or consumes from.
// Every topic gets a single-partition dead-letter companion: the publisher
// dead-letters produced events and the consumers dead-letter inbound ones.
func LedgerTopics(replicationFactor int, deadLetterSuffix string, stockChanged, produced, consumed []string) []kafka.TopicConfig {
	var configs []kafka.TopicConfig
	add := func(name string, partitions int) {
		configs = append(configs, kafka.TopicConfig{
			Topic:             name,
			NumPartitions:     partitions,
			ReplicationFactor: replicationFactor,
		})
		if deadLetterSuffix != "" {
			configs = append(configs, kafka.TopicConfig{
				Topic:             name + deadLetterSuffix,
				NumPartitions:     1,
				ReplicationFactor: replicationFactor,
			})
		}
	}

	for _, t := range stockChanged {
		add(t, StockChangedPartitions)
	}
	for _, t := range produced {
		add(t, DefaultPartitions)
	}
	for _, t := range consumed {
		add(t, DefaultPartitions)
	}
	return configs
}

// EnsureTopics creates missing topics through the cluster controller.
func EnsureTopics(ctx context.Context, brokers []string, topics []kafka.TopicConfig) error {
	if len(brokers) == 0 {
		return errors.New("no kafka brokers configured")
	}

	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return errors.Wrap(err, "dial kafka")
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return errors.Wrap(err, "find kafka controller")
	}

	controllerConn, err := kafka.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return errors.Wrap(err, "dial kafka controller")
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(topics...)
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		return errors.Wrap(err, "create topics")
	}
	return nil
}
