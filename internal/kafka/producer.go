package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"memories-social/internal/config"
	"memories-social/internal/imtypes"
)

// MessageProducer writes records to Kafka topics.
type MessageProducer interface {
	// SendMessage produces one record and waits for its delivery report.
	SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error
	Close()
}

// confluentKafkaProducer is an implementation of MessageProducer using confluent-kafka-go.
type confluentKafkaProducer struct {
	producer *kafka.Producer
}

// NewConfluentKafkaProducer creates a producer for the configured brokers.
func NewConfluentKafkaProducer(cfg config.KafkaConfig) (MessageProducer, error) {
	configMap := &kafka.ConfigMap{
		"bootstrap.servers":  strings.Join(cfg.Brokers, ","),
		"security.protocol":  cfg.Protocol,
		"acks":               "all",
		"enable.idempotence": true,
	}
	if cfg.ClientID != "" {
		_ = configMap.SetKey("client.id", cfg.ClientID)
	}

	p, err := kafka.NewProducer(configMap)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return &confluentKafkaProducer{producer: p}, nil
}

func (p *confluentKafkaProducer) SendMessage(ctx context.Context, topic string, key []byte, payload []byte) error {
	// Buffered so a late delivery report never blocks librdkafka after we gave up waiting.
	deliveryChan := make(chan kafka.Event, 1)

	record := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            key,
		Value:          payload,
		Timestamp:      time.Now(),
	}
	if err := p.producer.Produce(record, deliveryChan); err != nil {
		return fmt.Errorf("kafka producer failed to enqueue record for topic %s: %w: %w", topic, imtypes.ErrTransient, err)
	}

	select {
	case e := <-deliveryChan:
		m, ok := e.(*kafka.Message)
		if !ok {
			return fmt.Errorf("kafka producer: unexpected delivery event %T: %v", e, e)
		}
		if m.TopicPartition.Error != nil {
			return fmt.Errorf("kafka producer: delivery to %s failed: %w: %w", topic, imtypes.ErrTransient, m.TopicPartition.Error)
		}
		return nil
	case <-ctx.Done():
		// The record may still be delivered; the caller only stops waiting.
		return fmt.Errorf("kafka producer: waiting for delivery to %s: %w: %w", topic, imtypes.ErrTransient, ctx.Err())
	}
}

// Close flushes outstanding records and releases the producer.
func (p *confluentKafkaProducer) Close() {
	if p.producer == nil {
		return
	}
	log.Println("Closing Kafka producer...")
	if remaining := p.producer.Flush(15 * 1000); remaining > 0 {
		log.Printf("Warning: %d records still outstanding after flush, producer closing.", remaining)
	}
	p.producer.Close()
	p.producer = nil
	log.Println("Kafka producer closed.")
}
