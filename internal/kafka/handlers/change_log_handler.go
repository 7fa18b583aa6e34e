package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"memories-social/internal/realtime"
)

// ChangeLogRelay republishes message change events read from Kafka onto a
// local feed, typically a realtime.Broker the chat sessions subscribe to.
type ChangeLogRelay struct {
	local realtime.Publisher
}

func NewChangeLogRelay(local realtime.Publisher) *ChangeLogRelay {
	return &ChangeLogRelay{local: local}
}

// HandleChange is a kafka.MessageHandler.
func (r *ChangeLogRelay) HandleChange(ctx context.Context, msg *kafka.Message) error {
	var event realtime.Event
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		log.Printf("Kafka: skipping malformed change event at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}
	if event.ConversationID == "" {
		return nil
	}
	return r.local.Publish(ctx, event)
}
