package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"memories-social/internal/models"
	"memories-social/internal/realtime"
)

// ChangeLogPublisher writes message change events to a topic keyed by
// conversation, so each conversation's events stay in order on one partition.
type ChangeLogPublisher struct {
	producer MessageProducer
	topic    string
}

// NewChangeLogPublisher returns a realtime.Publisher backed by Kafka.
func NewChangeLogPublisher(producer MessageProducer, topic string) *ChangeLogPublisher {
	return &ChangeLogPublisher{producer: producer, topic: topic}
}

func (p *ChangeLogPublisher) Publish(ctx context.Context, event realtime.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return p.producer.SendMessage(ctx, p.topic, []byte(event.ConversationID), payload)
}

// FriendRequestNotifier publishes friend request lifecycle events, keyed by
// the user to notify.
type FriendRequestNotifier struct {
	producer MessageProducer
	topic    string
}

func NewFriendRequestNotifier(producer MessageProducer, topic string) *FriendRequestNotifier {
	return &FriendRequestNotifier{producer: producer, topic: topic}
}

func (n *FriendRequestNotifier) NotifyFriendRequest(ctx context.Context, event models.FriendRequestEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化好友请求事件失败: %w", err)
	}
	return n.producer.SendMessage(ctx, n.topic, []byte(event.NotifyUserID), payload)
}
