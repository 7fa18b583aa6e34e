package kafkahandlers

import (
	"context"
	"encoding/json"
	"log"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
)

// UserDeliverer pushes a frame to every socket of a user and reports how many got it.
type UserDeliverer interface {
	DeliverToUser(userID string, env *imtypes.ServerEnvelope) int
}

// FriendRequestHandler forwards friend request lifecycle events to the
// connected sockets of the user they concern.
type FriendRequestHandler struct {
	deliverer UserDeliverer
}

func NewFriendRequestHandler(deliverer UserDeliverer) *FriendRequestHandler {
	if deliverer == nil {
		log.Panic("UserDeliverer cannot be nil")
	}
	return &FriendRequestHandler{deliverer: deliverer}
}

// HandleFriendRequest is a kafka.MessageHandler.
func (h *FriendRequestHandler) HandleFriendRequest(ctx context.Context, msg *kafka.Message) error {
	var event models.FriendRequestEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		// A malformed record will never parse; commit it and move on.
		log.Printf("Kafka: skipping malformed friend request event at offset %v: %v", msg.TopicPartition.Offset, err)
		return nil
	}
	if event.NotifyUserID == "" {
		return nil
	}

	env, err := imtypes.NewServerEnvelope(imtypes.EnvelopeFriendRequest, "", event)
	if err != nil {
		log.Printf("Kafka: cannot encode friend request event %s: %v", event.Request.ID, err)
		return nil
	}
	n := h.deliverer.DeliverToUser(event.NotifyUserID, env)
	log.Printf("Kafka: friend request %s (%s) delivered to %d socket(s) of user %s", event.Request.ID, event.Type, n, event.NotifyUserID)
	return nil
}
