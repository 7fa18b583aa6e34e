package kafkahandlers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/realtime"
)

func kafkaMessage(t *testing.T, v any) *kafka.Message {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return &kafka.Message{Value: raw}
}

func TestChangeLogRelayRepublishesLocally(t *testing.T) {
	ctx := context.Background()
	broker := realtime.NewBroker(8)
	defer broker.Close()
	stream, err := broker.Subscribe(ctx, "c1")
	require.NoError(t, err)

	relay := NewChangeLogRelay(broker)
	m := &models.Message{ConversationID: "c1", Content: "relayed"}
	m.ID = "m1"
	require.NoError(t, relay.HandleChange(ctx, kafkaMessage(t, realtime.NewCreateEvent(m))))

	select {
	case ev := <-stream.Events():
		assert.Equal(t, "m1", ev.Record.ID)
	case <-time.After(time.Second):
		t.Fatal("event not relayed")
	}

	// malformed and unaddressed records are skipped without error
	assert.NoError(t, relay.HandleChange(ctx, &kafka.Message{Value: []byte("nope")}))
	assert.NoError(t, relay.HandleChange(ctx, kafkaMessage(t, realtime.Event{Action: realtime.ActionCreate})))
	assert.Empty(t, stream.Events())
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered map[string][]*imtypes.ServerEnvelope
}

func (d *fakeDeliverer) DeliverToUser(userID string, env *imtypes.ServerEnvelope) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delivered == nil {
		d.delivered = make(map[string][]*imtypes.ServerEnvelope)
	}
	d.delivered[userID] = append(d.delivered[userID], env)
	return 1
}

func TestFriendRequestHandlerDeliversToNotifiedUser(t *testing.T) {
	ctx := context.Background()
	d := &fakeDeliverer{}
	h := NewFriendRequestHandler(d)

	req := models.FriendRequest{SenderID: "u1", RecipientID: "u2", Status: models.FriendRequestStatusPending}
	req.ID = "fr1"
	ev := models.FriendRequestEvent{Type: models.FriendRequestEventCreated, NotifyUserID: "u2", Request: req}
	require.NoError(t, h.HandleFriendRequest(ctx, kafkaMessage(t, ev)))

	require.Len(t, d.delivered["u2"], 1)
	env := d.delivered["u2"][0]
	assert.Equal(t, imtypes.EnvelopeFriendRequest, env.Type)
	var got models.FriendRequestEvent
	require.NoError(t, json.Unmarshal(env.Payload, &got))
	assert.Equal(t, "fr1", got.Request.ID)
	assert.Equal(t, models.FriendRequestEventCreated, got.Type)

	assert.NoError(t, h.HandleFriendRequest(ctx, &kafka.Message{Value: []byte("{")}))
	assert.NoError(t, h.HandleFriendRequest(ctx, kafkaMessage(t, models.FriendRequestEvent{Type: models.FriendRequestEventAccepted})))
	assert.Len(t, d.delivered, 1)
}

func TestNewFriendRequestHandlerRequiresDeliverer(t *testing.T) {
	assert.Panics(t, func() { NewFriendRequestHandler(nil) })
}
