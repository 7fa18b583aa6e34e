package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
)

func testEvent(conversationID, id string) Event {
	m := &models.Message{ConversationID: conversationID, SenderID: "u", Content: id}
	m.ID = id
	m.CreatedAt = time.Now().UTC()
	return NewCreateEvent(m)
}

func receive(t *testing.T, s Stream) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestBrokerFansOutPerConversation(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(8)
	defer b.Close()

	s1, err := b.Subscribe(ctx, "c1")
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx, "c1")
	require.NoError(t, err)
	other, err := b.Subscribe(ctx, "c2")
	require.NoError(t, err)
	assert.Equal(t, 2, b.Subscribers("c1"))

	require.NoError(t, b.Publish(ctx, testEvent("c1", "m1")))

	assert.Equal(t, "m1", receive(t, s1).Record.ID)
	assert.Equal(t, "m1", receive(t, s2).Record.ID)
	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other conversation: %+v", ev)
	default:
	}
}

func TestBrokerEndsSlowConsumer(t *testing.T) {
	ctx := context.Background()
	b := NewBroker(1)
	defer b.Close()

	s, err := b.Subscribe(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, testEvent("c1", "m1")))
	require.NoError(t, b.Publish(ctx, testEvent("c1", "m2")))

	<-s.Done()
	assert.ErrorIs(t, s.Err(), ErrSlowConsumer)
	assert.Equal(t, 0, b.Subscribers("c1"))
	assert.Equal(t, "m1", receive(t, s).Record.ID, "buffered events stay readable")
}

func TestBrokerStreamLifecycle(t *testing.T) {
	b := NewBroker(4)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := b.Subscribe(ctx, "c1")
	require.NoError(t, err)
	cancel()
	<-s.Done()
	assert.NoError(t, s.Err())
	assert.Eventually(t, func() bool { return b.Subscribers("c1") == 0 }, time.Second, 10*time.Millisecond)

	s, err = b.Subscribe(context.Background(), "c1")
	require.NoError(t, err)
	boom := errors.New("connection reset")
	b.Interrupt("c1", boom)
	<-s.Done()
	assert.ErrorIs(t, s.Err(), boom)

	s, err = b.Subscribe(context.Background(), "c1")
	require.NoError(t, err)
	b.Close()
	<-s.Done()
	assert.NoError(t, s.Err())

	_, err = b.Subscribe(context.Background(), "c1")
	assert.ErrorIs(t, err, ErrFeedClosed)
	assert.ErrorIs(t, b.Publish(context.Background(), testEvent("c1", "m")), ErrFeedClosed)
}

func TestBrokerSubscribeWithCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewBroker(1).Subscribe(ctx, "c1")
	assert.ErrorIs(t, err, imtypes.ErrTransient)
}

func TestRedisFeedChannelAndUnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	f := NewRedisFeed(client, "chat:", 4)

	assert.Equal(t, "chat:c1", f.Channel("c1"))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := f.Subscribe(ctx, "c1")
	assert.ErrorIs(t, err, imtypes.ErrTransient)
	assert.ErrorIs(t, f.Publish(ctx, testEvent("c1", "m1")), imtypes.ErrTransient)
}
