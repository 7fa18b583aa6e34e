package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/redis/go-redis/v9"

	"memories-social/internal/imtypes"
)

// RedisFeed is a Feed and Publisher over Redis pub/sub with one channel per
// conversation. Redis does not replay missed messages, which matches the
// reconnect contract: a dropped stream is reconciled through history.
type RedisFeed struct {
	client *redis.Client
	prefix string
	buffer int
}

// NewRedisFeed creates a feed publishing on channels named prefix+conversationID.
func NewRedisFeed(client *redis.Client, prefix string, buffer int) *RedisFeed {
	return &RedisFeed{client: client, prefix: prefix, buffer: buffer}
}

// Channel returns the pub/sub channel of a conversation.
func (f *RedisFeed) Channel(conversationID string) string {
	return f.prefix + conversationID
}

func (f *RedisFeed) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := f.client.Publish(ctx, f.Channel(event.ConversationID), payload).Err(); err != nil {
		return fmt.Errorf("publish to redis channel %s: %w: %w", f.Channel(event.ConversationID), imtypes.ErrTransient, err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, conversationID string) (Stream, error) {
	channel := f.Channel(conversationID)
	ps := f.client.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so that a failure surfaces here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe to redis channel %s: %w: %w", channel, imtypes.ErrTransient, err)
	}

	var closing atomic.Bool
	s := newStream(f.buffer, func() {
		closing.Store(true)
		_ = ps.Close()
	})

	go func() {
		for {
			msg, err := ps.ReceiveMessage(ctx)
			if err != nil {
				if closing.Load() || ctx.Err() != nil {
					s.finish(nil)
				} else {
					s.finish(fmt.Errorf("redis channel %s: %w: %w", channel, imtypes.ErrTransient, err))
				}
				return
			}

			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("Realtime redis feed: skipping malformed payload on %s: %v", channel, err)
				continue
			}
			if !s.offer(ev) {
				s.finish(ErrSlowConsumer)
				return
			}
		}
	}()

	return s, nil
}
