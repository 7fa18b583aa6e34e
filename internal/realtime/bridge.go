package realtime

import (
	"context"
	"log"
	"sync"
	"time"

	"memories-social/internal/config"
	"memories-social/internal/models"
)

// Timeline is the part of the message timeline the bridge feeds.
type Timeline interface {
	IngestRealtime(ctx context.Context, conversationID string, event Event) error
	FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Subscription is the handle of one bridged conversation.
type Subscription struct {
	conversationID string
	cancel         context.CancelFunc
	done           chan struct{}
}

// ConversationID returns the conversation this subscription follows.
func (s *Subscription) ConversationID() string { return s.conversationID }

// Done is closed once the subscription has stopped forwarding events.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Bridge forwards feed events into a timeline and keeps the feed alive across
// transport drops: after resubscribing it reloads history to close the gap.
type Bridge struct {
	feed       Feed
	timeline   Timeline
	backoff    time.Duration
	maxBackoff time.Duration

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewBridge creates a bridge. Resubscribe delays come from cfg.
func NewBridge(feed Feed, timeline Timeline, cfg config.RealtimeConfig) *Bridge {
	backoff := cfg.ResubscribeBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff < backoff {
		maxBackoff = backoff
	}
	return &Bridge{
		feed:       feed,
		timeline:   timeline,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		subs:       make(map[string]*Subscription),
	}
}

// Subscribe starts following conversationID. ctx bounds only the initial
// subscribe; the subscription itself lives until Unsubscribe. Subscribing twice
// returns the existing handle.
func (b *Bridge) Subscribe(ctx context.Context, conversationID string) (*Subscription, error) {
	b.mu.Lock()
	sub, ok := b.subs[conversationID]
	b.mu.Unlock()
	if ok {
		return sub, nil
	}

	// The feed may wait on the network; the lock stays free meanwhile.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stream, err := b.feed.Subscribe(runCtx, conversationID)
	if err != nil {
		cancel()
		return nil, err
	}

	b.mu.Lock()
	if existing, ok := b.subs[conversationID]; ok {
		b.mu.Unlock()
		// a concurrent Subscribe got there first
		cancel()
		_ = stream.Close()
		return existing, nil
	}
	sub = &Subscription{
		conversationID: conversationID,
		cancel:         cancel,
		done:           make(chan struct{}),
	}
	b.subs[conversationID] = sub
	b.mu.Unlock()

	go b.run(runCtx, sub, stream)
	return sub, nil
}

// Unsubscribe stops following conversationID and waits for the forwarding
// goroutine to exit. Unknown or already released conversations are a no-op.
func (b *Bridge) Unsubscribe(conversationID string) {
	b.mu.Lock()
	sub, ok := b.subs[conversationID]
	if ok {
		delete(b.subs, conversationID)
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.cancel()
	<-sub.done
}

// UnsubscribeAll releases every subscription.
func (b *Bridge) UnsubscribeAll() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	for _, sub := range subs {
		<-sub.done
	}
}

// Subscribed reports whether conversationID currently has a subscription.
func (b *Bridge) Subscribed(conversationID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[conversationID]
	return ok
}

func (b *Bridge) run(ctx context.Context, sub *Subscription, stream Stream) {
	defer close(sub.done)
	defer b.forget(sub)

	id := sub.conversationID
	for {
		err := b.pump(ctx, id, stream)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			log.Printf("Realtime bridge: feed for conversation %s closed", id)
			return
		}

		log.Printf("Realtime bridge: feed for conversation %s dropped: %v", id, err)
		stream = b.resubscribe(ctx, id)
		if stream == nil {
			return
		}
		if _, err := b.timeline.FetchHistory(ctx, id); err != nil {
			log.Printf("Realtime bridge: history reconciliation for conversation %s failed: %v", id, err)
		}
	}
}

// pump forwards events until the stream ends or ctx is cancelled.
func (b *Bridge) pump(ctx context.Context, conversationID string, stream Stream) error {
	for {
		select {
		case ev := <-stream.Events():
			b.ingest(ctx, conversationID, ev)
		case <-stream.Done():
			// Forward what was buffered before the stream ended.
			for {
				select {
				case ev := <-stream.Events():
					b.ingest(ctx, conversationID, ev)
				default:
					return stream.Err()
				}
			}
		case <-ctx.Done():
			_ = stream.Close()
			return nil
		}
	}
}

func (b *Bridge) ingest(ctx context.Context, conversationID string, ev Event) {
	if err := b.timeline.IngestRealtime(ctx, conversationID, ev); err != nil {
		log.Printf("Realtime bridge: ingest into conversation %s failed: %v", conversationID, err)
	}
}

// resubscribe retries with doubling delay until it gets a stream or ctx ends.
func (b *Bridge) resubscribe(ctx context.Context, conversationID string) Stream {
	delay := b.backoff
	for {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		stream, err := b.feed.Subscribe(ctx, conversationID)
		if err == nil {
			log.Printf("Realtime bridge: resubscribed to conversation %s", conversationID)
			return stream
		}
		log.Printf("Realtime bridge: resubscribe to conversation %s failed: %v", conversationID, err)

		delay *= 2
		if delay > b.maxBackoff {
			delay = b.maxBackoff
		}
	}
}

func (b *Bridge) forget(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[sub.conversationID] == sub {
		delete(b.subs, sub.conversationID)
	}
}
