package realtime

import (
	"context"
	"fmt"
	"log"
	"sync"

	"memories-social/internal/imtypes"
)

// Broker is an in-process Feed and Publisher. Each conversation has its own set
// of streams; Publish fans an event out to them without blocking.
type Broker struct {
	mu      sync.RWMutex
	streams map[string]map[*stream]struct{}
	buffer  int
	closed  bool
}

// NewBroker returns a broker whose streams buffer up to buffer events.
func NewBroker(buffer int) *Broker {
	return &Broker{
		streams: make(map[string]map[*stream]struct{}),
		buffer:  buffer,
	}
}

func (b *Broker) Subscribe(ctx context.Context, conversationID string) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w: %w", conversationID, imtypes.ErrTransient, err)
	}

	var s *stream
	s = newStream(b.buffer, func() { b.remove(conversationID, s) })

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", conversationID, ErrFeedClosed)
	}
	set, ok := b.streams[conversationID]
	if !ok {
		set = make(map[*stream]struct{})
		b.streams[conversationID] = set
	}
	set[s] = struct{}{}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() { s.finish(nil) })
	return s, nil
}

// Publish delivers event to every stream of its conversation. Streams that
// cannot keep up are ended with ErrSlowConsumer.
func (b *Broker) Publish(ctx context.Context, event Event) error {
	var slow []*stream

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrFeedClosed
	}
	for s := range b.streams[event.ConversationID] {
		if !s.offer(event) {
			slow = append(slow, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range slow {
		log.Printf("Realtime broker: dropping slow subscriber of conversation %s", event.ConversationID)
		s.finish(ErrSlowConsumer)
	}
	return nil
}

// Interrupt ends every stream of conversationID with err, as a dropped
// connection would.
func (b *Broker) Interrupt(conversationID string, err error) {
	b.mu.RLock()
	victims := make([]*stream, 0, len(b.streams[conversationID]))
	for s := range b.streams[conversationID] {
		victims = append(victims, s)
	}
	b.mu.RUnlock()

	for _, s := range victims {
		s.finish(err)
	}
}

// Subscribers returns the number of open streams for conversationID.
func (b *Broker) Subscribers(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.streams[conversationID])
}

// Close ends all streams cleanly and rejects further use.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*stream
	for _, set := range b.streams {
		for s := range set {
			all = append(all, s)
		}
	}
	b.mu.Unlock()

	for _, s := range all {
		s.finish(nil)
	}
}

func (b *Broker) remove(conversationID string, s *stream) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set := b.streams[conversationID]
	delete(set, s)
	if len(set) == 0 {
		delete(b.streams, conversationID)
	}
}
