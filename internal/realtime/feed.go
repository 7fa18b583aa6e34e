// Package realtime carries message change events from the store to the timelines
// that have a conversation open.
package realtime

import (
	"context"
	"errors"
	"sync"

	"memories-social/internal/models"
)

// Action is the kind of change a feed reports.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is one change notification for a message record.
type Event struct {
	Action         Action          `json:"action"`
	ConversationID string          `json:"conversationId"`
	Record         *models.Message `json:"record,omitempty"`
}

// NewCreateEvent describes the creation of m.
func NewCreateEvent(m *models.Message) Event {
	return Event{Action: ActionCreate, ConversationID: m.ConversationID, Record: m}
}

var (
	// ErrFeedClosed is returned when subscribing to a feed that has shut down.
	ErrFeedClosed = errors.New("realtime: feed closed")
	// ErrSlowConsumer ends a stream whose buffer overflowed. Events were lost,
	// so the subscriber has to reconcile from history.
	ErrSlowConsumer = errors.New("realtime: subscriber fell behind")
)

// Stream is a live subscription to one conversation.
//
// Events is never closed; Done is closed when the stream ends. Err reports why
// it ended: nil after Close or a clean shutdown, non-nil after a transport failure.
type Stream interface {
	Events() <-chan Event
	Done() <-chan struct{}
	Err() error
	Close() error
}

// Feed opens streams filtered to a single conversation.
type Feed interface {
	Subscribe(ctx context.Context, conversationID string) (Stream, error)
}

// Publisher pushes change events to whoever listens on a feed.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// stream is the Stream shared by the feed implementations.
type stream struct {
	events chan Event
	done   chan struct{}

	once    sync.Once
	mu      sync.Mutex
	err     error
	onClose func()
}

func newStream(buffer int, onClose func()) *stream {
	if buffer <= 0 {
		buffer = 64
	}
	return &stream{
		events:  make(chan Event, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

func (s *stream) Events() <-chan Event  { return s.events }
func (s *stream) Done() <-chan struct{} { return s.done }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() error {
	s.finish(nil)
	return nil
}

// offer queues ev without blocking. It reports false when the buffer is full.
func (s *stream) offer(ev Event) bool {
	select {
	case <-s.done:
		return true
	default:
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *stream) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		if s.onClose != nil {
			s.onClose()
		}
	})
}
