package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/realtime"
	"memories-social/internal/session"
	"memories-social/internal/storage"
)

var (
	ErrEmptyMessage   = fmt.Errorf("消息内容不能为空: %w", imtypes.ErrInvalidArgument)
	ErrTimelineClosed = errors.New("message timeline closed")
)

// ParticipantChecker authorizes access to a conversation.
type ParticipantChecker interface {
	RequireParticipant(ctx context.Context, conversationID, userID string) error
}

// AppendHook observes every message newly inserted into a cached timeline,
// whether it came from Send or from the realtime feed. It runs on the
// conversation's goroutine and must not block.
type AppendHook func(conversationID string, msg models.Message)

// MessageTimeline is a per-conversation ordered message cache fed by local
// sends and by the realtime feed. It implements realtime.Timeline.
type MessageTimeline interface {
	// Send persists a message from the session user and appends it to the cache.
	// On failure the cache is left unchanged.
	Send(ctx context.Context, sess session.Session, conversationID, content string) (*models.Message, error)
	// IngestRealtime inserts a created message delivered by the feed, unless it is
	// already cached or belongs to another conversation.
	IngestRealtime(ctx context.Context, conversationID string, event realtime.Event) error
	// FetchHistory reloads the conversation from storage and replaces the cache.
	FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error)
	// Messages returns a snapshot of the cached conversation.
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
	// Forget drops the cache of a conversation.
	Forget(conversationID string)
	Close()
}

// TimelineOption configures a MessageTimeline.
type TimelineOption func(*messageTimeline)

// WithAppendHook registers a hook called for every newly cached message.
func WithAppendHook(h AppendHook) TimelineOption {
	return func(t *messageTimeline) { t.hooks = append(t.hooks, h) }
}

// WithParticipantChecker makes Send reject senders outside the conversation.
func WithParticipantChecker(c ParticipantChecker) TimelineOption {
	return func(t *messageTimeline) { t.access = c }
}

type messageTimeline struct {
	messageRepo storage.MessageRepository
	access      ParticipantChecker
	hooks       []AppendHook

	mu     sync.Mutex
	actors map[string]*conversationActor
	closed bool
}

// NewMessageTimeline creates a MessageTimeline backed by messageRepo.
func NewMessageTimeline(messageRepo storage.MessageRepository, opts ...TimelineOption) MessageTimeline {
	t := &messageTimeline{
		messageRepo: messageRepo,
		actors:      make(map[string]*conversationActor),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *messageTimeline) Send(ctx context.Context, sess session.Session, conversationID, content string) (*models.Message, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if t.access != nil {
		if err := t.access.RequireParticipant(ctx, conversationID, sess.UserID); err != nil {
			return nil, err
		}
	}

	msg, err := models.NewMessage(conversationID, sess.UserID, content)
	if err != nil {
		return nil, err
	}
	if err := t.messageRepo.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("发送消息失败: %w", err)
	}

	// Stored; the cache follows.
	stored := *msg
	err = t.do(conversationID, func(st *timelineState) {
		st.insert(stored, t.hooks)
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

func (t *messageTimeline) IngestRealtime(ctx context.Context, conversationID string, event realtime.Event) error {
	if event.Action != realtime.ActionCreate || event.Record == nil {
		return nil
	}
	if event.ConversationID != conversationID || event.Record.ConversationID != conversationID {
		return nil
	}

	msg := *event.Record
	return t.do(conversationID, func(st *timelineState) {
		st.insert(msg, t.hooks)
	})
}

func (t *messageTimeline) FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	var startSeq uint64
	if err := t.do(conversationID, func(st *timelineState) { startSeq = st.seq }); err != nil {
		return nil, err
	}

	loaded, err := t.messageRepo.ListByConversation(ctx, conversationID, 0)
	if err != nil {
		return nil, fmt.Errorf("加载会话 %s 历史消息失败: %w", conversationID, err)
	}

	var snapshot []models.Message
	err = t.do(conversationID, func(st *timelineState) {
		st.replace(loaded, startSeq)
		snapshot = slices.Clone(st.messages)
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (t *messageTimeline) Messages(ctx context.Context, conversationID string) ([]models.Message, error) {
	var snapshot []models.Message
	err := t.do(conversationID, func(st *timelineState) {
		snapshot = slices.Clone(st.messages)
	})
	return snapshot, err
}

func (t *messageTimeline) Forget(conversationID string) {
	t.mu.Lock()
	a, ok := t.actors[conversationID]
	delete(t.actors, conversationID)
	t.mu.Unlock()
	if ok {
		a.stop()
	}
}

func (t *messageTimeline) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	actors := t.actors
	t.actors = make(map[string]*conversationActor)
	t.mu.Unlock()

	for _, a := range actors {
		a.stop()
	}
}

// do runs fn on the conversation's goroutine and waits for it.
func (t *messageTimeline) do(conversationID string, fn func(*timelineState)) error {
	a, err := t.actor(conversationID)
	if err != nil {
		return err
	}
	done := make(chan struct{})
	select {
	case a.ops <- func(st *timelineState) { fn(st); close(done) }:
	case <-a.stopped:
		return ErrTimelineClosed
	}
	select {
	case <-done:
		return nil
	case <-a.stopped:
		// stop raced with our op; it may or may not have run
		select {
		case <-done:
			return nil
		default:
			return ErrTimelineClosed
		}
	}
}

func (t *messageTimeline) actor(conversationID string) (*conversationActor, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTimelineClosed
	}
	a, ok := t.actors[conversationID]
	if !ok {
		a = newConversationActor(conversationID)
		t.actors[conversationID] = a
	}
	return a, nil
}

// conversationActor owns the state of one conversation. Every read and write
// of that state runs on its goroutine, so sends and feed deliveries cannot
// interleave.
type conversationActor struct {
	ops      chan func(*timelineState)
	stopping chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

func newConversationActor(conversationID string) *conversationActor {
	a := &conversationActor{
		ops:      make(chan func(*timelineState)),
		stopping: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	go a.loop(&timelineState{
		conversationID: conversationID,
		seqs:           make(map[string]uint64),
	})
	return a
}

func (a *conversationActor) loop(st *timelineState) {
	defer close(a.stopped)
	for {
		select {
		case op := <-a.ops:
			op(st)
		case <-a.stopping:
			return
		}
	}
}

func (a *conversationActor) stop() {
	a.once.Do(func() { close(a.stopping) })
	<-a.stopped
}

// timelineState is the cache of one conversation.
//
// messages is sorted by (CreatedAt, ID). seqs maps each cached id to the
// value of seq when it was inserted; seq grows by one per insertion and lets
// a history reload tell which entries arrived while it was in flight.
type timelineState struct {
	conversationID string
	messages       []models.Message
	seqs           map[string]uint64
	seq            uint64
}

func compareMessageValues(a, b models.Message) int {
	return models.CompareMessages(&a, &b)
}

// insert adds msg in sorted position unless its id is already cached.
func (st *timelineState) insert(msg models.Message, hooks []AppendHook) bool {
	if _, ok := st.seqs[msg.ID]; ok {
		return false
	}
	pos, _ := slices.BinarySearchFunc(st.messages, msg, compareMessageValues)
	st.messages = slices.Insert(st.messages, pos, msg)
	st.seq++
	st.seqs[msg.ID] = st.seq
	for _, h := range hooks {
		h(st.conversationID, msg)
	}
	return true
}

// replace swaps the cache for loaded, keeping entries inserted after startSeq
// that the reload did not see.
func (st *timelineState) replace(loaded []models.Message, startSeq uint64) {
	fresh := slices.Clone(loaded)
	slices.SortStableFunc(fresh, compareMessageValues)

	seqs := make(map[string]uint64, len(fresh))
	for _, m := range fresh {
		seqs[m.ID] = st.seq
	}
	for _, m := range st.messages {
		if _, ok := seqs[m.ID]; ok {
			continue
		}
		if s := st.seqs[m.ID]; s > startSeq {
			pos, _ := slices.BinarySearchFunc(fresh, m, compareMessageValues)
			fresh = slices.Insert(fresh, pos, m)
			seqs[m.ID] = s
		}
	}

	st.messages = fresh
	st.seqs = seqs
}
