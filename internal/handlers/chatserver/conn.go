package chatserver

import (
	"context"
	"log"

	"memories-social/internal/config"
	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/realtime"
	"memories-social/internal/services"
	"memories-social/internal/session"
	"memories-social/internal/storage"
)

// Sender writes frames to one socket.
type Sender interface {
	Send(env *imtypes.ServerEnvelope) bool
}

// Conn is the state of one chat socket: its own timeline, fed by its own
// bridge, for the conversations the client subscribed to. Conn is the
// bridge's realtime.Timeline, so every history reload, including the one
// after a resubscribe, is pushed to the client as a history frame.
type Conn struct {
	out      Sender
	sess     session.Session
	registry services.ConversationRegistry
	timeline services.MessageTimeline
	bridge   *realtime.Bridge
}

// NewConn wires a timeline and a bridge for one socket. Every message newly
// cached by the timeline is pushed to out.
func NewConn(out Sender, sess session.Session, registry services.ConversationRegistry,
	messages storage.MessageRepository, feed realtime.Feed, cfg config.RealtimeConfig) *Conn {
	c := &Conn{
		out:      out,
		sess:     sess,
		registry: registry,
	}
	c.timeline = services.NewMessageTimeline(messages,
		services.WithParticipantChecker(registry),
		services.WithAppendHook(c.pushMessage),
	)
	c.bridge = realtime.NewBridge(feed, c, cfg)
	return c
}

// HandleEnvelope implements websocket.ConnHandler.
func (c *Conn) HandleEnvelope(ctx context.Context, env imtypes.ClientEnvelope) {
	var err error
	switch env.Type {
	case imtypes.EnvelopeSubscribe:
		err = c.subscribe(ctx, env.ConversationID)
	case imtypes.EnvelopeUnsubscribe:
		c.bridge.Unsubscribe(env.ConversationID)
		c.timeline.Forget(env.ConversationID)
	case imtypes.EnvelopeSend:
		_, err = c.timeline.Send(ctx, c.sess, env.ConversationID, env.Content)
	default:
		c.out.Send(imtypes.NewErrorEnvelope(env.RequestID, env.ConversationID, "未知的消息类型: "+string(env.Type)))
		return
	}
	if err != nil {
		log.Printf("chat: %s %s by %s failed: %v", env.Type, env.ConversationID, c.sess.UserID, err)
		c.out.Send(imtypes.NewErrorEnvelope(env.RequestID, env.ConversationID, err.Error()))
	}
}

// Close implements websocket.ConnHandler.
func (c *Conn) Close() {
	c.bridge.UnsubscribeAll()
	c.timeline.Close()
}

func (c *Conn) subscribe(ctx context.Context, conversationID string) error {
	if err := c.registry.RequireParticipant(ctx, conversationID, c.sess.UserID); err != nil {
		return err
	}
	if _, err := c.bridge.Subscribe(ctx, conversationID); err != nil {
		return err
	}

	_, err := c.FetchHistory(ctx, conversationID)
	return err
}

// IngestRealtime implements realtime.Timeline.
func (c *Conn) IngestRealtime(ctx context.Context, conversationID string, event realtime.Event) error {
	return c.timeline.IngestRealtime(ctx, conversationID, event)
}

// FetchHistory implements realtime.Timeline.
func (c *Conn) FetchHistory(ctx context.Context, conversationID string) ([]models.Message, error) {
	history, err := c.timeline.FetchHistory(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	env, err := imtypes.NewServerEnvelope(imtypes.EnvelopeHistory, conversationID, history)
	if err != nil {
		return nil, err
	}
	c.out.Send(env)
	return history, nil
}

func (c *Conn) pushMessage(conversationID string, msg models.Message) {
	env, err := imtypes.NewServerEnvelope(imtypes.EnvelopeMessage, conversationID, msg)
	if err != nil {
		log.Printf("chat: cannot encode message %s: %v", msg.ID, err)
		return
	}
	c.out.Send(env)
}
