package imtypes

import "encoding/json"

// EnvelopeType 标识 WebSocket 帧的种类。
type EnvelopeType string

const (
	// client -> server
	EnvelopeSubscribe   EnvelopeType = "subscribe"
	EnvelopeUnsubscribe EnvelopeType = "unsubscribe"
	EnvelopeSend        EnvelopeType = "send"

	// server -> client
	EnvelopeHistory       EnvelopeType = "history"
	EnvelopeMessage       EnvelopeType = "message"
	EnvelopeFriendRequest EnvelopeType = "friend_request"
	EnvelopeError         EnvelopeType = "error"
)

// ClientEnvelope is a frame read from a chat socket.
type ClientEnvelope struct {
	Type           EnvelopeType `json:"type"`
	ConversationID string       `json:"conversationId,omitempty"`
	Content        string       `json:"content,omitempty"`
	RequestID      string       `json:"requestId,omitempty"` // echoed back on error frames
}

// ServerEnvelope is a frame written to a chat socket.
type ServerEnvelope struct {
	Type           EnvelopeType    `json:"type"`
	ConversationID string          `json:"conversationId,omitempty"`
	RequestID      string          `json:"requestId,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error,omitempty"`
}

// NewServerEnvelope marshals payload into a frame of type t.
func NewServerEnvelope(t EnvelopeType, conversationID string, payload any) (*ServerEnvelope, error) {
	env := &ServerEnvelope{Type: t, ConversationID: conversationID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Payload = raw
	}
	return env, nil
}

// NewErrorEnvelope builds an error frame answering requestID.
func NewErrorEnvelope(requestID, conversationID, msg string) *ServerEnvelope {
	return &ServerEnvelope{Type: EnvelopeError, RequestID: requestID, ConversationID: conversationID, Error: msg}
}
