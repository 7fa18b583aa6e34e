package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message 代表存储在数据库中的聊天消息。
type Message struct {
	BaseModel
	ConversationID string `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	SenderID       string `gorm:"type:varchar(36);index;not null" json:"senderId"`
	Content        string `gorm:"type:text;not null" json:"content"`
}

// TableName 指定 Message 模型的表名。
func (Message) TableName() string {
	return "messages"
}

// NewMessage builds a message ready to persist. The id is a time-ordered
// UUIDv7 and CreatedAt is truncated to the precision postgres keeps, so the
// ordering key of a message is identical before and after a reload.
func NewMessage(conversationID, senderID, content string) (*Message, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate message id: %w", err)
	}
	m := &Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
	}
	m.ID = id.String()
	m.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	m.UpdatedAt = m.CreatedAt
	return m, nil
}

// CompareMessages orders messages by (CreatedAt, ID).
func CompareMessages(a, b *Message) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

// MessageLess reports whether a sorts before b in a timeline.
func MessageLess(a, b *Message) bool {
	return CompareMessages(a, b) < 0
}
