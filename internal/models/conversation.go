package models

import (
	"time"

	"github.com/google/uuid"
)

// directNamespace scopes the name-based ids of one-to-one conversations.
var directNamespace = uuid.MustParse("b7d3c1e2-5a4f-4f6e-9c2d-8e1a0f3b6d54")

// Conversation 代表一个聊天会话（一对一或群组）。
//
// A direct conversation's ID is derived from its participant pair (see
// DirectConversationID), so two clients racing to open the same chat produce
// the same primary key. Group ids are random. Participants never change after
// creation.
type Conversation struct {
	BaseModel
	IsGroup bool   `gorm:"not null;default:false;index" json:"isGroup"`
	Name    string `gorm:"type:varchar(255)" json:"name,omitempty"` // 群聊名称，私聊为空

	Participants []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
}

// TableName 指定 Conversation 模型的表名。
func (Conversation) TableName() string {
	return "conversations"
}

// ParticipantIDs returns the ids of the loaded participants.
func (c *Conversation) ParticipantIDs() []string {
	ids := make([]string, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is among the loaded participants.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// ConversationParticipant 将用户链接到会话。
type ConversationParticipant struct {
	ConversationID string    `gorm:"type:varchar(36);primaryKey" json:"conversationId"`
	UserID         string    `gorm:"type:varchar(36);primaryKey;index" json:"userId"`
	JoinedAt       time.Time `json:"joinedAt"`
}

// TableName 指定 ConversationParticipant 模型的表名。
func (ConversationParticipant) TableName() string {
	return "conversation_participants"
}

// DirectConversationID is the deterministic id of the one-to-one conversation between a and b.
// It does not depend on argument order.
func DirectConversationID(a, b string) string {
	return uuid.NewSHA1(directNamespace, []byte(PairKey(a, b))).String()
}

// NewParticipants builds join rows for ids, all joined at now.
func NewParticipants(ids []string, now time.Time) []ConversationParticipant {
	out := make([]ConversationParticipant, 0, len(ids))
	for _, id := range ids {
		out = append(out, ConversationParticipant{UserID: id, JoinedAt: now})
	}
	return out
}
