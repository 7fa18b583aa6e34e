package storage

import (
	"context"
	"log"

	"gorm.io/gorm"

	"memories-social/internal/models"
	"memories-social/internal/realtime"
)

// MessageRepository 定义了消息数据操作的接口。
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id string) (*models.Message, error)
	// ListByConversation returns the conversation's messages ordered by (created_at, id).
	// limit <= 0 means all of them.
	ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
}

// gormMessageRepository 使用 GORM 实现 MessageRepository。
type gormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建一个新的基于 GORM 的 MessageRepository。
func NewGormMessageRepository(db *gorm.DB) MessageRepository {
	return &gormMessageRepository{db: db}
}

func (r *gormMessageRepository) Create(ctx context.Context, message *models.Message) error {
	return translateError("create message", r.db.WithContext(ctx).Create(message).Error)
}

func (r *gormMessageRepository) GetByID(ctx context.Context, id string) (*models.Message, error) {
	var message models.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, translateError("get message", err)
	}
	return &message, nil
}

func (r *gormMessageRepository) ListByConversation(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	messages := []models.Message{}
	query := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&messages).Error; err != nil {
		return nil, translateError("list messages", err)
	}
	return messages, nil
}

// publishingMessageRepository announces every stored message on a change feed.
type publishingMessageRepository struct {
	MessageRepository
	publisher realtime.Publisher
}

// NewPublishingMessageRepository wraps repo so that each successful Create is followed by a
// create event on publisher. A failed publish is logged; the message is already durable and
// subscribers reconcile through history on their next resubscribe.
func NewPublishingMessageRepository(repo MessageRepository, publisher realtime.Publisher) MessageRepository {
	return &publishingMessageRepository{MessageRepository: repo, publisher: publisher}
}

func (r *publishingMessageRepository) Create(ctx context.Context, message *models.Message) error {
	if err := r.MessageRepository.Create(ctx, message); err != nil {
		return err
	}
	event := realtime.NewCreateEvent(message)
	if err := r.publisher.Publish(ctx, event); err != nil {
		log.Printf("Storage: failed to publish message %s of conversation %s: %v", message.ID, message.ConversationID, err)
	}
	return nil
}
