package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"memories-social/internal/models"
)

// ConversationRepository 定义了会话数据操作的接口。
type ConversationRepository interface {
	// Create 创建会话及其参与者。主键冲突时返回 ErrDuplicateKey。
	Create(ctx context.Context, conversation *models.Conversation) error
	// GetByID 通过ID检索会话，并预加载参与者。
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	// FindDirectByUsers 查找两个用户之间的私聊会话，不存在时返回 nil。
	FindDirectByUsers(ctx context.Context, userID1, userID2 string) (*models.Conversation, error)
	// ListForUser 获取用户参与的所有会话，最新的在前。
	ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error)
	// ListDirect 列出所有私聊会话（管理工具使用）。
	ListDirect(ctx context.Context) ([]models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
	GetParticipants(ctx context.Context, conversationID string) ([]models.ConversationParticipant, error)
}

// gormConversationRepository 使用 GORM 实现 ConversationRepository。
type gormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository 创建一个新的基于 GORM 的 ConversationRepository。
func NewGormConversationRepository(db *gorm.DB) ConversationRepository {
	return &gormConversationRepository{db: db}
}

func (r *gormConversationRepository) Create(ctx context.Context, conversation *models.Conversation) error {
	// 会话与参与者在同一事务中写入
	return translateError("create conversation", r.db.WithContext(ctx).Create(conversation).Error)
}

func (r *gormConversationRepository) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).Preload("Participants").Where("id = ?", id).First(&conversation).Error
	if err != nil {
		return nil, translateError("get conversation", err)
	}
	return &conversation, nil
}

// FindDirectByUsers 需要找到一个会话 c，它同时关联到两条参与者记录 cp1 与 cp2。
// 确定性 ID 之前创建的旧会话只能通过这种方式找到。
func (r *gormConversationRepository) FindDirectByUsers(ctx context.Context, userID1, userID2 string) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.WithContext(ctx).
		Table("conversations AS c").
		Select("c.*").
		Joins("JOIN conversation_participants AS cp1 ON c.id = cp1.conversation_id AND cp1.user_id = ?", userID1).
		Joins("JOIN conversation_participants AS cp2 ON c.id = cp2.conversation_id AND cp2.user_id = ?", userID2).
		Where("c.is_group = ?", false).
		Order("c.created_at ASC").
		First(&conversation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError("find direct conversation", err)
	}

	if err := r.db.WithContext(ctx).Where("conversation_id = ?", conversation.ID).Find(&conversation.Participants).Error; err != nil {
		return nil, translateError("load conversation participants", err)
	}
	return &conversation, nil
}

func (r *gormConversationRepository) ListForUser(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	query := r.db.WithContext(ctx).
		Joins("JOIN conversation_participants cp ON cp.conversation_id = conversations.id").
		Where("cp.user_id = ?", userID).
		Order("conversations.created_at DESC").
		Preload("Participants")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&conversations).Error; err != nil {
		return nil, translateError("list conversations for user", err)
	}
	return conversations, nil
}

func (r *gormConversationRepository) ListDirect(ctx context.Context) ([]models.Conversation, error) {
	conversations := []models.Conversation{}
	err := r.db.WithContext(ctx).
		Where("is_group = ?", false).
		Order("created_at ASC").
		Preload("Participants").
		Find(&conversations).Error
	if err != nil {
		return nil, translateError("list direct conversations", err)
	}
	return conversations, nil
}

func (r *gormConversationRepository) IsParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	if err != nil {
		return false, translateError("check conversation participant", err)
	}
	return count > 0, nil
}

func (r *gormConversationRepository) GetParticipants(ctx context.Context, conversationID string) ([]models.ConversationParticipant, error) {
	participants := []models.ConversationParticipant{}
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, translateError("get conversation participants", err)
	}
	return participants, nil
}
