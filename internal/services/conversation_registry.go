package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/storage"
)

var (
	ErrConversationWithSelf = fmt.Errorf("不能与自己创建私聊会话: %w", imtypes.ErrInvalidArgument)
	ErrGroupNameRequired    = fmt.Errorf("群聊名称不能为空: %w", imtypes.ErrInvalidArgument)
	ErrGroupTooSmall        = fmt.Errorf("群聊至少需要两名成员: %w", imtypes.ErrInvalidArgument)
	ErrNotParticipant       = fmt.Errorf("您不是此会话的参与者: %w", imtypes.ErrPermissionDenied)
)

// ConversationRegistry finds and creates conversations and knows who is in them.
type ConversationRegistry interface {
	// FindOrCreateDirect returns the one-to-one conversation between two users,
	// creating it if needed. Concurrent callers for the same pair get the same conversation.
	FindOrCreateDirect(ctx context.Context, userID1, userID2 string) (*models.Conversation, error)
	// CreateGroup creates a named group conversation. The creator is always a participant.
	CreateGroup(ctx context.Context, name string, participantIDs []string, creatorID string) (*models.Conversation, error)
	// ListConversations returns the conversations userID takes part in, newest first.
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	Get(ctx context.Context, conversationID string) (*models.Conversation, error)
	// RequireParticipant fails with ErrPermissionDenied unless userID is in the conversation.
	RequireParticipant(ctx context.Context, conversationID, userID string) error
}

type conversationRegistry struct {
	convoRepo storage.ConversationRepository
	userRepo  storage.UserRepository

	// Participant sets never change, so confirmed conversations can be cached for good.
	mu     sync.RWMutex
	byID   map[string]*models.Conversation
	direct map[string]string // pair key -> conversation id
}

// NewConversationRegistry creates a ConversationRegistry.
func NewConversationRegistry(convoRepo storage.ConversationRepository, userRepo storage.UserRepository) ConversationRegistry {
	return &conversationRegistry{
		convoRepo: convoRepo,
		userRepo:  userRepo,
		byID:      make(map[string]*models.Conversation),
		direct:    make(map[string]string),
	}
}

func (r *conversationRegistry) FindOrCreateDirect(ctx context.Context, userID1, userID2 string) (*models.Conversation, error) {
	if userID1 == "" || userID2 == "" {
		return nil, fmt.Errorf("missing participant: %w", imtypes.ErrInvalidArgument)
	}
	if userID1 == userID2 {
		return nil, ErrConversationWithSelf
	}
	pair := models.PairKey(userID1, userID2)

	// 1. local cache
	if c, ok := r.cachedDirect(pair); ok {
		return c, nil
	}

	// 2. remote: deterministic id first, then conversations created before ids were derived
	id := models.DirectConversationID(userID1, userID2)
	c, err := r.convoRepo.GetByID(ctx, id)
	switch {
	case err == nil:
		return r.remember(c), nil
	case !errors.Is(err, imtypes.ErrNotFound):
		return nil, fmt.Errorf("查找私聊会话失败: %w", err)
	}

	legacy, err := r.convoRepo.FindDirectByUsers(ctx, userID1, userID2)
	if err != nil {
		return nil, fmt.Errorf("查找私聊会话失败: %w", err)
	}
	if legacy != nil {
		return r.remember(legacy), nil
	}

	// 3. create
	lo, hi := models.CanonicalPair(userID1, userID2)
	conversation := &models.Conversation{
		Participants: models.NewParticipants([]string{lo, hi}, time.Now().UTC()),
	}
	conversation.ID = id
	if err := r.convoRepo.Create(ctx, conversation); err != nil {
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return nil, fmt.Errorf("创建私聊会话失败: %w", err)
		}
		// Someone else created it between our read and our insert; theirs is ours.
		winner, err := r.convoRepo.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("读取并发创建的私聊会话失败: %w", err)
		}
		return r.remember(winner), nil
	}

	log.Printf("ConversationRegistry: created direct conversation %s for %s", conversation.ID, pair)
	return r.remember(conversation), nil
}

func (r *conversationRegistry) CreateGroup(ctx context.Context, name string, participantIDs []string, creatorID string) (*models.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrGroupNameRequired
	}
	if creatorID == "" {
		return nil, fmt.Errorf("missing group creator: %w", imtypes.ErrInvalidArgument)
	}

	members := make([]string, 0, len(participantIDs)+1)
	seen := make(map[string]struct{}, len(participantIDs)+1)
	for _, id := range append([]string{creatorID}, participantIDs...) {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	if len(members) < 2 {
		return nil, ErrGroupTooSmall
	}

	found, err := r.userRepo.GetMultipleBasicInfoByIDs(ctx, members)
	if err != nil {
		return nil, fmt.Errorf("检查群聊成员失败: %w", err)
	}
	if len(found) != len(members) {
		return nil, fmt.Errorf("部分群聊成员不存在: %w", imtypes.ErrNotFound)
	}

	conversation := &models.Conversation{
		IsGroup:      true,
		Name:         name,
		Participants: models.NewParticipants(members, time.Now().UTC()),
	}
	if err := r.convoRepo.Create(ctx, conversation); err != nil {
		return nil, fmt.Errorf("创建群聊会话失败: %w", err)
	}

	log.Printf("ConversationRegistry: group %s (%q) created by %s with %d participants", conversation.ID, name, creatorID, len(members))
	return r.remember(conversation), nil
}

func (r *conversationRegistry) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	conversations, err := r.convoRepo.ListForUser(ctx, userID, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("获取会话列表失败: %w", err)
	}
	for i := range conversations {
		r.remember(&conversations[i])
	}
	return conversations, nil
}

func (r *conversationRegistry) Get(ctx context.Context, conversationID string) (*models.Conversation, error) {
	r.mu.RLock()
	c, ok := r.byID[conversationID]
	r.mu.RUnlock()
	if ok {
		return cloneConversation(c), nil
	}

	c, err := r.convoRepo.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("获取会话 %s 失败: %w", conversationID, err)
	}
	return r.remember(c), nil
}

func (r *conversationRegistry) RequireParticipant(ctx context.Context, conversationID, userID string) error {
	c, err := r.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if !c.HasParticipant(userID) {
		return ErrNotParticipant
	}
	return nil
}

func (r *conversationRegistry) cachedDirect(pair string) (*models.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.direct[pair]
	if !ok {
		return nil, false
	}
	c, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return cloneConversation(c), true
}

// remember caches a confirmed conversation and returns a copy for the caller.
func (r *conversationRegistry) remember(c *models.Conversation) *models.Conversation {
	stored := cloneConversation(c)

	r.mu.Lock()
	r.byID[stored.ID] = stored
	if !stored.IsGroup && len(stored.Participants) == 2 {
		r.direct[models.PairKey(stored.Participants[0].UserID, stored.Participants[1].UserID)] = stored.ID
	}
	r.mu.Unlock()

	return cloneConversation(stored)
}

func cloneConversation(c *models.Conversation) *models.Conversation {
	out := *c
	out.Participants = append([]models.ConversationParticipant(nil), c.Participants...)
	return &out
}
