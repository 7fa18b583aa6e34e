package services

import (
	"context"
	"errors"
	"fmt"
	"log"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/session"
	"memories-social/internal/storage"
)

var (
	ErrFriendRequestSelf     = fmt.Errorf("不能添加自己为好友: %w", imtypes.ErrInvalidArgument)
	ErrFriendRequestExists   = fmt.Errorf("两个用户之间已存在好友请求: %w", imtypes.ErrDuplicateRelationship)
	ErrNotRecipientOfRequest = fmt.Errorf("您不是此好友请求的接收者: %w", imtypes.ErrPermissionDenied)
	ErrRequestNotPending     = fmt.Errorf("该好友请求不是待处理状态: %w", imtypes.ErrInvalidTransition)
)

// FriendRequestNotifier is told about friend request lifecycle changes once they are durable.
type FriendRequestNotifier interface {
	NotifyFriendRequest(ctx context.Context, event models.FriendRequestEvent) error
}

// FriendGraphService manages friend requests and the friendships they produce.
type FriendGraphService interface {
	// ListFriends returns the other party of every accepted request involving userID.
	ListFriends(ctx context.Context, userID string) ([]models.UserBasicInfo, error)
	// ListPendingInbox returns the pending requests addressed to userID, with sender info.
	ListPendingInbox(ctx context.Context, userID string) ([]models.FriendRequestWithSender, error)
	// SendRequest creates a pending request from the session user to the user named by
	// recipientIdentifier (an id, a username or an @handle).
	SendRequest(ctx context.Context, sess session.Session, recipientIdentifier string) (*models.FriendRequest, error)
	// Respond accepts or rejects a pending request addressed to the session user.
	Respond(ctx context.Context, sess session.Session, requestID string, accept bool) (*models.FriendRequest, error)
	AreFriends(ctx context.Context, userID1, userID2 string) (bool, error)
}

type friendGraphService struct {
	friendRepo storage.FriendRequestRepository
	userRepo   storage.UserRepository
	resolver   session.IdentityResolver
	notifier   FriendRequestNotifier
}

// NewFriendGraphService creates a FriendGraphService. notifier may be nil.
func NewFriendGraphService(
	friendRepo storage.FriendRequestRepository,
	userRepo storage.UserRepository,
	resolver session.IdentityResolver,
	notifier FriendRequestNotifier,
) FriendGraphService {
	return &friendGraphService{
		friendRepo: friendRepo,
		userRepo:   userRepo,
		resolver:   resolver,
		notifier:   notifier,
	}
}

func (s *friendGraphService) ListFriends(ctx context.Context, userID string) ([]models.UserBasicInfo, error) {
	accepted, err := s.friendRepo.ListAccepted(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取好友列表失败: %w", err)
	}
	if len(accepted) == 0 {
		return []models.UserBasicInfo{}, nil
	}

	friendIDs := make([]string, 0, len(accepted))
	seen := make(map[string]struct{}, len(accepted))
	for i := range accepted {
		other, ok := models.OtherParty(&accepted[i], userID)
		if !ok {
			continue
		}
		if _, dup := seen[other]; dup {
			continue
		}
		seen[other] = struct{}{}
		friendIDs = append(friendIDs, other)
	}

	infos, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, friendIDs)
	if err != nil {
		return nil, fmt.Errorf("获取好友信息失败: %w", err)
	}
	return orderBasicInfo(friendIDs, infos), nil
}

func (s *friendGraphService) ListPendingInbox(ctx context.Context, userID string) ([]models.FriendRequestWithSender, error) {
	pending, err := s.friendRepo.ListPendingForRecipient(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取待处理好友请求失败: %w", err)
	}
	result := make([]models.FriendRequestWithSender, 0, len(pending))
	if len(pending) == 0 {
		return result, nil
	}

	senderIDs := make([]string, 0, len(pending))
	for _, req := range pending {
		senderIDs = append(senderIDs, req.SenderID)
	}
	infos, err := s.userRepo.GetMultipleBasicInfoByIDs(ctx, senderIDs)
	if err != nil {
		return nil, fmt.Errorf("获取请求发送者信息失败: %w", err)
	}
	byID := make(map[string]models.UserBasicInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}

	for _, req := range pending {
		entry := models.FriendRequestWithSender{FriendRequest: req}
		if info, ok := byID[req.SenderID]; ok {
			entry.Sender = &info
		} else {
			log.Printf("FriendGraph: sender %s of request %s not found", req.SenderID, req.ID)
		}
		result = append(result, entry)
	}
	return result, nil
}

func (s *friendGraphService) SendRequest(ctx context.Context, sess session.Session, recipientIdentifier string) (*models.FriendRequest, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	recipientID, err := s.resolver.Resolve(ctx, recipientIdentifier)
	if err != nil {
		return nil, err
	}
	if recipientID == sess.UserID {
		return nil, ErrFriendRequestSelf
	}

	// Either direction, any status: a rejected request also blocks a new one.
	existing, err := s.friendRepo.FindBetween(ctx, sess.UserID, recipientID)
	if err != nil {
		return nil, fmt.Errorf("检查现有请求时出错: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("request %s is %s: %w", existing.ID, existing.Status, ErrFriendRequestExists)
	}

	request := &models.FriendRequest{
		SenderID:    sess.UserID,
		RecipientID: recipientID,
		Status:      models.FriendRequestStatusPending,
	}
	if err := s.friendRepo.Create(ctx, request); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost the race against a concurrent request for the same pair.
			return nil, ErrFriendRequestExists
		}
		return nil, fmt.Errorf("保存好友请求失败: %w", err)
	}

	log.Printf("FriendGraph: request %s created %s -> %s", request.ID, request.SenderID, request.RecipientID)
	s.notify(ctx, models.FriendRequestEventCreated, request.RecipientID, request, sess.UserID)
	return request, nil
}

func (s *friendGraphService) Respond(ctx context.Context, sess session.Session, requestID string, accept bool) (*models.FriendRequest, error) {
	if err := sess.Require(); err != nil {
		return nil, err
	}

	request, err := s.friendRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("检索好友请求失败: %w", err)
	}
	if request.RecipientID != sess.UserID {
		return nil, ErrNotRecipientOfRequest
	}
	if request.Status != models.FriendRequestStatusPending {
		return nil, ErrRequestNotPending
	}

	status := models.FriendRequestStatusRejected
	eventType := models.FriendRequestEventRejected
	if accept {
		status = models.FriendRequestStatusAccepted
		eventType = models.FriendRequestEventAccepted
	}

	updated, err := s.friendRepo.UpdateStatusIfPending(ctx, requestID, status)
	if err != nil {
		return nil, fmt.Errorf("更新好友请求状态失败: %w", err)
	}
	if !updated {
		// Answered concurrently by another session of the same user.
		return nil, ErrRequestNotPending
	}
	request.Status = status

	log.Printf("FriendGraph: request %s %s by %s", request.ID, status, sess.UserID)
	s.notify(ctx, eventType, request.SenderID, request, sess.UserID)
	return request, nil
}

func (s *friendGraphService) AreFriends(ctx context.Context, userID1, userID2 string) (bool, error) {
	req, err := s.friendRepo.FindBetween(ctx, userID1, userID2)
	if err != nil {
		return false, fmt.Errorf("检查好友关系时出错: %w", err)
	}
	return req != nil && req.Status == models.FriendRequestStatusAccepted, nil
}

// notify publishes a lifecycle event. The request is already stored, so a
// failure here is only logged.
func (s *friendGraphService) notify(ctx context.Context, t models.FriendRequestEventType, notifyUserID string, req *models.FriendRequest, actorID string) {
	if s.notifier == nil {
		return
	}
	event := models.FriendRequestEvent{Type: t, NotifyUserID: notifyUserID, Request: *req}
	if actor, err := s.userRepo.GetBasicInfoByID(ctx, actorID); err == nil {
		event.Actor = actor
	}
	if err := s.notifier.NotifyFriendRequest(ctx, event); err != nil {
		log.Printf("FriendGraph: failed to publish %s event for request %s: %v", t, req.ID, err)
	}
}

// orderBasicInfo returns infos in the order of ids, skipping ids without info.
func orderBasicInfo(ids []string, infos []models.UserBasicInfo) []models.UserBasicInfo {
	byID := make(map[string]models.UserBasicInfo, len(infos))
	for _, info := range infos {
		byID[info.ID] = info
	}
	ordered := make([]models.UserBasicInfo, 0, len(ids))
	for _, id := range ids {
		if info, ok := byID[id]; ok {
			ordered = append(ordered, info)
		}
	}
	return ordered
}
