package storage

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
)

// FriendRequestRepository defines the interface for friend request data operations.
// It is the relationship store: friendships are the accepted rows.
type FriendRequestRepository interface {
	// Create inserts a request. A second request for the same pair fails with ErrDuplicateKey.
	Create(ctx context.Context, request *models.FriendRequest) error
	GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error)
	// FindBetween returns the request between the two users in either direction, whatever
	// its status, or nil when there is none.
	FindBetween(ctx context.Context, userID1, userID2 string) (*models.FriendRequest, error)
	// UpdateStatusIfPending moves a pending request to status. It reports false when the
	// request was no longer pending.
	UpdateStatusIfPending(ctx context.Context, requestID string, status models.FriendRequestStatus) (bool, error)
	ListAccepted(ctx context.Context, userID string) ([]models.FriendRequest, error)
	ListPendingForRecipient(ctx context.Context, recipientID string) ([]models.FriendRequest, error)
}

type gormFriendRequestRepository struct {
	db *gorm.DB
}

func NewGormFriendRequestRepository(db *gorm.DB) FriendRequestRepository {
	return &gormFriendRequestRepository{db: db}
}

func (r *gormFriendRequestRepository) Create(ctx context.Context, request *models.FriendRequest) error {
	request.PairKey = models.PairKey(request.SenderID, request.RecipientID)
	if request.Status == "" {
		request.Status = models.FriendRequestStatusPending
	}
	return translateError("create friend request", r.db.WithContext(ctx).Create(request).Error)
}

func (r *gormFriendRequestRepository) GetByID(ctx context.Context, requestID string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	if err := r.db.WithContext(ctx).Where("id = ?", requestID).First(&request).Error; err != nil {
		return nil, translateError("get friend request", err)
	}
	return &request, nil
}

func (r *gormFriendRequestRepository) FindBetween(ctx context.Context, userID1, userID2 string) (*models.FriendRequest, error) {
	var request models.FriendRequest
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? AND recipient_id = ?) OR (sender_id = ? AND recipient_id = ?)", userID1, userID2, userID2, userID1).
		First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil // 没有记录不是错误
		}
		return nil, translateError("find friend request between users", err)
	}
	return &request, nil
}

func (r *gormFriendRequestRepository) UpdateStatusIfPending(ctx context.Context, requestID string, status models.FriendRequestStatus) (bool, error) {
	if status == models.FriendRequestStatusPending {
		return false, imtypes.ErrInvalidArgument
	}
	res := r.db.WithContext(ctx).
		Model(&models.FriendRequest{}).
		Where("id = ? AND status = ?", requestID, models.FriendRequestStatusPending).
		Update("status", status)
	if res.Error != nil {
		return false, translateError("update friend request status", res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (r *gormFriendRequestRepository) ListAccepted(ctx context.Context, userID string) ([]models.FriendRequest, error) {
	requests := []models.FriendRequest{}
	err := r.db.WithContext(ctx).
		Where("(sender_id = ? OR recipient_id = ?) AND status = ?", userID, userID, models.FriendRequestStatusAccepted).
		Order("updated_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, translateError("list accepted friend requests", err)
	}
	return requests, nil
}

func (r *gormFriendRequestRepository) ListPendingForRecipient(ctx context.Context, recipientID string) ([]models.FriendRequest, error) {
	requests := []models.FriendRequest{}
	err := r.db.WithContext(ctx).
		Where("recipient_id = ? AND status = ?", recipientID, models.FriendRequestStatusPending).
		Order("created_at DESC").
		Find(&requests).Error
	if err != nil {
		return nil, translateError("list pending friend requests", err)
	}
	return requests, nil
}
