package services

import (
	"context"
	"fmt"
	"strings"

	"memories-social/internal/imtypes"
	"memories-social/internal/models"
	"memories-social/internal/storage"
)

const (
	defaultSearchPerPage = 10
	maxSearchPerPage     = 50
)

// UserService 定义了用户相关服务的接口。
type UserService interface {
	GetUserProfile(ctx context.Context, userID string) (*models.User, error)
	// SearchUsers 按用户名、昵称或邮箱搜索用户，排除当前用户。
	// 优先返回已验证的用户；没有匹配时放宽到所有用户。
	SearchUsers(ctx context.Context, query string, currentUserID string, page, perPage int) ([]models.UserBasicInfo, error)
}

// userService 是 UserService 的实现。
type userService struct {
	userRepo storage.UserRepository
}

// NewUserService 创建一个新的 UserService 实例。
func NewUserService(userRepo storage.UserRepository) UserService {
	return &userService{userRepo: userRepo}
}

// GetUserProfile 获取用户公开的个人资料。
func (s *userService) GetUserProfile(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("获取用户 %s 失败: %w", userID, err)
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) SearchUsers(ctx context.Context, query string, currentUserID string, page, perPage int) ([]models.UserBasicInfo, error) {
	query = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(query), "@"))
	if query == "" {
		return nil, fmt.Errorf("搜索关键字不能为空: %w", imtypes.ErrInvalidArgument)
	}
	if page < 1 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultSearchPerPage
	}
	if perPage > maxSearchPerPage {
		perPage = maxSearchPerPage
	}
	offset := (page - 1) * perPage

	users, err := s.userRepo.SearchUsers(ctx, query, currentUserID, true, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("搜索用户失败: %w", err)
	}
	if len(users) > 0 {
		return users, nil
	}
	if page > 1 {
		// 后续页为空时，只有在完全没有已验证匹配时才放宽条件
		anyVerified, err := s.userRepo.SearchUsers(ctx, query, currentUserID, true, 1, 0)
		if err != nil {
			return nil, fmt.Errorf("搜索用户失败: %w", err)
		}
		if len(anyVerified) > 0 {
			return users, nil
		}
	}

	// 没有已验证的匹配用户，放宽条件
	users, err = s.userRepo.SearchUsers(ctx, query, currentUserID, false, perPage, offset)
	if err != nil {
		return nil, fmt.Errorf("搜索用户失败: %w", err)
	}
	return users, nil
}
