package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/blob"
	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/pagination"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/internal/textscan"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// RegisterRequest 注册资料。ID 由外部身份提供方签发。
type RegisterRequest struct {
	ID              string `json:"id" validate:"required,max=64"`
	Username        string `json:"username" validate:"required,max=30"`
	FullName        string `json:"full_name" validate:"max=128"`
	ProfileImageURL string `json:"profile_image_url" validate:"omitempty,url"`
}

// Profile 个人主页
type Profile struct {
	User  *model.User     `json:"user"`
	Stats cache.UserStats `json:"stats"`
}

type UserService interface {
	Register(ctx context.Context, req RegisterRequest) (*model.User, error)
	GetUser(ctx context.Context, id string) (*model.User, error)
	FindByUsername(ctx context.Context, username string) (*model.User, error)
	GetProfile(ctx context.Context, viewerID, userID string) (*Profile, error)
	SearchUsersPage(ctx context.Context, viewerID, cursor string, pageSize int) (pagination.Result[*model.User], error)
	SetProfileImage(ctx context.Context, userID string, img ImageUpload) (*model.User, error)
}

type userService struct {
	users    repository.UserRepository
	follows  repository.FollowRepository
	stats    *cache.StatsCache
	blobs    blob.Store
	validate *validator.Validate
}

func NewUserService(users repository.UserRepository, follows repository.FollowRepository, stats *cache.StatsCache, blobs blob.Store) UserService {
	return &userService{users: users, follows: follows, stats: stats, blobs: blobs, validate: validator.New()}
}

// StatsLoader 从主存储统计关注、粉丝与帖子数
func StatsLoader(follows repository.FollowRepository, fans repository.FanRepository, posts repository.PostRepository) cache.StatsLoader {
	return func(ctx context.Context, userID string) (cache.UserStats, error) {
		var st cache.UserStats
		var err error
		if st.Following, err = follows.CountFollowing(ctx, userID); err != nil {
			return st, err
		}
		if st.Followers, err = fans.CountFans(ctx, userID); err != nil {
			return st, err
		}
		st.Posts, err = posts.CountUserPosts(ctx, userID)
		return st, err
	}
}

func (s *userService) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	// 用户名必须能被 @ 提及完整解析
	if !slices.Equal(textscan.Mentions(string(textscan.MentionMarker)+req.Username), []string{req.Username}) {
		return nil, invalid("username %q may only contain letters, digits, '_' and inner '.'", req.Username)
	}
	u := &model.User{
		ID:              req.ID,
		Username:        req.Username,
		FullName:        req.FullName,
		ProfileImageURL: req.ProfileImageURL,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	return u, nil
}

func (s *userService) GetUser(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return u, nil
}

func (s *userService) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}
	return u, nil
}

func (s *userService) GetProfile(ctx context.Context, viewerID, userID string) (*Profile, error) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if viewerID != "" && viewerID != userID {
		if u.IsFollowed, err = s.follows.Exists(ctx, viewerID, userID); err != nil {
			return nil, err
		}
	}
	st, err := s.stats.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{User: u, Stats: st}, nil
}

func (s *userService) SearchUsersPage(ctx context.Context, viewerID, cursor string, pageSize int) (pagination.Result[*model.User], error) {
	return userPage(ctx, s.users, s.follows, viewerID, s.users.Window, cursor, pageSize)
}

func (s *userService) SetProfileImage(ctx context.Context, userID string, img ImageUpload) (*model.User, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	if err := s.validate.Struct(img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	url, err := s.blobs.Upload(ctx, img.Data, img.ContentType)
	if err != nil {
		if errors.Is(err, blob.ErrUpload) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrBlobUpload, err)
	}
	if err := s.users.UpdateProfileImage(ctx, userID, url); err != nil {
		_ = s.blobs.Delete(ctx, url)
		return nil, notFound(err, ErrUserNotFound)
	}
	if old := u.ProfileImageURL; old != "" {
		if err := s.blobs.Delete(ctx, old); err != nil {
			logger.Debug("old profile image not removed", zap.String("url", old), zap.Error(err))
		}
	}
	u.ProfileImageURL = url
	return u, nil
}
