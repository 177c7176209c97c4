package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/pagination"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// LikeResult 点赞 / 取消点赞结果。Changed 为 false 表示重复操作，计数未变。
type LikeResult struct {
	Liked   bool  `json:"liked"`
	Changed bool  `json:"changed"`
	Likes   int64 `json:"likes"`
}

// LikeService 点赞。点赞边与计数在同一事务内变更。
type LikeService interface {
	Like(ctx context.Context, userID, postID string) (LikeResult, error)
	Unlike(ctx context.Context, userID, postID string) (LikeResult, error)
	HasLiked(ctx context.Context, userID, postID string) (bool, error)
	FetchLikersPage(ctx context.Context, viewerID, postID, cursor string, pageSize int) (pagination.Result[*model.User], error)
	// VerifyLikeCounter 计数与点赞边数量不一致时返回 ErrCounterDivergence
	VerifyLikeCounter(ctx context.Context, postID string) error
}

type likeService struct {
	likes    repository.LikeRepository
	posts    repository.PostRepository
	users    repository.UserRepository
	follows  repository.FollowRepository
	notifier NotificationService
}

func NewLikeService(likes repository.LikeRepository, posts repository.PostRepository, users repository.UserRepository, follows repository.FollowRepository, notifier NotificationService) LikeService {
	return &likeService{likes: likes, posts: posts, users: users, follows: follows, notifier: notifier}
}

func (s *likeService) Like(ctx context.Context, userID, postID string) (LikeResult, error) {
	if userID == "" {
		return LikeResult{}, ErrUnauthorized
	}
	out, err := s.likes.Like(ctx, userID, postID)
	if err != nil {
		return LikeResult{}, notFound(err, ErrPostNotFound)
	}
	res := LikeResult{Liked: true, Changed: out.Changed, Likes: out.Likes}
	if !out.Changed {
		return res, nil
	}

	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		logger.Warn("like notification skipped", zap.String("post", postID), zap.Error(err))
		return res, nil
	}
	nid, err := s.notifier.Notify(ctx, post.AuthorID, userID, model.NotifyLike, postID, "")
	if err != nil {
		logger.Warn("like notification failed", zap.String("post", postID), zap.Error(err))
		return res, nil
	}
	if nid == "" {
		return res, nil
	}
	stored, err := s.likes.SetNotification(ctx, out.Edge.ID, nid)
	if err != nil {
		logger.Warn("store like notification id", zap.String("post", postID), zap.Error(err))
		return res, nil
	}
	if !stored {
		// 通知写入前点赞已被取消，撤回刚创建的通知
		if err := s.notifier.Retract(ctx, post.AuthorID, nid); err != nil {
			logger.Warn("retract like notification", zap.String("post", postID), zap.Error(err))
		}
	}
	return res, nil
}

func (s *likeService) Unlike(ctx context.Context, userID, postID string) (LikeResult, error) {
	if userID == "" {
		return LikeResult{}, ErrUnauthorized
	}
	out, err := s.likes.Unlike(ctx, userID, postID)
	if err != nil {
		return LikeResult{}, notFound(err, ErrPostNotFound)
	}
	res := LikeResult{Liked: false, Changed: out.Changed, Likes: out.Likes}
	if out.Floored {
		logger.Warn("like counter already zero on unlike",
			zap.String("post", postID),
			zap.Error(ErrCounterDivergence),
		)
	}
	if out.Edge == nil || out.Edge.NotificationID == "" {
		return res, nil
	}

	post, err := s.posts.GetWithDeleted(ctx, postID)
	if err != nil {
		logger.Warn("like notification not retracted", zap.String("post", postID), zap.Error(err))
		return res, nil
	}
	if err := s.notifier.Retract(ctx, post.AuthorID, out.Edge.NotificationID); err != nil {
		logger.Warn("retract like notification", zap.String("post", postID), zap.Error(err))
	}
	return res, nil
}

func (s *likeService) HasLiked(ctx context.Context, userID, postID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	return s.likes.Exists(ctx, userID, postID)
}

func (s *likeService) FetchLikersPage(ctx context.Context, viewerID, postID, cursor string, pageSize int) (pagination.Result[*model.User], error) {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return pagination.Result[*model.User]{}, notFound(err, ErrPostNotFound)
	}
	w := func(ctx context.Context, endAt string, limit int) ([]string, error) {
		return s.likes.Window(ctx, postID, endAt, limit)
	}
	return userPage(ctx, s.users, s.follows, viewerID, w, cursor, pageSize)
}

func (s *likeService) VerifyLikeCounter(ctx context.Context, postID string) error {
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return notFound(err, ErrPostNotFound)
	}
	edges, err := s.likes.CountByPost(ctx, postID)
	if err != nil {
		return err
	}
	if edges != post.LikeCount {
		return fmt.Errorf("%w: post %s has %d like edges, counter %d", ErrCounterDivergence, postID, edges, post.LikeCount)
	}
	return nil
}
