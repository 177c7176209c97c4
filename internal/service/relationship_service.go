package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/pagination"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// FollowResult 关注结果。Created 为 false 表示关系已存在。
type FollowResult struct {
	Created        bool   `json:"created"`
	Backfilled     int64  `json:"backfilled"`
	NotificationID string `json:"-"`
}

// RelationshipService 关系链服务
type RelationshipService interface {
	Follow(ctx context.Context, followerID, followeeID string) (FollowResult, error)
	Unfollow(ctx context.Context, followerID, followeeID string) (bool, error)
	IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowersPage(ctx context.Context, viewerID, userID, cursor string, pageSize int) (pagination.Result[*model.User], error)
	ListFollowingPage(ctx context.Context, viewerID, userID, cursor string, pageSize int) (pagination.Result[*model.User], error)
}

type relationshipService struct {
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	users      repository.UserRepository
	fanout     *FanoutEngine
	notifier   NotificationService
	stats      *cache.StatsCache
	replicator *FanReplicator
}

// NewRelationshipService replicator 为 nil 时在请求内同步写 fans 镜像
func NewRelationshipService(
	followRepo repository.FollowRepository,
	fanRepo repository.FanRepository,
	users repository.UserRepository,
	fanout *FanoutEngine,
	notifier NotificationService,
	stats *cache.StatsCache,
	replicator *FanReplicator,
) RelationshipService {
	return &relationshipService{
		followRepo: followRepo,
		fanRepo:    fanRepo,
		users:      users,
		fanout:     fanout,
		notifier:   notifier,
		stats:      stats,
		replicator: replicator,
	}
}

func (s *relationshipService) Follow(ctx context.Context, followerID, followeeID string) (FollowResult, error) {
	var res FollowResult
	if followerID == "" {
		return res, ErrUnauthorized
	}
	if followerID == followeeID {
		return res, ErrFollowSelf
	}
	ok, err := s.users.Exists(ctx, followeeID)
	if err != nil {
		return res, err
	}
	if !ok {
		return res, ErrUserNotFound
	}

	// saga 第一步：following 集合，isFollowing 以此为准
	created, err := s.followRepo.Create(ctx, followerID, followeeID)
	if err != nil {
		return res, err
	}
	res.Created = created

	// 第二步与回填均幂等，重复关注时顺带修复上次未完成的部分
	s.mirrorAdd(ctx, followeeID, followerID)
	n, err := s.fanout.Backfill(ctx, followerID, followeeID)
	if err != nil {
		logger.Warn("follow backfill incomplete",
			zap.String("follower", followerID),
			zap.String("followee", followeeID),
			zap.Error(err),
		)
	}
	res.Backfilled = n

	if created {
		nid, err := s.notifier.Notify(ctx, followeeID, followerID, model.NotifyFollow, "", "")
		if err != nil {
			logger.Warn("follow notification failed", zap.String("followee", followeeID), zap.Error(err))
		}
		res.NotificationID = nid
		s.invalidate(ctx, followerID, followeeID)
	}
	return res, nil
}

func (s *relationshipService) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	if followerID == "" {
		return false, ErrUnauthorized
	}
	removed, err := s.followRepo.Delete(ctx, followerID, followeeID)
	if err != nil {
		return false, err
	}
	s.mirrorRemove(ctx, followeeID, followerID)
	if err := s.fanout.RetractAuthor(ctx, followerID, followeeID); err != nil {
		logger.Warn("unfollow retraction incomplete",
			zap.String("follower", followerID),
			zap.String("followee", followeeID),
			zap.Error(err),
		)
	}
	if removed {
		s.invalidate(ctx, followerID, followeeID)
	}
	return removed, nil
}

func (s *relationshipService) mirrorAdd(ctx context.Context, userID, fanID string) {
	if s.replicator != nil {
		s.replicator.EnqueueAdd(userID, fanID)
		return
	}
	if err := s.fanRepo.Create(ctx, userID, fanID); err != nil {
		logger.Warn("fan mirror add failed, left to reconciler",
			zap.String("user", userID), zap.String("fan", fanID), zap.Error(err))
	}
}

func (s *relationshipService) mirrorRemove(ctx context.Context, userID, fanID string) {
	if s.replicator != nil {
		s.replicator.EnqueueRemove(userID, fanID)
		return
	}
	if err := s.fanRepo.Delete(ctx, userID, fanID); err != nil {
		logger.Warn("fan mirror remove failed, left to reconciler",
			zap.String("user", userID), zap.String("fan", fanID), zap.Error(err))
	}
}

func (s *relationshipService) invalidate(ctx context.Context, userIDs ...string) {
	if err := s.stats.Invalidate(ctx, userIDs...); err != nil {
		logger.Warn("invalidate user stats", zap.Strings("users", userIDs), zap.Error(err))
	}
}

func (s *relationshipService) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	return s.followRepo.Exists(ctx, followerID, followeeID)
}

func (s *relationshipService) ListFollowersPage(ctx context.Context, viewerID, userID, cursor string, pageSize int) (pagination.Result[*model.User], error) {
	w := func(ctx context.Context, endAt string, limit int) ([]string, error) {
		return s.fanRepo.Window(ctx, userID, endAt, limit)
	}
	return userPage(ctx, s.users, s.followRepo, viewerID, w, cursor, pageSize)
}

func (s *relationshipService) ListFollowingPage(ctx context.Context, viewerID, userID, cursor string, pageSize int) (pagination.Result[*model.User], error) {
	w := func(ctx context.Context, endAt string, limit int) ([]string, error) {
		return s.followRepo.Window(ctx, userID, endAt, limit)
	}
	return userPage(ctx, s.users, s.followRepo, viewerID, w, cursor, pageSize)
}

// userPage 按游标取一页用户 ID 并补全资料与当前查看者的关注状态
func userPage(
	ctx context.Context,
	users repository.UserRepository,
	follows repository.FollowRepository,
	viewerID string,
	w pagination.Window,
	cursor string,
	pageSize int,
) (pagination.Result[*model.User], error) {
	page, err := pagination.Fetch(ctx, w, cursor, pageSize)
	if err != nil {
		return pagination.Result[*model.User]{}, err
	}
	byID, err := users.GetMany(ctx, page.Keys)
	if err != nil {
		return pagination.Result[*model.User]{}, err
	}
	followed, err := follows.FollowingAmong(ctx, viewerID, page.Keys)
	if err != nil {
		return pagination.Result[*model.User]{}, err
	}
	for id, u := range byID {
		u.IsFollowed = followed[id]
	}
	return pagination.Hydrate(page, byID), nil
}
