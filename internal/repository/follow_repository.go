package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/photo-feed/internal/model"
)

// FollowRepository following 集合（A 关注了谁）
type FollowRepository interface {
	Create(ctx context.Context, followerID, followeeID string) (bool, error)
	Delete(ctx context.Context, followerID, followeeID string) (bool, error)
	Exists(ctx context.Context, followerID, followeeID string) (bool, error)
	// FollowingAmong 返回 followeeIDs 中被 followerID 关注的用户
	FollowingAmong(ctx context.Context, followerID string, followeeIDs []string) (map[string]bool, error)
	// Window 按 followee_id 排序的游标窗口
	Window(ctx context.Context, followerID, endAt string, limit int) ([]string, error)
	CountFollowing(ctx context.Context, followerID string) (int64, error)
	// MissingMirrors 返回没有对应 fans 行的关注边
	MissingMirrors(ctx context.Context, limit int) ([]*model.Follow, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) Create(ctx context.Context, followerID, followeeID string) (bool, error) {
	f := &model.Follow{ID: uuid.New().String(), FollowerID: followerID, FolloweeID: followeeID}
	// 幂等：重复关注不报错，也不产生新行
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f)
	return res.RowsAffected == 1, res.Error
}

func (r *followRepository) Delete(ctx context.Context, followerID, followeeID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Delete(&model.Follow{})
	return res.RowsAffected > 0, res.Error
}

func (r *followRepository) Exists(ctx context.Context, followerID, followeeID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *followRepository) FollowingAmong(ctx context.Context, followerID string, followeeIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(followeeIDs))
	if followerID == "" || len(followeeIDs) == 0 {
		return out, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Follow{}).
		Where("follower_id = ? AND followee_id IN ?", followerID, followeeIDs).
		Pluck("followee_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *followRepository) Window(ctx context.Context, followerID, endAt string, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.Follow{}).Where("follower_id = ?", followerID)
	return keyWindow(q, "followee_id", endAt, limit)
}

func (r *followRepository) CountFollowing(ctx context.Context, followerID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Follow{}).Where("follower_id = ?", followerID).Count(&cnt).Error
	return cnt, err
}

func (r *followRepository) MissingMirrors(ctx context.Context, limit int) ([]*model.Follow, error) {
	var res []*model.Follow
	err := r.db.WithContext(ctx).
		Table("follows").
		Select("follows.*").
		Joins("LEFT JOIN fans ON fans.user_id = follows.followee_id AND fans.fan_id = follows.follower_id").
		Where("fans.id IS NULL").
		Limit(limit).
		Find(&res).Error
	return res, err
}
