package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/photo-feed/internal/model"
)

// FanRepository follower 集合（谁关注了 B），扇出的数据源
type FanRepository interface {
	Create(ctx context.Context, userID, fanID string) error
	Delete(ctx context.Context, userID, fanID string) error
	// ListFanIDs 以 fan_id 为键集分页，返回大于 after 的至多 limit 个粉丝
	ListFanIDs(ctx context.Context, userID, after string, limit int) ([]string, error)
	// Window 按 fan_id 排序的游标窗口
	Window(ctx context.Context, userID, endAt string, limit int) ([]string, error)
	CountFans(ctx context.Context, userID string) (int64, error)
	// Orphans 返回没有对应 follows 行的粉丝记录
	Orphans(ctx context.Context, limit int) ([]*model.Fan, error)
}

type fanRepository struct{ db *gorm.DB }

func NewFanRepository(db *gorm.DB) FanRepository { return &fanRepository{db: db} }

func (r *fanRepository) Create(ctx context.Context, userID, fanID string) error {
	f := &model.Fan{ID: uuid.New().String(), UserID: userID, FanID: fanID}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(f).Error
}

func (r *fanRepository) Delete(ctx context.Context, userID, fanID string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND fan_id = ?", userID, fanID).Delete(&model.Fan{}).Error
}

func (r *fanRepository) ListFanIDs(ctx context.Context, userID, after string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Fan{}).
		Where("user_id = ? AND fan_id > ?", userID, after).
		Order("fan_id").
		Limit(limit).
		Pluck("fan_id", &ids).Error
	return ids, err
}

func (r *fanRepository) Window(ctx context.Context, userID, endAt string, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.Fan{}).Where("user_id = ?", userID)
	return keyWindow(q, "fan_id", endAt, limit)
}

func (r *fanRepository) CountFans(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Fan{}).Where("user_id = ?", userID).Count(&cnt).Error
	return cnt, err
}

func (r *fanRepository) Orphans(ctx context.Context, limit int) ([]*model.Fan, error) {
	var res []*model.Fan
	err := r.db.WithContext(ctx).
		Table("fans").
		Select("fans.*").
		Joins("LEFT JOIN follows ON follows.follower_id = fans.fan_id AND follows.followee_id = fans.user_id").
		Where("follows.id IS NULL").
		Limit(limit).
		Find(&res).Error
	return res, err
}
