package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/photo-feed/internal/model"
)

// FeedRepository 首页时间线（inbox）
type FeedRepository interface {
	// AddForViewers 把一个帖子写入多个查看者的 feed，重复项忽略
	AddForViewers(ctx context.Context, postID string, viewerIDs []string) (int64, error)
	// AddPosts 把多个帖子写入一个查看者的 feed（关注回填）
	AddPosts(ctx context.Context, viewerID string, postIDs []string) (int64, error)
	Remove(ctx context.Context, viewerID, postID string) error
	RemoveForViewers(ctx context.Context, postID string, viewerIDs []string) error
	RemovePosts(ctx context.Context, viewerID string, postIDs []string) error
	// RemovePost 删除所有查看者 feed 中的该帖子
	RemovePost(ctx context.Context, postID string) error
	Exists(ctx context.Context, viewerID, postID string) (bool, error)
	Window(ctx context.Context, viewerID, endAt string, limit int) ([]string, error)
	Count(ctx context.Context, viewerID string) (int64, error)
	// DeleteOrphans 删除帖子行已不存在的 feed 项
	DeleteOrphans(ctx context.Context, limit int) (int64, error)
}

type feedRepository struct{ db *gorm.DB }

func NewFeedRepository(db *gorm.DB) FeedRepository { return &feedRepository{db: db} }

func (r *feedRepository) AddForViewers(ctx context.Context, postID string, viewerIDs []string) (int64, error) {
	if len(viewerIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	records := make([]model.Inbox, len(viewerIDs))
	for i, v := range viewerIDs {
		records[i] = model.Inbox{ID: uuid.New().String(), UserID: v, PostID: postID, CreatedAt: now}
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
	return res.RowsAffected, res.Error
}

func (r *feedRepository) AddPosts(ctx context.Context, viewerID string, postIDs []string) (int64, error) {
	if len(postIDs) == 0 {
		return 0, nil
	}
	now := time.Now()
	records := make([]model.Inbox, len(postIDs))
	for i, p := range postIDs {
		records[i] = model.Inbox{ID: uuid.New().String(), UserID: viewerID, PostID: p, CreatedAt: now}
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&records)
	return res.RowsAffected, res.Error
}

func (r *feedRepository) Remove(ctx context.Context, viewerID, postID string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", viewerID, postID).Delete(&model.Inbox{}).Error
}

func (r *feedRepository) RemoveForViewers(ctx context.Context, postID string, viewerIDs []string) error {
	if len(viewerIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("post_id = ? AND user_id IN ?", postID, viewerIDs).Delete(&model.Inbox{}).Error
}

func (r *feedRepository) RemovePosts(ctx context.Context, viewerID string, postIDs []string) error {
	if len(postIDs) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("user_id = ? AND post_id IN ?", viewerID, postIDs).Delete(&model.Inbox{}).Error
}

func (r *feedRepository) RemovePost(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.Inbox{}).Error
}

func (r *feedRepository) Exists(ctx context.Context, viewerID, postID string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Inbox{}).Where("user_id = ? AND post_id = ?", viewerID, postID).Count(&cnt).Error
	return cnt > 0, err
}

func (r *feedRepository) Window(ctx context.Context, viewerID, endAt string, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.Inbox{}).Where("user_id = ?", viewerID)
	return keyWindow(q, "post_id", endAt, limit)
}

func (r *feedRepository) Count(ctx context.Context, viewerID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Inbox{}).Where("user_id = ?", viewerID).Count(&cnt).Error
	return cnt, err
}

func (r *feedRepository) DeleteOrphans(ctx context.Context, limit int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM inbox WHERE id IN (
			SELECT i.id FROM inbox i
			WHERE NOT EXISTS (SELECT 1 FROM posts p WHERE p.id = i.post_id)
			LIMIT ?
		)`, limit)
	return res.RowsAffected, res.Error
}
