package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/photo-feed/internal/model"
)

type HashtagRepository interface {
	Add(ctx context.Context, postID string, tags []string) error
	DeleteByPost(ctx context.Context, postID string) error
	TagsOf(ctx context.Context, postID string) ([]string, error)
	// Window 话题下帖子的游标窗口（按 post_id）
	Window(ctx context.Context, tag, endAt string, limit int) ([]string, error)
}

type hashtagRepository struct{ db *gorm.DB }

func NewHashtagRepository(db *gorm.DB) HashtagRepository { return &hashtagRepository{db: db} }

func (r *hashtagRepository) Add(ctx context.Context, postID string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	rows := make([]model.HashtagPost, len(tags))
	for i, t := range tags {
		rows[i] = model.HashtagPost{Tag: t, PostID: postID}
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (r *hashtagRepository) DeleteByPost(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.HashtagPost{}).Error
}

func (r *hashtagRepository) TagsOf(ctx context.Context, postID string) ([]string, error) {
	var tags []string
	err := r.db.WithContext(ctx).Model(&model.HashtagPost{}).Where("post_id = ?", postID).Order("tag").Pluck("tag", &tags).Error
	return tags, err
}

func (r *hashtagRepository) Window(ctx context.Context, tag, endAt string, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.HashtagPost{}).Where("tag = ?", tag)
	return keyWindow(q, "post_id", endAt, limit)
}
