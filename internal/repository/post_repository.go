package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/photo-feed/internal/model"
)

// PostRepository 帖子及作者帖子集合
type PostRepository interface {
	// Publish 在一个事务内落地帖子、作者帖子集合、作者自己的 feed、话题索引与 outbox 事件
	Publish(ctx context.Context, post *model.Post, hashtags []string) (*model.Outbox, error)
	Get(ctx context.Context, id string) (*model.Post, error)
	// GetWithDeleted 包含已打墓碑的帖子，用于级联删除的重入
	GetWithDeleted(ctx context.Context, id string) (*model.Post, error)
	GetMany(ctx context.Context, ids []string) (map[string]*model.Post, error)
	Tombstone(ctx context.Context, id string) error
	Purge(ctx context.Context, id string) error
	ListTombstoned(ctx context.Context, limit int) ([]*model.Post, error)

	// UserPostWindow 作者帖子集合的游标窗口（按 post_id）
	UserPostWindow(ctx context.Context, userID, endAt string, limit int) ([]string, error)
	// ListUserPostIDs 以 post_id 为键集遍历作者帖子
	ListUserPostIDs(ctx context.Context, userID, after string, limit int) ([]string, error)
	RemoveUserPost(ctx context.Context, userID, postID string) error
	CountUserPosts(ctx context.Context, userID string) (int64, error)
}

type postRepository struct{ db *gorm.DB }

func NewPostRepository(db *gorm.DB) PostRepository { return &postRepository{db: db} }

func (r *postRepository) Publish(ctx context.Context, post *model.Post, hashtags []string) (*model.Outbox, error) {
	if post.ID == "" {
		post.ID = NewKey()
	}
	now := time.Now()
	post.CreatedAt, post.UpdatedAt = now, now
	out := &model.Outbox{ID: uuid.New().String(), PostID: post.ID, AuthorID: post.AuthorID, CreatedAt: now, Status: model.OutboxPending}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(post).Error; err != nil {
			return err
		}
		if err := tx.Create(&model.UserPost{UserID: post.AuthorID, PostID: post.ID, CreatedAt: now}).Error; err != nil {
			return err
		}
		own := &model.Inbox{ID: uuid.New().String(), UserID: post.AuthorID, PostID: post.ID, CreatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(own).Error; err != nil {
			return err
		}
		if len(hashtags) > 0 {
			rows := make([]model.HashtagPost, len(hashtags))
			for i, tag := range hashtags {
				rows[i] = model.HashtagPost{Tag: tag, PostID: post.ID}
			}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Create(out).Error
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postRepository) Get(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *postRepository) GetWithDeleted(ctx context.Context, id string) (*model.Post, error) {
	var p model.Post
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (r *postRepository) GetMany(ctx context.Context, ids []string) (map[string]*model.Post, error) {
	out := make(map[string]*model.Post, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var posts []*model.Post
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&posts).Error; err != nil {
		return nil, err
	}
	for _, p := range posts {
		out[p.ID] = p
	}
	return out, nil
}

func (r *postRepository) Tombstone(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Post{}).Error
}

func (r *postRepository) Purge(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&model.Post{}).Error
}

func (r *postRepository) ListTombstoned(ctx context.Context, limit int) ([]*model.Post, error) {
	var res []*model.Post
	err := r.db.WithContext(ctx).Unscoped().Where("deleted_at IS NOT NULL").Limit(limit).Find(&res).Error
	return res, err
}

func (r *postRepository) UserPostWindow(ctx context.Context, userID, endAt string, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.UserPost{}).Where("user_id = ?", userID)
	return keyWindow(q, "post_id", endAt, limit)
}

func (r *postRepository) ListUserPostIDs(ctx context.Context, userID, after string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.UserPost{}).
		Where("user_id = ? AND post_id > ?", userID, after).
		Order("post_id").
		Limit(limit).
		Pluck("post_id", &ids).Error
	return ids, err
}

func (r *postRepository) RemoveUserPost(ctx context.Context, userID, postID string) error {
	return r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).Delete(&model.UserPost{}).Error
}

func (r *postRepository) CountUserPosts(ctx context.Context, userID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.UserPost{}).Where("user_id = ?", userID).Count(&cnt).Error
	return cnt, err
}
