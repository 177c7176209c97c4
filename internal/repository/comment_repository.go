package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/photo-feed/internal/model"
)

type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	Get(ctx context.Context, postID, commentID string) (*model.Comment, error)
	// SetNotification 评论已被删除时返回 false
	SetNotification(ctx context.Context, commentID, notificationID string) (bool, error)
	Delete(ctx context.Context, commentID string) (bool, error)
	// ListByPost 按创建时间升序返回帖子下的评论
	ListByPost(ctx context.Context, postID string) ([]*model.Comment, error)
	DeleteByPost(ctx context.Context, postID string) error
	CountByPost(ctx context.Context, postID string) (int64, error)
}

type commentRepository struct{ db *gorm.DB }

func NewCommentRepository(db *gorm.DB) CommentRepository { return &commentRepository{db: db} }

func (r *commentRepository) Create(ctx context.Context, c *model.Comment) error {
	if c.ID == "" {
		c.ID = NewKey()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *commentRepository) Get(ctx context.Context, postID, commentID string) (*model.Comment, error) {
	var c model.Comment
	if err := r.db.WithContext(ctx).Where("id = ? AND post_id = ?", commentID, postID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *commentRepository) SetNotification(ctx context.Context, commentID, notificationID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Comment{}).Where("id = ?", commentID).Update("notification_id", notificationID)
	return res.RowsAffected > 0, res.Error
}

func (r *commentRepository) Delete(ctx context.Context, commentID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", commentID).Delete(&model.Comment{})
	return res.RowsAffected > 0, res.Error
}

func (r *commentRepository) ListByPost(ctx context.Context, postID string) ([]*model.Comment, error) {
	var res []*model.Comment
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("created_at, id").Find(&res).Error
	return res, err
}

func (r *commentRepository) DeleteByPost(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.Comment{}).Error
}

func (r *commentRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Comment{}).Where("post_id = ?", postID).Count(&cnt).Error
	return cnt, err
}
