package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/photo-feed/internal/model"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, recipientID, id string) (*model.Notification, error)
	// Delete 删除收件人名下的一条通知，返回是否真的删除
	Delete(ctx context.Context, recipientID, id string) (bool, error)
	ListByRecipient(ctx context.Context, recipientID string) ([]*model.Notification, error)
	MarkChecked(ctx context.Context, recipientID, id string) (bool, error)
	CountUnchecked(ctx context.Context, recipientID string) (int64, error)
	DeleteByPost(ctx context.Context, postID string) (int64, error)
	// DeleteByComment 删除由该评论触发的全部通知（评论通知与评论提及）
	DeleteByComment(ctx context.Context, commentID string) (int64, error)
	// DeleteOrphanLikes 删除找不到对应点赞边的点赞通知
	DeleteOrphanLikes(ctx context.Context, limit int) (int64, error)
	// DeleteOrphanComments 删除触发评论已不存在的评论类通知
	DeleteOrphanComments(ctx context.Context, limit int) (int64, error)
}

type notificationRepository struct{ db *gorm.DB }

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = NewKey()
	}
	return r.db.WithContext(ctx).Create(n).Error
}

func (r *notificationRepository) Get(ctx context.Context, recipientID, id string) (*model.Notification, error) {
	var n model.Notification
	if err := r.db.WithContext(ctx).Where("id = ? AND recipient_id = ?", id, recipientID).First(&n).Error; err != nil {
		return nil, translate(err)
	}
	return &n, nil
}

func (r *notificationRepository) Delete(ctx context.Context, recipientID, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND recipient_id = ?", id, recipientID).Delete(&model.Notification{})
	return res.RowsAffected > 0, res.Error
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*model.Notification, error) {
	var res []*model.Notification
	err := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID).Find(&res).Error
	return res, err
}

func (r *notificationRepository) MarkChecked(ctx context.Context, recipientID, id string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND recipient_id = ?", id, recipientID).
		Update("checked", true)
	return res.RowsAffected > 0, res.Error
}

func (r *notificationRepository) CountUnchecked(ctx context.Context, recipientID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Notification{}).
		Where("recipient_id = ? AND checked = ?", recipientID, false).
		Count(&cnt).Error
	return cnt, err
}

func (r *notificationRepository) DeleteByPost(ctx context.Context, postID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) DeleteByComment(ctx context.Context, commentID string) (int64, error) {
	if commentID == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Where("comment_id = ?", commentID).Delete(&model.Notification{})
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) DeleteOrphanLikes(ctx context.Context, limit int) (int64, error) {
	// 按 (trigger, post) 匹配边，点赞到写回通知 ID 之间的通知不会被误删
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM notifications WHERE id IN (
			SELECT n.id FROM notifications n
			WHERE n.type = ? AND NOT EXISTS (
				SELECT 1 FROM likes l WHERE l.user_id = n.trigger_id AND l.post_id = n.post_id
			)
			LIMIT ?
		)`, int(model.NotifyLike), limit)
	return res.RowsAffected, res.Error
}

func (r *notificationRepository) DeleteOrphanComments(ctx context.Context, limit int) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		DELETE FROM notifications WHERE id IN (
			SELECT n.id FROM notifications n
			WHERE n.type IN (?, ?) AND n.comment_id <> '' AND NOT EXISTS (
				SELECT 1 FROM comments c WHERE c.id = n.comment_id
			)
			LIMIT ?
		)`, int(model.NotifyComment), int(model.NotifyCommentMention), limit)
	return res.RowsAffected, res.Error
}
