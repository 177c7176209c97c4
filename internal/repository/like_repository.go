package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/photo-feed/internal/model"
)

// LikeOutcome 点赞/取消点赞后的状态
type LikeOutcome struct {
	// Changed 边是否真的被创建/删除
	Changed bool
	// Likes 操作后帖子的点赞计数
	Likes int64
	// Edge 新建的点赞边，或被删除的点赞边（取消点赞时带出通知 ID）
	Edge *model.Like
	// Floored 删除了边但计数已为 0，计数与边发生了背离
	Floored bool
}

// LikeRepository 点赞边与帖子点赞计数。边与计数在同一事务内变更，计数使用数据库原子加减。
type LikeRepository interface {
	Like(ctx context.Context, userID, postID string) (LikeOutcome, error)
	Unlike(ctx context.Context, userID, postID string) (LikeOutcome, error)
	// SetNotification 把通知 ID 写到指定点赞边上；边已被删除时返回 false
	SetNotification(ctx context.Context, likeID, notificationID string) (bool, error)
	Get(ctx context.Context, userID, postID string) (*model.Like, error)
	Exists(ctx context.Context, userID, postID string) (bool, error)
	LikedAmong(ctx context.Context, userID string, postIDs []string) (map[string]bool, error)
	// Window 点赞者游标窗口（按 user_id）
	Window(ctx context.Context, postID, endAt string, limit int) ([]string, error)
	ListByPost(ctx context.Context, postID string, limit int) ([]*model.Like, error)
	Delete(ctx context.Context, id string) error
	CountByPost(ctx context.Context, postID string) (int64, error)
	// Recount 以边数量重写计数，返回写入值
	Recount(ctx context.Context, postID string) (int64, error)
	// Divergent 返回计数与边数量不一致的帖子 ID
	Divergent(ctx context.Context, limit int) ([]string, error)
}

type likeRepository struct{ db *gorm.DB }

func NewLikeRepository(db *gorm.DB) LikeRepository { return &likeRepository{db: db} }

func (r *likeRepository) Like(ctx context.Context, userID, postID string) (LikeOutcome, error) {
	var out LikeOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, postID); err != nil {
			return err
		}
		edge := &model.Like{ID: uuid.New().String(), UserID: userID, PostID: postID}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(edge)
		if res.Error != nil {
			return res.Error
		}
		out.Changed = res.RowsAffected == 1
		if out.Changed {
			out.Edge = edge
			if err := tx.Model(&model.Post{}).Where("id = ?", postID).
				UpdateColumn("like_count", gorm.Expr("like_count + ?", 1)).Error; err != nil {
				return err
			}
		}
		likes, err := readLikeCount(tx, postID)
		out.Likes = likes
		return err
	})
	return out, err
}

func (r *likeRepository) Unlike(ctx context.Context, userID, postID string) (LikeOutcome, error) {
	var out LikeOutcome
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockPost(tx, postID); err != nil {
			return err
		}
		var edge model.Like
		err := tx.Where("user_id = ? AND post_id = ?", userID, postID).First(&edge).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err == nil {
			res := tx.Where("id = ?", edge.ID).Delete(&model.Like{})
			if res.Error != nil {
				return res.Error
			}
			out.Changed = res.RowsAffected == 1
			out.Edge = &edge
		}
		if out.Changed {
			res := tx.Model(&model.Post{}).Where("id = ? AND like_count > 0", postID).
				UpdateColumn("like_count", gorm.Expr("like_count - ?", 1))
			if res.Error != nil {
				return res.Error
			}
			out.Floored = res.RowsAffected == 0
		}
		likes, err := readLikeCount(tx, postID)
		out.Likes = likes
		return err
	})
	return out, err
}

// lockPost 读取帖子（postgres 下加行锁），已删除或不存在返回 ErrNotFound
func lockPost(tx *gorm.DB, postID string) (*model.Post, error) {
	q := tx.Select("id", "author_id", "like_count").Where("id = ?", postID)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p model.Post
	if err := q.First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func readLikeCount(tx *gorm.DB, postID string) (int64, error) {
	var counts []int64
	if err := tx.Model(&model.Post{}).Unscoped().Where("id = ?", postID).Pluck("like_count", &counts).Error; err != nil {
		return 0, err
	}
	if len(counts) == 0 {
		return 0, ErrNotFound
	}
	return counts[0], nil
}

func (r *likeRepository) SetNotification(ctx context.Context, likeID, notificationID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Like{}).
		Where("id = ?", likeID).
		Update("notification_id", notificationID)
	return res.RowsAffected > 0, res.Error
}

func (r *likeRepository) Get(ctx context.Context, userID, postID string) (*model.Like, error) {
	var l model.Like
	if err := r.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).First(&l).Error; err != nil {
		return nil, translate(err)
	}
	return &l, nil
}

func (r *likeRepository) Exists(ctx context.Context, userID, postID string) (bool, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).Where("user_id = ? AND post_id = ?", userID, postID).Count(&cnt).Error
	return cnt > 0, err
}

func (r *likeRepository) LikedAmong(ctx context.Context, userID string, postIDs []string) (map[string]bool, error) {
	out := make(map[string]bool, len(postIDs))
	if userID == "" || len(postIDs) == 0 {
		return out, nil
	}
	var ids []string
	if err := r.db.WithContext(ctx).Model(&model.Like{}).
		Where("user_id = ? AND post_id IN ?", userID, postIDs).
		Pluck("post_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (r *likeRepository) Window(ctx context.Context, postID, endAt string, limit int) ([]string, error) {
	q := r.db.WithContext(ctx).Model(&model.Like{}).Where("post_id = ?", postID)
	return keyWindow(q, "user_id", endAt, limit)
}

func (r *likeRepository) ListByPost(ctx context.Context, postID string, limit int) ([]*model.Like, error) {
	var res []*model.Like
	err := r.db.WithContext(ctx).Where("post_id = ?", postID).Order("user_id").Limit(limit).Find(&res).Error
	return res, err
}

func (r *likeRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Like{}).Error
}

func (r *likeRepository) CountByPost(ctx context.Context, postID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Model(&model.Like{}).Where("post_id = ?", postID).Count(&cnt).Error
	return cnt, err
}

func (r *likeRepository) Recount(ctx context.Context, postID string) (int64, error) {
	var cnt int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Like{}).Where("post_id = ?", postID).Count(&cnt).Error; err != nil {
			return err
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).UpdateColumn("like_count", cnt).Error
	})
	return cnt, err
}

func (r *likeRepository) Divergent(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Raw(`
		SELECT p.id
		FROM posts p
		LEFT JOIN (SELECT post_id, COUNT(*) AS n FROM likes GROUP BY post_id) l ON l.post_id = p.id
		WHERE p.deleted_at IS NULL AND p.like_count <> COALESCE(l.n, 0)
		LIMIT ?`, limit).Scan(&ids).Error
	return ids, err
}
