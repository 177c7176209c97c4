package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/d60-Lab/photo-feed/internal/model"
)

// OutboxRepository 扇出事件队列
type OutboxRepository interface {
	// Claim 认领一批 pending 事件并置为 processing
	Claim(ctx context.Context, limit int) ([]*model.Outbox, error)
	MarkDone(ctx context.Context, id string, fanoutCount int64) error
	// MarkRetry 记录失败；尝试次数达到 maxAttempts 后置为 failed，否则回到 pending
	MarkRetry(ctx context.Context, id string, cause error, maxAttempts int) error
	DeleteByPost(ctx context.Context, postID string) error
	Get(ctx context.Context, id string) (*model.Outbox, error)
	// Requeue 把 claimed_at 早于 before 仍处于 processing 的事件放回 pending（worker 崩溃后恢复）
	Requeue(ctx context.Context, before time.Time) (int64, error)
}

type outboxRepository struct{ db *gorm.DB }

func NewOutboxRepository(db *gorm.DB) OutboxRepository { return &outboxRepository{db: db} }

func (r *outboxRepository) Claim(ctx context.Context, limit int) ([]*model.Outbox, error) {
	if r.db.Dialector.Name() == "postgres" {
		return r.claimSkipLocked(ctx, limit)
	}
	return r.claimConditional(ctx, limit)
}

// claimSkipLocked 使用 SELECT ... FOR UPDATE SKIP LOCKED，多 worker 互不阻塞
func (r *outboxRepository) claimSkipLocked(ctx context.Context, limit int) ([]*model.Outbox, error) {
	var batch []*model.Outbox
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Raw(`
            SELECT *
            FROM outbox
            WHERE status = 'pending'
            ORDER BY created_at
            LIMIT ?
            FOR UPDATE SKIP LOCKED
        `, limit).Scan(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		ids := make([]string, len(batch))
		for i, b := range batch {
			ids[i] = b.ID
		}
		now := time.Now()
		if err := tx.Model(&model.Outbox{}).Where("id IN ?", ids).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now}).Error; err != nil {
			return err
		}
		for _, b := range batch {
			b.Status, b.ClaimedAt = model.OutboxProcessing, &now
		}
		return nil
	})
	return batch, err
}

// claimConditional 逐条条件更新 status，只有更新成功的 worker 获得该事件
func (r *outboxRepository) claimConditional(ctx context.Context, limit int) ([]*model.Outbox, error) {
	var candidates []*model.Outbox
	if err := r.db.WithContext(ctx).
		Where("status = ?", model.OutboxPending).
		Order("created_at").
		Limit(limit).
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	claimed := candidates[:0]
	for _, c := range candidates {
		now := time.Now()
		res := r.db.WithContext(ctx).Model(&model.Outbox{}).
			Where("id = ? AND status = ?", c.ID, model.OutboxPending).
			Updates(map[string]any{"status": model.OutboxProcessing, "claimed_at": now})
		if res.Error != nil {
			return claimed, res.Error
		}
		if res.RowsAffected == 1 {
			c.Status, c.ClaimedAt = model.OutboxProcessing, &now
			claimed = append(claimed, c)
		}
	}
	return claimed, nil
}

func (r *outboxRepository) MarkDone(ctx context.Context, id string, fanoutCount int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": model.OutboxDone, "processed_at": now, "fanout_count": fanoutCount, "last_error": ""}).Error
}

func (r *outboxRepository) MarkRetry(ctx context.Context, id string, cause error, maxAttempts int) error {
	var ob model.Outbox
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ob).Error; err != nil {
		return translate(err)
	}
	status := model.OutboxPending
	if ob.Attempts+1 >= maxAttempts {
		status = model.OutboxFailed
	}
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "attempts": ob.Attempts + 1, "last_error": msg}).Error
}

func (r *outboxRepository) DeleteByPost(ctx context.Context, postID string) error {
	return r.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&model.Outbox{}).Error
}

func (r *outboxRepository) Get(ctx context.Context, id string) (*model.Outbox, error) {
	var ob model.Outbox
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&ob).Error; err != nil {
		return nil, translate(err)
	}
	return &ob, nil
}

func (r *outboxRepository) Requeue(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Outbox{}).
		Where("status = ? AND claimed_at < ?", model.OutboxProcessing, before).
		Update("status", model.OutboxPending)
	return res.RowsAffected, res.Error
}
