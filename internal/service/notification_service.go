package service

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/metrics"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// NotifyPolicy 自我通知策略。点赞、关注与提及永不通知自己；评论由 SelfComment 决定。
type NotifyPolicy struct {
	SelfComment bool
}

func (p NotifyPolicy) allowsSelf(t model.NotificationType) bool {
	return t == model.NotifyComment && p.SelfComment
}

// NotificationView 通知及其触发者，用于展示
type NotificationView struct {
	*model.Notification
	Trigger *model.User `json:"trigger,omitempty"`
	Message string      `json:"message"`
}

// NotificationService 通知分发
type NotificationService interface {
	// Notify 写入一条通知并返回其 ID；被策略抑制时返回空串
	Notify(ctx context.Context, recipientID, triggerID string, typ model.NotificationType, postID, commentID string) (string, error)
	// Retract 撤回一条通知，不存在时视为成功
	Retract(ctx context.Context, recipientID, notificationID string) error
	RetractForPost(ctx context.Context, postID string) (int64, error)
	// RetractForComment 撤回由某条评论触发的全部通知
	RetractForComment(ctx context.Context, commentID string) (int64, error)
	ListForUser(ctx context.Context, recipientID string) ([]NotificationView, error)
	MarkChecked(ctx context.Context, recipientID, notificationID string) error
	Delete(ctx context.Context, recipientID, notificationID string) error
	UnreadCount(ctx context.Context, recipientID string) (int64, error)
}

type notificationService struct {
	repo   repository.NotificationRepository
	users  repository.UserRepository
	policy NotifyPolicy
}

func NewNotificationService(repo repository.NotificationRepository, users repository.UserRepository, policy NotifyPolicy) NotificationService {
	return &notificationService{repo: repo, users: users, policy: policy}
}

// Describe 通知类型的展示文案，拼接在触发者用户名之后
func Describe(t model.NotificationType) string { return t.Description() }

func (s *notificationService) Notify(ctx context.Context, recipientID, triggerID string, typ model.NotificationType, postID, commentID string) (string, error) {
	if !typ.Valid() {
		return "", invalid("notification type %d", typ)
	}
	if recipientID == "" || triggerID == "" {
		return "", invalid("notification needs recipient and trigger")
	}
	if recipientID == triggerID && !s.policy.allowsSelf(typ) {
		metrics.Notifications.WithLabelValues(typ.String(), "suppressed").Inc()
		return "", nil
	}
	n := &model.Notification{
		RecipientID: recipientID,
		TriggerID:   triggerID,
		Type:        typ,
		PostID:      postID,
		CommentID:   commentID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return "", err
	}
	metrics.Notifications.WithLabelValues(typ.String(), "created").Inc()
	return n.ID, nil
}

func (s *notificationService) Retract(ctx context.Context, recipientID, notificationID string) error {
	if notificationID == "" {
		return nil
	}
	removed, err := s.repo.Delete(ctx, recipientID, notificationID)
	if err != nil {
		return err
	}
	if removed {
		metrics.Notifications.WithLabelValues("any", "retracted").Inc()
	}
	return nil
}

func (s *notificationService) RetractForPost(ctx context.Context, postID string) (int64, error) {
	n, err := s.repo.DeleteByPost(ctx, postID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.Notifications.WithLabelValues("any", "retracted").Add(float64(n))
	}
	return n, nil
}

func (s *notificationService) RetractForComment(ctx context.Context, commentID string) (int64, error) {
	n, err := s.repo.DeleteByComment(ctx, commentID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.Notifications.WithLabelValues("any", "retracted").Add(float64(n))
	}
	return n, nil
}

func (s *notificationService) ListForUser(ctx context.Context, recipientID string) ([]NotificationView, error) {
	if recipientID == "" {
		return nil, ErrUnauthorized
	}
	rows, err := s.repo.ListByRecipient(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	// 单次拉取后在调用侧按创建时间倒序
	slices.SortStableFunc(rows, func(a, b *model.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	triggerIDs := make([]string, 0, len(rows))
	for _, n := range rows {
		triggerIDs = append(triggerIDs, n.TriggerID)
	}
	triggers, err := s.users.GetMany(ctx, triggerIDs)
	if err != nil {
		return nil, err
	}

	out := make([]NotificationView, 0, len(rows))
	for _, n := range rows {
		u, ok := triggers[n.TriggerID]
		if !ok {
			logger.Debug("skip notification with missing trigger", zap.String("notification", n.ID))
			continue
		}
		out = append(out, NotificationView{Notification: n, Trigger: u, Message: u.Username + Describe(n.Type)})
	}
	return out, nil
}

func (s *notificationService) MarkChecked(ctx context.Context, recipientID, notificationID string) error {
	if recipientID == "" {
		return ErrUnauthorized
	}
	ok, err := s.repo.MarkChecked(ctx, recipientID, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) Delete(ctx context.Context, recipientID, notificationID string) error {
	if recipientID == "" {
		return ErrUnauthorized
	}
	ok, err := s.repo.Delete(ctx, recipientID, notificationID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID string) (int64, error) {
	if recipientID == "" {
		return 0, ErrUnauthorized
	}
	return s.repo.CountUnchecked(ctx, recipientID)
}
