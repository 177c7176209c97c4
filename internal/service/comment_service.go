package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/internal/textscan"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// CommentService 评论
type CommentService interface {
	SubmitComment(ctx context.Context, userID, postID, text string) (*model.Comment, error)
	// DeleteComment 评论作者或帖子作者可删除
	DeleteComment(ctx context.Context, actorID, postID, commentID string) error
	// ListComments 按创建时间倒序
	ListComments(ctx context.Context, postID string) ([]*model.Comment, error)
	// StreamComments 先以 added 事件按时间正序发送已有评论，再持续推送新增 / 删除，ctx 结束时关闭通道
	StreamComments(ctx context.Context, postID string) (<-chan cache.CommentEvent, error)
}

type commentService struct {
	comments repository.CommentRepository
	posts    repository.PostRepository
	users    repository.UserRepository
	notifier NotificationService
	broker   *cache.CommentBroker
	validate *validator.Validate
}

func NewCommentService(comments repository.CommentRepository, posts repository.PostRepository, users repository.UserRepository, notifier NotificationService, broker *cache.CommentBroker) CommentService {
	return &commentService{
		comments: comments,
		posts:    posts,
		users:    users,
		notifier: notifier,
		broker:   broker,
		validate: validator.New(),
	}
}

func (s *commentService) SubmitComment(ctx context.Context, userID, postID, text string) (*model.Comment, error) {
	if userID == "" {
		return nil, ErrUnauthorized
	}
	text = strings.TrimSpace(text)
	if err := s.validate.Var(text, "required,max=500"); err != nil {
		return nil, fmt.Errorf("%w: comment text: %v", ErrInvalidArgument, err)
	}
	post, err := s.posts.Get(ctx, postID)
	if err != nil {
		return nil, notFound(err, ErrPostNotFound)
	}
	author, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, notFound(err, ErrUserNotFound)
	}

	c := &model.Comment{PostID: postID, UserID: userID, Text: text}
	if err := s.comments.Create(ctx, c); err != nil {
		return nil, err
	}
	c.User = author

	nid, err := s.notifier.Notify(ctx, post.AuthorID, userID, model.NotifyComment, postID, c.ID)
	if err != nil {
		logger.Warn("comment notification failed", zap.String("comment", c.ID), zap.Error(err))
	} else if nid != "" {
		c.NotificationID = nid
		stored, err := s.comments.SetNotification(ctx, c.ID, nid)
		if err != nil {
			logger.Warn("store comment notification id", zap.String("comment", c.ID), zap.Error(err))
		} else if !stored {
			// 评论已被并发删除
			_ = s.notifier.Retract(ctx, post.AuthorID, nid)
		}
	}

	for _, name := range textscan.Mentions(text) {
		u, err := s.users.GetByUsername(ctx, name)
		if err != nil {
			continue
		}
		if _, err := s.notifier.Notify(ctx, u.ID, userID, model.NotifyCommentMention, postID, c.ID); err != nil {
			logger.Warn("comment mention notification failed", zap.String("recipient", u.ID), zap.Error(err))
		}
	}

	s.publish(ctx, postID, cache.CommentEvent{Type: cache.CommentAdded, Comment: c})
	return c, nil
}

func (s *commentService) DeleteComment(ctx context.Context, actorID, postID, commentID string) error {
	if actorID == "" {
		return ErrUnauthorized
	}
	c, err := s.comments.Get(ctx, postID, commentID)
	if err != nil {
		return notFound(err, ErrCommentNotFound)
	}
	post, err := s.posts.GetWithDeleted(ctx, postID)
	if err != nil {
		return notFound(err, ErrPostNotFound)
	}
	if actorID != c.UserID && actorID != post.AuthorID {
		return ErrForbidden
	}
	removed, err := s.comments.Delete(ctx, commentID)
	if err != nil {
		return err
	}
	if !removed {
		return ErrCommentNotFound
	}
	// 评论通知与评论提及都带有 comment_id，一并撤回
	if _, err := s.notifier.RetractForComment(ctx, commentID); err != nil {
		logger.Warn("retract comment notifications", zap.String("comment", commentID), zap.Error(err))
	}
	s.publish(ctx, postID, cache.CommentEvent{Type: cache.CommentRemoved, Comment: c})
	return nil
}

func (s *commentService) ListComments(ctx context.Context, postID string) ([]*model.Comment, error) {
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return nil, notFound(err, ErrPostNotFound)
	}
	list, err := s.hydrated(ctx, postID)
	if err != nil {
		return nil, err
	}
	slices.Reverse(list)
	return list, nil
}

// hydrated 按创建时间正序返回评论，作者缺失的评论被跳过
func (s *commentService) hydrated(ctx context.Context, postID string) ([]*model.Comment, error) {
	list, err := s.comments.ListByPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(list))
	for _, c := range list {
		ids = append(ids, c.UserID)
	}
	users, err := s.users.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, c := range list {
		if u, ok := users[c.UserID]; ok {
			c.User = u
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *commentService) StreamComments(ctx context.Context, postID string) (<-chan cache.CommentEvent, error) {
	if s.broker == nil {
		return nil, fmt.Errorf("comment streaming is not configured")
	}
	if _, err := s.posts.Get(ctx, postID); err != nil {
		return nil, notFound(err, ErrPostNotFound)
	}
	// 先订阅再读快照，快照与实时事件的重叠按 ID 去重
	sub, err := s.broker.Subscribe(ctx, postID)
	if err != nil {
		return nil, err
	}
	snapshot, err := s.hydrated(ctx, postID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	out := make(chan cache.CommentEvent, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		seen := make(map[string]bool, len(snapshot))
		send := func(ev cache.CommentEvent) bool {
			select {
			case out <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, c := range snapshot {
			seen[c.ID] = true
			if !send(cache.CommentEvent{Type: cache.CommentAdded, Comment: c}) {
				return
			}
		}
		for ev := range sub.Events() {
			if ev.Comment == nil {
				continue
			}
			if ev.Type == cache.CommentAdded {
				if seen[ev.Comment.ID] {
					continue
				}
				seen[ev.Comment.ID] = true
			}
			if !send(ev) {
				return
			}
		}
	}()
	return out, nil
}

func (s *commentService) publish(ctx context.Context, postID string, ev cache.CommentEvent) {
	if s.broker == nil {
		return
	}
	if err := s.broker.Publish(ctx, postID, ev); err != nil {
		logger.Warn("publish comment event", zap.String("post", postID), zap.Error(err))
	}
}
