package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// CommentEventType 评论流事件类型
type CommentEventType string

const (
	CommentAdded   CommentEventType = "added"
	CommentRemoved CommentEventType = "removed"
)

// CommentEvent 评论子节点新增 / 删除事件
type CommentEvent struct {
	Type    CommentEventType `json:"type"`
	Comment *model.Comment   `json:"comment"`
}

// CommentBroker 通过 redis pub/sub 分发评论事件，频道 comments:<postID>
type CommentBroker struct {
	client *redis.Client
}

func NewCommentBroker(client *redis.Client) *CommentBroker {
	return &CommentBroker{client: client}
}

func commentChannel(postID string) string { return fmt.Sprintf("comments:%s", postID) }

func (b *CommentBroker) Publish(ctx context.Context, postID string, ev CommentEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, commentChannel(postID), payload).Err()
}

// Subscription 一个帖子的评论事件订阅
type Subscription struct {
	pubsub *redis.PubSub
	events chan CommentEvent
}

// Subscribe 订阅帖子评论事件，返回时订阅已生效。ctx 结束或 Close 后事件通道关闭。
func (b *CommentBroker) Subscribe(ctx context.Context, postID string) (*Subscription, error) {
	ps := b.client.Subscribe(ctx, commentChannel(postID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", commentChannel(postID), err)
	}
	sub := &Subscription{pubsub: ps, events: make(chan CommentEvent, 64)}
	go sub.pump(ctx)
	return sub, nil
}

func (s *Subscription) pump(ctx context.Context) {
	defer close(s.events)
	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.pubsub.Close()
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var ev CommentEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warn("drop malformed comment event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.events <- ev:
			case <-ctx.Done():
				_ = s.pubsub.Close()
				return
			}
		}
	}
}

func (s *Subscription) Events() <-chan CommentEvent { return s.events }

func (s *Subscription) Close() error { return s.pubsub.Close() }
