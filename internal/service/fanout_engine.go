package service

import (
	"context"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/photo-feed/internal/metrics"
	"github.com/d60-Lab/photo-feed/internal/repository"
)

// FanoutEngine 写扩散：发帖时把帖子推入作者与全部粉丝的 feed
type FanoutEngine struct {
	fans        repository.FanRepository
	feed        repository.FeedRepository
	posts       repository.PostRepository
	batchSize   int
	concurrency int
	tracer      trace.Tracer
}

func NewFanoutEngine(fans repository.FanRepository, feed repository.FeedRepository, posts repository.PostRepository, batchSize, concurrency int) *FanoutEngine {
	if batchSize <= 0 {
		batchSize = 500
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &FanoutEngine{
		fans:        fans,
		feed:        feed,
		posts:       posts,
		batchSize:   batchSize,
		concurrency: concurrency,
		tracer:      otel.Tracer("photo-feed/fanout"),
	}
}

// batchTracker 汇总并发批次的写入数与失败
type batchTracker struct {
	written atomic.Int64
	mu      sync.Mutex
	failed  int
	total   int
	err     error
}

func (t *batchTracker) record(size int, n int64, err error) {
	t.written.Add(n)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total += size
	if err != nil {
		t.failed += size
		t.err = multierr.Append(t.err, err)
		metrics.FanoutFailures.Inc()
	}
}

func (t *batchTracker) result(postID string) error {
	if t.err == nil {
		return nil
	}
	return &PartialFanoutError{PostID: postID, Failed: t.failed, Total: t.total, Err: t.err}
}

// PushToFeeds 为作者及调用时刻的每个粉丝写入 feed 项，返回新写入条数。
// 部分批次失败时返回 *PartialFanoutError，重复推送是幂等的。
func (e *FanoutEngine) PushToFeeds(ctx context.Context, postID, authorID string) (int64, error) {
	ctx, span := e.tracer.Start(ctx, "fanout.push", trace.WithAttributes(
		attribute.String("post.id", postID),
		attribute.String("author.id", authorID),
	))
	defer span.End()

	var t batchTracker
	n, err := e.feed.AddForViewers(ctx, postID, []string{authorID})
	t.record(1, n, err)

	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	after := ""
	for {
		fanIDs, err := e.fans.ListFanIDs(ctx, authorID, after, e.batchSize)
		if err != nil {
			// 粉丝列表读不到时无法得知剩余规模，按一个失败单元计
			t.record(1, 0, err)
			break
		}
		if len(fanIDs) == 0 {
			break
		}
		batch := fanIDs
		g.Go(func() error {
			n, err := e.feed.AddForViewers(ctx, postID, batch)
			t.record(len(batch), n, err)
			return nil
		})
		if len(fanIDs) < e.batchSize {
			break
		}
		after = fanIDs[len(fanIDs)-1]
	}
	_ = g.Wait()

	written := t.written.Load()
	metrics.FanoutWrites.Add(float64(written))
	span.SetAttributes(attribute.Int64("fanout.written", written), attribute.Int("fanout.total", t.total))
	if err := t.result(postID); err != nil {
		span.RecordError(err)
		return written, err
	}
	return written, nil
}

// RetractFromFeed 从单个查看者的 feed 移除帖子
func (e *FanoutEngine) RetractFromFeed(ctx context.Context, postID, viewerID string) error {
	return e.feed.Remove(ctx, viewerID, postID)
}

// RetractFromAllFeeds 批量从给定查看者的 feed 移除帖子
func (e *FanoutEngine) RetractFromAllFeeds(ctx context.Context, postID string, viewerIDs []string) error {
	var t batchTracker
	g := new(errgroup.Group)
	g.SetLimit(e.concurrency)
	for start := 0; start < len(viewerIDs); start += e.batchSize {
		batch := viewerIDs[start:min(start+e.batchSize, len(viewerIDs))]
		g.Go(func() error {
			t.record(len(batch), 0, e.feed.RemoveForViewers(ctx, postID, batch))
			return nil
		})
	}
	_ = g.Wait()
	return t.result(postID)
}

// RetractPost 删帖时按作者与当前粉丝批量撤回，全部成功后再清除其余查看者
// （曾被回填后又取关的）feed 中的残留项
func (e *FanoutEngine) RetractPost(ctx context.Context, postID, authorID string) error {
	ctx, span := e.tracer.Start(ctx, "fanout.retract", trace.WithAttributes(
		attribute.String("post.id", postID),
		attribute.String("author.id", authorID),
	))
	defer span.End()

	errs := e.RetractFromAllFeeds(ctx, postID, []string{authorID})
	after := ""
	for {
		fanIDs, err := e.fans.ListFanIDs(ctx, authorID, after, e.batchSize)
		if err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		if len(fanIDs) == 0 {
			break
		}
		errs = multierr.Append(errs, e.RetractFromAllFeeds(ctx, postID, fanIDs))
		if len(fanIDs) < e.batchSize {
			break
		}
		after = fanIDs[len(fanIDs)-1]
	}
	if errs != nil {
		span.RecordError(errs)
		return errs
	}
	return e.Purge(ctx, postID)
}

// Purge 从所有 feed 移除帖子，包括已取关但曾被回填的查看者
func (e *FanoutEngine) Purge(ctx context.Context, postID string) error {
	return e.feed.RemovePost(ctx, postID)
}

// Backfill 新关注时把被关注者已有的帖子写入关注者 feed，返回新写入条数
func (e *FanoutEngine) Backfill(ctx context.Context, followerID, followeeID string) (int64, error) {
	var written int64
	err := e.eachAuthorPage(ctx, followeeID, func(ids []string) error {
		n, err := e.feed.AddPosts(ctx, followerID, ids)
		written += n
		return err
	})
	metrics.FanoutWrites.Add(float64(written))
	return written, err
}

// RetractAuthor 取关时从关注者 feed 移除被关注者的全部帖子
func (e *FanoutEngine) RetractAuthor(ctx context.Context, viewerID, authorID string) error {
	return e.eachAuthorPage(ctx, authorID, func(ids []string) error {
		return e.feed.RemovePosts(ctx, viewerID, ids)
	})
}

func (e *FanoutEngine) eachAuthorPage(ctx context.Context, authorID string, fn func(ids []string) error) error {
	var errs error
	after := ""
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		ids, err := e.posts.ListUserPostIDs(ctx, authorID, after, e.batchSize)
		if err != nil {
			return multierr.Append(errs, err)
		}
		if len(ids) == 0 {
			return errs
		}
		errs = multierr.Append(errs, fn(ids))
		if len(ids) < e.batchSize {
			return errs
		}
		after = ids[len(ids)-1]
	}
}
