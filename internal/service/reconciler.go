package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/metrics"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// Report 一轮对账的修复统计
type Report struct {
	MirrorsAdded     int   `json:"mirrors_added"`
	OrphansRemoved   int   `json:"orphans_removed"`
	CountersFixed    int   `json:"counters_fixed"`
	TombstonesPurged int   `json:"tombstones_purged"`
	OutboxRequeued   int64 `json:"outbox_requeued"`
	FeedOrphans      int64 `json:"feed_orphans"`
	NotifyOrphans    int64 `json:"notify_orphans"`
}

// Reconciler 周期性修复关注镜像、点赞计数、残留墓碑、卡住的扇出事件，
// 以及指向已删除帖子的 feed 项和触发动作已撤销的通知
type Reconciler struct {
	follows  repository.FollowRepository
	fans     repository.FanRepository
	likes    repository.LikeRepository
	posts    repository.PostRepository
	outbox   repository.OutboxRepository
	feed     repository.FeedRepository
	notifs   repository.NotificationRepository
	postSvc  PostService
	batch    int
	staleAge time.Duration
	interval time.Duration
}

func NewReconciler(
	follows repository.FollowRepository,
	fans repository.FanRepository,
	likes repository.LikeRepository,
	posts repository.PostRepository,
	outbox repository.OutboxRepository,
	feed repository.FeedRepository,
	notifs repository.NotificationRepository,
	postSvc PostService,
	interval time.Duration,
) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Reconciler{
		follows:  follows,
		fans:     fans,
		likes:    likes,
		posts:    posts,
		outbox:   outbox,
		feed:     feed,
		notifs:   notifs,
		postSvc:  postSvc,
		batch:    500,
		staleAge: 5 * time.Minute,
		interval: interval,
	}
}

// RunOnce 执行一轮对账，单项失败不影响其它项
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	var rep Report
	var errs error

	missing, err := r.follows.MissingMirrors(ctx, r.batch)
	errs = multierr.Append(errs, err)
	for _, f := range missing {
		if err := r.fans.Create(ctx, f.FolloweeID, f.FollowerID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		rep.MirrorsAdded++
	}

	orphans, err := r.fans.Orphans(ctx, r.batch)
	errs = multierr.Append(errs, err)
	for _, f := range orphans {
		if err := r.fans.Delete(ctx, f.UserID, f.FanID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		rep.OrphansRemoved++
	}

	divergent, err := r.likes.Divergent(ctx, r.batch)
	errs = multierr.Append(errs, err)
	for _, postID := range divergent {
		if _, err := r.likes.Recount(ctx, postID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		rep.CountersFixed++
	}

	tombstoned, err := r.posts.ListTombstoned(ctx, r.batch)
	errs = multierr.Append(errs, err)
	for _, p := range tombstoned {
		if err := r.postSvc.DeletePost(ctx, p.AuthorID, p.ID); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		rep.TombstonesPurged++
	}

	requeued, err := r.outbox.Requeue(ctx, time.Now().Add(-r.staleAge))
	errs = multierr.Append(errs, err)
	rep.OutboxRequeued = requeued

	// 墓碑处理之后再扫，删帖完成后晚到的扇出写入在此清除
	feedOrphans, err := r.feed.DeleteOrphans(ctx, r.batch)
	errs = multierr.Append(errs, err)
	rep.FeedOrphans = feedOrphans

	likeOrphans, err := r.notifs.DeleteOrphanLikes(ctx, r.batch)
	errs = multierr.Append(errs, err)
	commentOrphans, err := r.notifs.DeleteOrphanComments(ctx, r.batch)
	errs = multierr.Append(errs, err)
	rep.NotifyOrphans = likeOrphans + commentOrphans

	metrics.Repairs.WithLabelValues("fan_mirror").Add(float64(rep.MirrorsAdded))
	metrics.Repairs.WithLabelValues("fan_orphan").Add(float64(rep.OrphansRemoved))
	metrics.Repairs.WithLabelValues("like_counter").Add(float64(rep.CountersFixed))
	metrics.Repairs.WithLabelValues("tombstone").Add(float64(rep.TombstonesPurged))
	metrics.Repairs.WithLabelValues("outbox_requeue").Add(float64(rep.OutboxRequeued))
	metrics.Repairs.WithLabelValues("feed_orphan").Add(float64(rep.FeedOrphans))
	metrics.Repairs.WithLabelValues("notification_orphan").Add(float64(rep.NotifyOrphans))
	return rep, errs
}

// Start 按固定间隔对账，返回停止函数
func (r *Reconciler) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rep, err := r.RunOnce(ctx)
				if err != nil {
					logger.Warn("reconcile pass incomplete", zap.Error(err))
				}
				if rep != (Report{}) {
					logger.Warn("reconciler repaired inconsistencies",
						zap.Int("mirrors_added", rep.MirrorsAdded),
						zap.Int("orphans_removed", rep.OrphansRemoved),
						zap.Int("counters_fixed", rep.CountersFixed),
						zap.Int("tombstones_purged", rep.TombstonesPurged),
						zap.Int64("outbox_requeued", rep.OutboxRequeued),
						zap.Int64("feed_orphans", rep.FeedOrphans),
						zap.Int64("notify_orphans", rep.NotifyOrphans),
					)
				}
			}
		}
	}()
	return func(stopCtx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}
