package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/metrics"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// FanoutWorker 从 outbox 拉取发帖事件并扇出到粉丝 feed
type FanoutWorker struct {
	outbox       repository.OutboxRepository
	posts        repository.PostRepository
	engine       *FanoutEngine
	claimLimit   int
	maxAttempts  int
	pollInterval time.Duration
	workers      int
	metricsCh    chan time.Duration // outbox->processed latency
}

func NewFanoutWorker(outbox repository.OutboxRepository, posts repository.PostRepository, engine *FanoutEngine, workers, claimLimit, maxAttempts int, pollInterval time.Duration) *FanoutWorker {
	if workers <= 0 {
		workers = 4
	}
	if claimLimit <= 0 {
		claimLimit = 128
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if pollInterval <= 0 {
		pollInterval = 50 * time.Millisecond
	}
	return &FanoutWorker{
		outbox:       outbox,
		posts:        posts,
		engine:       engine,
		workers:      workers,
		claimLimit:   claimLimit,
		maxAttempts:  maxAttempts,
		pollInterval: pollInterval,
		metricsCh:    make(chan time.Duration, 65536),
	}
}

// Metrics 返回扇出落地耗时的只读通道（每完成一条事件发送一次）
func (w *FanoutWorker) Metrics() <-chan time.Duration { return w.metricsCh }

// Start 启动若干 worker 轮询处理 outbox；返回停止函数，等待进行中的批次结束。
func (w *FanoutWorker) Start() func(context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
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

func (w *FanoutWorker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("fanout poll failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claim 一批 pending 事件并扇出，返回处理完成的事件数
func (w *FanoutWorker) ProcessOnce(ctx context.Context) (int, error) {
	batch, err := w.outbox.Claim(ctx, w.claimLimit)
	if err != nil {
		return 0, err
	}
	done := 0
	for _, ob := range batch {
		if w.process(ctx, ob) {
			done++
		}
	}
	return done, nil
}

func (w *FanoutWorker) process(ctx context.Context, ob *model.Outbox) bool {
	// 墓碑中的帖子不再扇出
	if _, err := w.posts.Get(ctx, ob.PostID); errors.Is(err, repository.ErrNotFound) {
		w.complete(ctx, ob, 0, "skipped")
		return true
	}

	written, err := w.engine.PushToFeeds(ctx, ob.PostID, ob.AuthorID)
	if err != nil {
		logger.Warn("fanout failed, will retry",
			zap.String("post", ob.PostID),
			zap.Int("attempt", ob.Attempts+1),
			zap.Error(err),
		)
		if rErr := w.outbox.MarkRetry(ctx, ob.ID, err, w.maxAttempts); rErr != nil {
			logger.Error("mark outbox retry", zap.String("outbox", ob.ID), zap.Error(rErr))
		}
		if ob.Attempts+1 >= w.maxAttempts {
			metrics.OutboxOutcomes.WithLabelValues("failed").Inc()
		} else {
			metrics.OutboxOutcomes.WithLabelValues("retry").Inc()
		}
		return false
	}
	// 推送期间帖子可能已被删除，删帖级联先于本次写入完成时需要补清
	if w.deletedMeanwhile(ctx, ob.PostID) {
		if err := w.engine.Purge(ctx, ob.PostID); err != nil {
			logger.Warn("purge feeds of deleted post", zap.String("post", ob.PostID), zap.Error(err))
		}
		w.complete(ctx, ob, 0, "skipped")
		return true
	}
	w.complete(ctx, ob, written, "done")
	return true
}

func (w *FanoutWorker) deletedMeanwhile(ctx context.Context, postID string) bool {
	p, err := w.posts.GetWithDeleted(ctx, postID)
	if errors.Is(err, repository.ErrNotFound) {
		return true
	}
	return err == nil && p.DeletedAt.Valid
}

func (w *FanoutWorker) complete(ctx context.Context, ob *model.Outbox, written int64, outcome string) {
	if err := w.outbox.MarkDone(ctx, ob.ID, written); err != nil {
		logger.Error("mark outbox done", zap.String("outbox", ob.ID), zap.Error(err))
		return
	}
	metrics.OutboxOutcomes.WithLabelValues(outcome).Inc()
	if !ob.CreatedAt.IsZero() {
		lat := time.Since(ob.CreatedAt)
		metrics.FanoutLatency.Observe(lat.Seconds())
		select {
		case w.metricsCh <- lat:
		default:
		}
	}
}
