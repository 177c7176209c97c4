package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/config"
	_ "github.com/d60-Lab/photo-feed/docs"
	"github.com/d60-Lab/photo-feed/internal/api"
	"github.com/d60-Lab/photo-feed/internal/api/handler"
	"github.com/d60-Lab/photo-feed/internal/auth"
	"github.com/d60-Lab/photo-feed/internal/blob"
	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/internal/service"
	rediscache "github.com/d60-Lab/photo-feed/pkg/cache"
	"github.com/d60-Lab/photo-feed/pkg/database"
	"github.com/d60-Lab/photo-feed/pkg/logger"
	"github.com/d60-Lab/photo-feed/pkg/tracing"
)

// @title Photo Feed API
// @version 1.0
// @description 关注关系、feed 扇出、点赞评论与通知
// @host localhost:8080
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment}); err != nil {
			logger.Warn("sentry disabled", zap.Error(err))
		}
		defer sentry.Flush(2 * time.Second)
	}

	shutdownTracing, err := tracing.Init(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close(db) }()

	rdb, err := rediscache.InitRedis(cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	store, blobDir, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	posts := repository.NewPostRepository(db)
	feed := repository.NewFeedRepository(db)
	outbox := repository.NewOutboxRepository(db)
	likes := repository.NewLikeRepository(db)
	comments := repository.NewCommentRepository(db)

	stats := cache.NewStatsCache(rdb, cfg.Redis.StatsTTL, service.StatsLoader(follows, fans, posts))
	engine := service.NewFanoutEngine(fans, feed, posts, cfg.Fanout.BatchSize, cfg.Fanout.Concurrency)
	notifications := repository.NewNotificationRepository(db)
	notify := service.NewNotificationService(notifications, users, service.NotifyPolicy{
		SelfComment: cfg.Notification.SelfComment,
	})

	var replicator *service.FanReplicator
	if cfg.Replicator.Enabled {
		replicator = service.NewFanReplicator(fans, cfg.Replicator.QueueSize)
	}
	postSvc := service.NewPostService(service.PostStores{
		Posts:    posts,
		Users:    users,
		Feed:     feed,
		Outbox:   outbox,
		Likes:    likes,
		Comments: comments,
		Hashtags: repository.NewHashtagRepository(db),
	}, store, engine, notify, stats, cfg.FanoutSync())

	h := handler.New(handler.Services{
		Users:         service.NewUserService(users, follows, stats, store),
		Relations:     service.NewRelationshipService(follows, fans, users, engine, notify, stats, replicator),
		Posts:         postSvc,
		Likes:         service.NewLikeService(likes, posts, users, follows, notify),
		Comments:      service.NewCommentService(comments, posts, users, notify, cache.NewCommentBroker(rdb)),
		Notifications: notify,
	})

	// 同步模式下 worker 仍负责重试扇出失败的事件
	worker := service.NewFanoutWorker(outbox, posts, engine, cfg.Fanout.Workers, cfg.Fanout.ClaimLimit, cfg.Fanout.MaxAttempts, cfg.Fanout.PollInterval)
	stopWorker := worker.Start()
	stopReplicator := func(context.Context) error { return nil }
	if replicator != nil {
		stopReplicator = replicator.Start(cfg.Replicator.Workers)
	}
	reconciler := service.NewReconciler(follows, fans, likes, posts, outbox, feed, notifications, postSvc, cfg.Reconciler.Interval)
	stopReconciler := reconciler.Start()

	router := api.NewRouter(h, auth.NewJWTResolver(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.TTL), api.Options{
		Mode:        cfg.Server.Mode,
		ServiceName: cfg.Tracing.ServiceName,
		BlobDir:     blobDir,
		RateLimit:   cfg.RateLimit.RPS,
		Burst:       cfg.RateLimit.Burst,
		Tracing:     cfg.Tracing.Enabled,
	})
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", srv.Addr), zap.String("fanout_mode", cfg.Fanout.Mode))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	// 先停入口，再排空后台任务，最后刷新链路数据
	for _, t := range []struct {
		name string
		stop func(context.Context) error
	}{
		{"fanout_worker", stopWorker},
		{"replicator", stopReplicator},
		{"reconciler", stopReconciler},
		{"tracing", shutdownTracing},
	} {
		if err := t.stop(ctx); err != nil {
			logger.Warn("stop background task", zap.String("task", t.name), zap.Error(err))
		}
	}
	return nil
}

// newBlobStore 按配置创建图片存储并套上熔断器；本地存储同时返回需要静态托管的目录
func newBlobStore(cfg *config.Config) (blob.Store, string, error) {
	switch cfg.Blob.Driver {
	case "supabase":
		s := blob.NewSupabaseStore(cfg.Blob.SupabaseURL, cfg.Blob.SupabaseKey, cfg.Blob.Bucket)
		return blob.NewBreaker(s, blob.DefaultBreakerConfig("supabase")), "", nil
	default:
		s, err := blob.NewLocalStore(cfg.Blob.Dir, cfg.Blob.BaseURL)
		if err != nil {
			return nil, "", err
		}
		return blob.NewBreaker(s, blob.DefaultBreakerConfig("local")), s.Dir(), nil
	}
}
