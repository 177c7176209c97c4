package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/repository"
)

// memBlobs 内存 blob 存储，可注入失败
type memBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	seq        int
	failUpload bool
	failDelete bool
}

func newMemBlobs() *memBlobs { return &memBlobs{objects: map[string][]byte{}} }

func (m *memBlobs) Upload(_ context.Context, data []byte, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpload {
		return "", errors.New("store unavailable")
	}
	m.seq++
	url := fmt.Sprintf("mem://blob/%d", m.seq)
	m.objects[url] = data
	return url, nil
}

func (m *memBlobs) Delete(_ context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete {
		return errors.New("delete unavailable")
	}
	delete(m.objects, url)
	return nil
}

func (m *memBlobs) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *memBlobs) setFailDelete(v bool) {
	m.mu.Lock()
	m.failDelete = v
	m.mu.Unlock()
}

type envConfig struct {
	syncFanout bool
	policy     NotifyPolicy
	replicator bool
}

type testEnv struct {
	ctx   context.Context
	db    *gorm.DB
	mr    *miniredis.Miniredis
	blobs *memBlobs

	users     repository.UserRepository
	follows   repository.FollowRepository
	fans      repository.FanRepository
	postRepo  repository.PostRepository
	feed      repository.FeedRepository
	outbox    repository.OutboxRepository
	likeRepo  repository.LikeRepository
	comments  repository.CommentRepository
	hashtags  repository.HashtagRepository
	notifRepo repository.NotificationRepository

	stats      *cache.StatsCache
	engine     *FanoutEngine
	worker     *FanoutWorker
	replicator *FanReplicator
	notify     NotificationService
	rel        RelationshipService
	posts      PostService
	likes      LikeService
	commentSvc CommentService
	userSvc    UserService
	reconciler *Reconciler
}

func newTestEnv(t *testing.T, opts ...func(*envConfig)) *testEnv {
	t.Helper()
	cfg := envConfig{syncFanout: true}
	for _, o := range opts {
		o(&cfg)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	e := &testEnv{ctx: context.Background(), db: db, mr: mr, blobs: newMemBlobs()}
	e.users = repository.NewUserRepository(db)
	e.follows = repository.NewFollowRepository(db)
	e.fans = repository.NewFanRepository(db)
	e.postRepo = repository.NewPostRepository(db)
	e.feed = repository.NewFeedRepository(db)
	e.outbox = repository.NewOutboxRepository(db)
	e.likeRepo = repository.NewLikeRepository(db)
	e.comments = repository.NewCommentRepository(db)
	e.hashtags = repository.NewHashtagRepository(db)
	e.notifRepo = repository.NewNotificationRepository(db)

	e.stats = cache.NewStatsCache(rdb, time.Minute, StatsLoader(e.follows, e.fans, e.postRepo))
	e.engine = NewFanoutEngine(e.fans, e.feed, e.postRepo, 2, 2)
	e.worker = NewFanoutWorker(e.outbox, e.postRepo, e.engine, 1, 16, 3, 10*time.Millisecond)
	if cfg.replicator {
		e.replicator = NewFanReplicator(e.fans, 16)
	}
	e.notify = NewNotificationService(e.notifRepo, e.users, cfg.policy)
	e.rel = NewRelationshipService(e.follows, e.fans, e.users, e.engine, e.notify, e.stats, e.replicator)
	e.posts = NewPostService(PostStores{
		Posts:    e.postRepo,
		Users:    e.users,
		Feed:     e.feed,
		Outbox:   e.outbox,
		Likes:    e.likeRepo,
		Comments: e.comments,
		Hashtags: e.hashtags,
	}, e.blobs, e.engine, e.notify, e.stats, cfg.syncFanout)
	e.likes = NewLikeService(e.likeRepo, e.postRepo, e.users, e.follows, e.notify)
	e.commentSvc = NewCommentService(e.comments, e.postRepo, e.users, e.notify, cache.NewCommentBroker(rdb))
	e.userSvc = NewUserService(e.users, e.follows, e.stats, e.blobs)
	e.reconciler = NewReconciler(e.follows, e.fans, e.likeRepo, e.postRepo, e.outbox, e.feed, e.notifRepo, e.posts, time.Minute)
	return e
}

func asyncFanout(c *envConfig) { c.syncFanout = false }

func withSelfComment(c *envConfig) { c.policy.SelfComment = true }

func withReplicator(c *envConfig) { c.replicator = true }

func (e *testEnv) user(t *testing.T, username string) *model.User {
	t.Helper()
	u, err := e.userSvc.Register(e.ctx, RegisterRequest{ID: "id-" + username, Username: username})
	require.NoError(t, err)
	return u
}

func (e *testEnv) post(t *testing.T, ownerID, caption string) *model.Post {
	t.Helper()
	p, err := e.posts.CreatePost(e.ctx, ownerID, CreatePostRequest{
		Images:  []ImageUpload{{Data: []byte("img"), ContentType: "image/jpeg"}},
		Caption: caption,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) follow(t *testing.T, followerID, followeeID string) {
	t.Helper()
	_, err := e.rel.Follow(e.ctx, followerID, followeeID)
	require.NoError(t, err)
}

func (e *testEnv) inFeed(t *testing.T, viewerID, postID string) bool {
	t.Helper()
	ok, err := e.feed.Exists(e.ctx, viewerID, postID)
	require.NoError(t, err)
	return ok
}

func (e *testEnv) notificationsOf(t *testing.T, userID string) []NotificationView {
	t.Helper()
	list, err := e.notify.ListForUser(e.ctx, userID)
	require.NoError(t, err)
	return list
}

func (e *testEnv) likeCount(t *testing.T, postID string) int64 {
	t.Helper()
	var p model.Post
	require.NoError(t, e.db.Unscoped().First(&p, "id = ?", postID).Error)
	return p.LikeCount
}
