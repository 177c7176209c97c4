package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/photo-feed/config"
	"github.com/d60-Lab/photo-feed/internal/blob"
	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/internal/service"
	"github.com/d60-Lab/photo-feed/pkg/database"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	N := envInt("N", 20000)         // 作者粉丝数
	POSTS := envInt("POSTS", 100)   // 发帖数
	WORKERS := envInt("WORKERS", 8) // outbox worker 数
	BATCH := envInt("BATCH", 1000)  // feed 批量写入大小
	CLAIM := envInt("CLAIM", 64)    // 每次 claim 的事件数
	PAGE := envInt("PAGE", 50)

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	posts := repository.NewPostRepository(db)
	feed := repository.NewFeedRepository(db)
	outbox := repository.NewOutboxRepository(db)

	store := must(blob.NewLocalStore(must(os.MkdirTemp("", "feedbench")), "http://localhost/blobs"))
	defer os.RemoveAll(store.Dir())

	stats := cache.NewStatsCache(nil, 0, service.StatsLoader(follows, fans, posts))
	engine := service.NewFanoutEngine(fans, feed, posts, BATCH, 4)
	notify := service.NewNotificationService(repository.NewNotificationRepository(db), users, service.NotifyPolicy{})
	postSvc := service.NewPostService(service.PostStores{
		Posts:    posts,
		Users:    users,
		Feed:     feed,
		Outbox:   outbox,
		Likes:    repository.NewLikeRepository(db),
		Comments: repository.NewCommentRepository(db),
		Hashtags: repository.NewHashtagRepository(db),
	}, store, engine, notify, stats, false)

	// 每次运行使用新的作者与粉丝，避免清表
	run := uuid.NewString()[:8]
	author := &model.User{ID: "author-" + run, Username: "author_" + run}
	check(users.Create(ctx, author))
	fanIDs := make([]string, N)
	for i := range fanIDs {
		id := uuid.NewString()
		fanIDs[i] = id
		check(users.Create(ctx, &model.User{ID: id, Username: "u" + id[:8] + run}))
		_, _ = follows.Create(ctx, id, author.ID)
		_ = fans.Create(ctx, author.ID, id)
	}

	worker := service.NewFanoutWorker(outbox, posts, engine, WORKERS, CLAIM, 5, 20*time.Millisecond)
	stop := worker.Start()

	img := []service.ImageUpload{{Data: []byte("\xff\xd8\xff\xe0bench"), ContentType: "image/jpeg"}}
	pubDurations := make([]time.Duration, 0, POSTS)
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		if _, err := postSvc.CreatePost(ctx, author.ID, service.CreatePostRequest{Images: img, Caption: fmt.Sprintf("hello %d #bench", i)}); err != nil {
			panic(err)
		}
		pubDurations = append(pubDurations, time.Since(st))
	}

	land := make([]time.Duration, 0, POSTS)
	timeout := time.After(2 * time.Minute)
collect:
	for len(land) < POSTS {
		select {
		case d := <-worker.Metrics():
			land = append(land, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for fanout metrics: got=%d want=%d\n", len(land), POSTS)
			break collect
		}
	}

	check(stop(ctx))

	// 同步扇出：直接推送同一作者的一条新帖
	p := &model.Post{AuthorID: author.ID, Caption: "sync"}
	must(posts.Publish(ctx, p, nil))
	st := time.Now()
	written, err := engine.PushToFeeds(ctx, p.ID, author.ID)
	syncDur := time.Since(st)

	fmt.Printf("N=%d POSTS=%d WORKERS=%d BATCH=%d CLAIM=%d\n", N, POSTS, WORKERS, BATCH, CLAIM)
	fmt.Printf("CreatePost latency: avg=%v p95=%v p99=%v\n", avg(pubDurations), pct(pubDurations, 0.95), pct(pubDurations, 0.99))
	fmt.Printf("Fanout landing (outbox->done): samples=%d avg=%v p95=%v p99=%v\n", len(land), avg(land), pct(land, 0.95), pct(land, 0.99))
	fmt.Printf("Sync PushToFeeds: written=%d took=%v err=%v\n", written, syncDur, err)

	if len(fanIDs) > 0 {
		reads := make([]time.Duration, 0, 20)
		var items int
		for i := 0; i < 20; i++ {
			st := time.Now()
			page, err := postSvc.FetchFeedPage(ctx, fanIDs[i%len(fanIDs)], "", PAGE)
			if err != nil {
				panic(err)
			}
			reads = append(reads, time.Since(st))
			items = len(page.Items)
		}
		fmt.Printf("Feed first page (limit=%d): items=%d avg=%v p95=%v\n", PAGE, items, avg(reads), pct(reads, 0.95))
	}
}
