package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/photo-feed/config"
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

// followAll 以 conc 个并发执行 n 次关注，返回每次耗时与总耗时
func followAll(ctx context.Context, svc service.RelationshipService, followers []string, followee string, conc int) ([]time.Duration, time.Duration) {
	recs := make([]time.Duration, 0, len(followers))
	ch := make(chan time.Duration, len(followers))
	jobs := make(chan string, len(followers))
	for _, id := range followers {
		jobs <- id
	}
	close(jobs)

	t0 := time.Now()
	var wg sync.WaitGroup
	for w := 0; w < min(conc, len(followers)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				st := time.Now()
				_, _ = svc.Follow(ctx, id, followee)
				ch <- time.Since(st)
			}
		}()
	}
	wg.Wait()
	total := time.Since(t0)
	close(ch)
	for d := range ch {
		recs = append(recs, d)
	}
	return recs, total
}

func main() {
	cfg := must(config.Load())
	db := must(database.InitDB(cfg))
	ctx := context.Background()

	N := envInt("N", 10000)
	CONC := envInt("CONC", 1)
	PAGE := envInt("PAGE", 50)

	users := repository.NewUserRepository(db)
	follows := repository.NewFollowRepository(db)
	fans := repository.NewFanRepository(db)
	posts := repository.NewPostRepository(db)
	feed := repository.NewFeedRepository(db)

	stats := cache.NewStatsCache(nil, 0, service.StatsLoader(follows, fans, posts))
	engine := service.NewFanoutEngine(fans, feed, posts, 500, 4)
	notify := service.NewNotificationService(repository.NewNotificationRepository(db), users, service.NotifyPolicy{})

	replicator := service.NewFanReplicator(fans, 100000)
	stop := replicator.Start(8)
	asyncSvc := service.NewRelationshipService(follows, fans, users, engine, notify, stats, replicator)
	syncSvc := service.NewRelationshipService(follows, fans, users, engine, notify, stats, nil)

	// 两个名人账号，其余用户分别以异步 / 同步镜像关注二者
	run := uuid.NewString()[:8]
	celebA := &model.User{ID: "celeb-a-" + run, Username: "celeb_a_" + run}
	celebB := &model.User{ID: "celeb-b-" + run, Username: "celeb_b_" + run}
	for _, u := range []*model.User{celebA, celebB} {
		if err := users.Create(ctx, u); err != nil {
			panic(err)
		}
	}
	ids := make([]string, N)
	for i := range ids {
		id := uuid.NewString()
		ids[i] = id
		if err := users.Create(ctx, &model.User{ID: id, Username: "u" + id[:8] + run}); err != nil {
			panic(err)
		}
	}

	repRecs := make([]time.Duration, 0, N)
	doneRep := make(chan struct{})
	repDone := make(chan struct{})
	go func() {
		defer close(repDone)
		for {
			select {
			case d := <-replicator.Metrics():
				repRecs = append(repRecs, d)
			case <-doneRep:
				return
			}
		}
	}()

	maxQ := 0
	quitSample := make(chan struct{})
	sampleDone := make(chan struct{})
	go func() {
		defer close(sampleDone)
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if q := replicator.QueueLen(); q > maxQ {
					maxQ = q
				}
			case <-quitSample:
				return
			}
		}
	}()

	asyncRecs, asyncDur := followAll(ctx, asyncSvc, ids, celebA.ID, CONC)
	close(quitSample)
	<-sampleDone

	drainStart := time.Now()
	_ = stop(ctx)
	drainDur := time.Since(drainStart)
	close(doneRep)
	<-repDone

	syncRecs, syncDur := followAll(ctx, syncSvc, ids, celebB.ID, CONC)

	q0 := time.Now()
	fanPage, _ := asyncSvc.ListFollowersPage(ctx, "", celebA.ID, "", PAGE)
	fansDur := time.Since(q0)
	q1 := time.Now()
	follPage, _ := asyncSvc.ListFollowingPage(ctx, "", ids[0], "", PAGE)
	follDur := time.Since(q1)

	fmt.Printf("N=%d, CONC=%d, PAGE=%d\n", N, CONC, PAGE)
	fmt.Printf("Async mirror follow: total=%v per op=%v p50=%v p95=%v p99=%v\n",
		asyncDur, asyncDur/time.Duration(N), pct(asyncRecs, 0.50), pct(asyncRecs, 0.95), pct(asyncRecs, 0.99))
	fmt.Printf("Sync mirror follow: total=%v per op=%v p50=%v p95=%v p99=%v\n",
		syncDur, syncDur/time.Duration(N), pct(syncRecs, 0.50), pct(syncRecs, 0.95), pct(syncRecs, 0.99))
	fmt.Printf("Followers page(%d): items=%d latency=%v\n", PAGE, len(fanPage.Items), fansDur)
	fmt.Printf("Following page(%d): items=%d latency=%v\n", PAGE, len(follPage.Items), follDur)
	if len(repRecs) > 0 {
		fmt.Printf("Replication landing: samples=%d p50=%v p95=%v p99=%v maxQueue=%d drain=%v\n",
			len(repRecs), pct(repRecs, 0.50), pct(repRecs, 0.95), pct(repRecs, 0.99), maxQ, drainDur)
	}
}
