package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// UserStats 个人主页计数
type UserStats struct {
	Followers int64 `json:"followers"`
	Following int64 `json:"following"`
	Posts     int64 `json:"posts"`
}

// StatsLoader 缓存未命中时从主存储加载计数
type StatsLoader func(ctx context.Context, userID string) (UserStats, error)

// StatsCache 用户计数的 redis hash 缓存（user:stats:<id>），写操作后失效
type StatsCache struct {
	client *redis.Client
	ttl    time.Duration
	load   StatsLoader

	hits   atomic.Int64
	misses atomic.Int64
}

func NewStatsCache(client *redis.Client, ttl time.Duration, load StatsLoader) *StatsCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &StatsCache{client: client, ttl: ttl, load: load}
}

func statsKey(userID string) string { return fmt.Sprintf("user:stats:%s", userID) }

// Get 读取计数。redis 不可用时回源，不返回缓存错误。
func (s *StatsCache) Get(ctx context.Context, userID string) (UserStats, error) {
	if s.client != nil {
		vals, err := s.client.HGetAll(ctx, statsKey(userID)).Result()
		if err == nil && len(vals) == 3 {
			st, ok := parseStats(vals)
			if ok {
				s.hits.Add(1)
				return st, nil
			}
		}
	}
	s.misses.Add(1)

	st, err := s.load(ctx, userID)
	if err != nil {
		return UserStats{}, err
	}
	if s.client != nil {
		pipe := s.client.Pipeline()
		pipe.HSet(ctx, statsKey(userID),
			"followers", st.Followers,
			"following", st.Following,
			"posts", st.Posts,
		)
		pipe.Expire(ctx, statsKey(userID), s.ttl)
		_, _ = pipe.Exec(ctx)
	}
	return st, nil
}

// Invalidate 删除若干用户的计数缓存
func (s *StatsCache) Invalidate(ctx context.Context, userIDs ...string) error {
	if s.client == nil || len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = statsKey(id)
	}
	return s.client.Del(ctx, keys...).Err()
}

// Counters 命中与未命中次数
func (s *StatsCache) Counters() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

func parseStats(vals map[string]string) (UserStats, bool) {
	var st UserStats
	for field, dst := range map[string]*int64{
		"followers": &st.Followers,
		"following": &st.Following,
		"posts":     &st.Posts,
	} {
		n, err := strconv.ParseInt(vals[field], 10, 64)
		if err != nil {
			return UserStats{}, false
		}
		*dst = n
	}
	return st, true
}
