package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/photo-feed/internal/auth"
	"github.com/d60-Lab/photo-feed/internal/service"
	"github.com/d60-Lab/photo-feed/pkg/response"
)

// RateLimiter 按用户（未登录时按 IP）的令牌桶限流
type RateLimiter struct {
	rps   rate.Limit
	burst int
	idle  time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
	lastGC  time.Time
}

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:     rate.Limit(rps),
		burst:   burst,
		idle:    10 * time.Minute,
		buckets: make(map[string]*bucket),
		lastGC:  time.Now(),
	}
}

// Allow 判断 key 当前是否还有令牌
func (l *RateLimiter) Allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	if now.Sub(l.lastGC) > l.idle {
		for k, v := range l.buckets {
			if now.Sub(v.seen) > l.idle {
				delete(l.buckets, k)
			}
		}
		l.lastGC = now
	}
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Handler 须放在身份中间件之后，才能按用户限流
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rps <= 0 {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if uid := c.GetString(auth.ContextKey); uid != "" {
			key = "user:" + uid
		}
		if !l.Allow(key) {
			response.Error(c, service.ErrRateLimited)
			return
		}
		c.Next()
	}
}
