// Package api wires the gin engine: global middleware, identity resolution,
// rate limiting and the /api/v1 routes.
package api

import (
	"net/http"

	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/photo-feed/internal/api/handler"
	"github.com/d60-Lab/photo-feed/internal/api/middleware"
	"github.com/d60-Lab/photo-feed/internal/auth"
	"github.com/d60-Lab/photo-feed/pkg/response"
)

// Options 路由构造参数
type Options struct {
	Mode        string
	ServiceName string
	// BlobDir 非空时以 /blobs 提供本地图片
	BlobDir string
	// RateLimit 每用户每秒请求数，<=0 关闭限流
	RateLimit float64
	Burst     int
	Tracing   bool
}

// NewRouter 构建 gin 引擎
func NewRouter(h *handler.Handler, resolver auth.Resolver, opts Options) *gin.Engine {
	if opts.Mode != "" {
		gin.SetMode(opts.Mode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	if opts.Tracing {
		r.Use(otelgin.Middleware(opts.ServiceName))
	}
	r.Use(middleware.RequestLogger(), middleware.Metrics())
	// SSE 需要逐条 flush，不压缩
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{`/comments/stream(\?.*)?$`})))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if opts.BlobDir != "" {
		r.Static("/blobs", opts.BlobDir)
	}

	limiter := middleware.NewRateLimiter(opts.RateLimit, opts.Burst)
	unauthorized := func(c *gin.Context) { response.Unauthorized(c, "invalid or missing session") }

	v1 := r.Group("/api/v1")
	// 匿名可访问，登录时补全 is_followed / did_like
	pub := v1.Group("", auth.Middleware(resolver, false, unauthorized), limiter.Handler())
	{
		pub.GET("/users", h.SearchUsers)
		pub.GET("/users/:user_id", h.GetProfile)
		pub.GET("/users/:user_id/posts", h.UserPosts)
		pub.GET("/users/:user_id/followers", h.ListFollowers)
		pub.GET("/users/:user_id/following", h.ListFollowing)
		pub.GET("/posts/:post_id", h.GetPost)
		pub.GET("/posts/:post_id/likers", h.Likers)
		pub.GET("/posts/:post_id/comments", h.ListComments)
		pub.GET("/posts/:post_id/comments/stream", h.StreamComments)
		pub.GET("/hashtags/:tag/posts", h.HashtagPosts)
	}

	priv := v1.Group("", auth.Middleware(resolver, true, unauthorized), limiter.Handler())
	{
		priv.POST("/users", h.Register)
		priv.PUT("/users/me/profile-image", h.SetProfileImage)

		priv.GET("/users/:user_id/follow", h.IsFollowing)
		priv.POST("/users/:user_id/follow", h.Follow)
		priv.DELETE("/users/:user_id/follow", h.Unfollow)

		priv.GET("/feed", h.Feed)
		priv.POST("/posts", h.CreatePost)
		priv.DELETE("/posts/:post_id", h.DeletePost)
		priv.POST("/posts/:post_id/like", h.Like)
		priv.DELETE("/posts/:post_id/like", h.Unlike)
		priv.POST("/posts/:post_id/comments", h.SubmitComment)
		priv.DELETE("/posts/:post_id/comments/:comment_id", h.DeleteComment)

		priv.GET("/notifications", h.ListNotifications)
		priv.GET("/notifications/unread", h.UnreadNotifications)
		priv.POST("/notifications/:notification_id/check", h.CheckNotification)
		priv.DELETE("/notifications/:notification_id", h.DeleteNotification)
	}
	return r
}
