package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/internal/auth"
	"github.com/d60-Lab/photo-feed/internal/service"
)

// Handler 聚合各业务服务的 HTTP 入口
type Handler struct {
	userService         service.UserService
	relService          service.RelationshipService
	postService         service.PostService
	likeService         service.LikeService
	commentService      service.CommentService
	notificationService service.NotificationService
}

// Services 构造 Handler 所需的服务集合
type Services struct {
	Users         service.UserService
	Relations     service.RelationshipService
	Posts         service.PostService
	Likes         service.LikeService
	Comments      service.CommentService
	Notifications service.NotificationService
}

func New(s Services) *Handler {
	return &Handler{
		userService:         s.Users,
		relService:          s.Relations,
		postService:         s.Posts,
		likeService:         s.Likes,
		commentService:      s.Comments,
		notificationService: s.Notifications,
	}
}

// currentUser 当前登录用户，匿名时为空串
func currentUser(c *gin.Context) string {
	return c.GetString(auth.ContextKey)
}

// pageParams 读取 cursor 与 page_size 查询参数
func pageParams(c *gin.Context) (string, int) {
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	return c.Query("cursor"), size
}
