package handler

import (
	"io"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/pkg/response"
)

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

// SubmitComment 发表评论
// @Summary 发表评论
// @Tags 评论
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param post_id path string true "帖子ID"
// @Param request body commentRequest true "评论内容"
// @Success 201 {object} response.Response{data=model.Comment}
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/comments [post]
func (h *Handler) SubmitComment(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.commentService.SubmitComment(c.Request.Context(), currentUser(c), c.Param("post_id"), req.Text)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, comment)
}

// DeleteComment 删除评论
// @Summary 删除评论
// @Description 评论作者或帖子作者可删除，同时撤回对应的评论通知
// @Tags 评论
// @Produce json
// @Security BearerAuth
// @Param post_id path string true "帖子ID"
// @Param comment_id path string true "评论ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/comments/{comment_id} [delete]
func (h *Handler) DeleteComment(c *gin.Context) {
	if err := h.commentService.DeleteComment(c.Request.Context(), currentUser(c), c.Param("post_id"), c.Param("comment_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// ListComments 评论列表
// @Summary 评论列表（新到旧）
// @Tags 评论
// @Produce json
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response{data=[]model.Comment}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	list, err := h.commentService.ListComments(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// StreamComments 评论事件流
// @Summary 评论事件流（SSE）
// @Description 先推送已有评论（added），随后实时推送 added / removed 事件
// @Tags 评论
// @Produce text/event-stream
// @Param post_id path string true "帖子ID"
// @Success 200 {object} cache.CommentEvent
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/comments/stream [get]
func (h *Handler) StreamComments(c *gin.Context) {
	events, err := h.commentService.StreamComments(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Stream(func(io.Writer) bool {
		ev, ok := <-events
		if !ok {
			return false
		}
		c.SSEvent(string(ev.Type), ev.Comment)
		return true
	})
}
