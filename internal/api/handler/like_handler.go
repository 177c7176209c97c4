package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/pkg/response"
)

// Like 点赞
// @Summary 点赞帖子
// @Tags 点赞
// @Produce json
// @Security BearerAuth
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response{data=service.LikeResult}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/like [post]
func (h *Handler) Like(c *gin.Context) {
	res, err := h.likeService.Like(c.Request.Context(), currentUser(c), c.Param("post_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Unlike 取消点赞
// @Summary 取消点赞
// @Tags 点赞
// @Produce json
// @Security BearerAuth
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response{data=service.LikeResult}
// @Router /api/v1/posts/{post_id}/like [delete]
func (h *Handler) Unlike(c *gin.Context) {
	res, err := h.likeService.Unlike(c.Request.Context(), currentUser(c), c.Param("post_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Likers 点赞用户列表
// @Summary 点赞用户列表
// @Tags 点赞
// @Produce json
// @Param post_id path string true "帖子ID"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.User]}
// @Router /api/v1/posts/{post_id}/likers [get]
func (h *Handler) Likers(c *gin.Context) {
	cursor, size := pageParams(c)
	page, err := h.likeService.FetchLikersPage(c.Request.Context(), currentUser(c), c.Param("post_id"), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}
