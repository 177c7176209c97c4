package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/pkg/response"
)

// Follow 关注用户
// @Summary 关注用户
// @Description 写入关注关系与粉丝镜像，并把被关注者已有帖子回填到当前用户的 feed
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "被关注用户ID"
// @Success 200 {object} response.Response{data=service.FollowResult}
// @Failure 400 {object} response.Response
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id}/follow [post]
func (h *Handler) Follow(c *gin.Context) {
	res, err := h.relService.Follow(c.Request.Context(), currentUser(c), c.Param("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, res)
}

// Unfollow 取消关注
// @Summary 取消关注
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "被关注用户ID"
// @Success 200 {object} response.Response{data=map[string]bool}
// @Failure 401 {object} response.Response
// @Router /api/v1/users/{user_id}/follow [delete]
func (h *Handler) Unfollow(c *gin.Context) {
	removed, err := h.relService.Unfollow(c.Request.Context(), currentUser(c), c.Param("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"removed": removed})
}

// IsFollowing 当前用户是否关注了某用户
// @Summary 查询关注状态
// @Tags 关系链
// @Produce json
// @Security BearerAuth
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=map[string]bool}
// @Router /api/v1/users/{user_id}/follow [get]
func (h *Handler) IsFollowing(c *gin.Context) {
	ok, err := h.relService.IsFollowing(c.Request.Context(), currentUser(c), c.Param("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"following": ok})
}

// ListFollowing 查询某用户关注的人
// @Summary 查询关注列表
// @Tags 关系链
// @Produce json
// @Param user_id path string true "用户ID"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.User]}
// @Router /api/v1/users/{user_id}/following [get]
func (h *Handler) ListFollowing(c *gin.Context) {
	cursor, size := pageParams(c)
	page, err := h.relService.ListFollowingPage(c.Request.Context(), currentUser(c), c.Param("user_id"), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// ListFollowers 查询某用户的粉丝
// @Summary 查询粉丝列表（来自冗余表）
// @Tags 关系链
// @Produce json
// @Param user_id path string true "用户ID"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.User]}
// @Router /api/v1/users/{user_id}/followers [get]
func (h *Handler) ListFollowers(c *gin.Context) {
	cursor, size := pageParams(c)
	page, err := h.relService.ListFollowersPage(c.Request.Context(), currentUser(c), c.Param("user_id"), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}
