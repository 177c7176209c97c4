package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/internal/service"
	"github.com/d60-Lab/photo-feed/pkg/response"
)

type registerRequest struct {
	Username        string `json:"username" binding:"required"`
	FullName        string `json:"full_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Register 注册资料
// @Summary 注册用户资料
// @Description 用户 ID 取自会话令牌，用户名注册后不可修改
// @Tags 用户
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/users [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.Register(c.Request.Context(), service.RegisterRequest{
		ID:              currentUser(c),
		Username:        req.Username,
		FullName:        req.FullName,
		ProfileImageURL: req.ProfileImageURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, u)
}

// GetProfile 个人主页
// @Summary 用户主页
// @Tags 用户
// @Produce json
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=service.Profile}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id} [get]
func (h *Handler) GetProfile(c *gin.Context) {
	p, err := h.userService.GetProfile(c.Request.Context(), currentUser(c), c.Param("user_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, p)
}

// SearchUsers 用户列表；带 username 参数时按用户名精确查找
// @Summary 用户搜索
// @Tags 用户
// @Produce json
// @Param username query string false "用户名（精确匹配）"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.User]}
// @Router /api/v1/users [get]
func (h *Handler) SearchUsers(c *gin.Context) {
	if name := c.Query("username"); name != "" {
		u, err := h.userService.FindByUsername(c.Request.Context(), name)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, u)
		return
	}
	cursor, size := pageParams(c)
	page, err := h.userService.SearchUsersPage(c.Request.Context(), currentUser(c), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// SetProfileImage 更新头像
// @Summary 更新头像
// @Tags 用户
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param image formData file true "头像"
// @Success 200 {object} response.Response{data=model.User}
// @Failure 400 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/users/me/profile-image [put]
func (h *Handler) SetProfileImage(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	img, err := readImage(fh)
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.SetProfileImage(c.Request.Context(), currentUser(c), img)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, u)
}
