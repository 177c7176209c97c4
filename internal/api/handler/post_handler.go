package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/internal/service"
	"github.com/d60-Lab/photo-feed/pkg/response"
)

// maxImageBytes 单张图片上限
const maxImageBytes = 10 << 20

// CreatePost 发帖
// @Summary 发布帖子
// @Description 上传图片后写入帖子，并推送到作者与粉丝的 feed；异步模式下粉丝扇出由 outbox worker 完成
// @Tags 帖子
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param images formData file true "图片（可多张，按顺序保存）"
// @Param caption formData string false "配文"
// @Success 201 {object} response.Response{data=model.Post}
// @Failure 400 {object} response.Response
// @Failure 502 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	images, err := readImages(form.File["images"])
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.postService.CreatePost(c.Request.Context(), currentUser(c), service.CreatePostRequest{
		Images:  images,
		Caption: c.PostForm("caption"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, post)
}

func readImages(files []*multipart.FileHeader) ([]service.ImageUpload, error) {
	out := make([]service.ImageUpload, 0, len(files))
	for _, fh := range files {
		img, err := readImage(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func readImage(fh *multipart.FileHeader) (service.ImageUpload, error) {
	if fh.Size > maxImageBytes {
		return service.ImageUpload{}, fmt.Errorf("image %s exceeds %d bytes", fh.Filename, maxImageBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return service.ImageUpload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return service.ImageUpload{}, err
	}
	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
	}
	return service.ImageUpload{Data: data, ContentType: ct}, nil
}

// DeletePost 删除帖子
// @Summary 删除帖子
// @Description 先打墓碑再级联清理 feed、点赞、评论、话题、通知与图片；部分失败可重试
// @Tags 帖子
// @Produce json
// @Security BearerAuth
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 403 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	if err := h.postService.DeletePost(c.Request.Context(), currentUser(c), c.Param("post_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// GetPost 帖子详情
// @Summary 帖子详情
// @Tags 帖子
// @Produce json
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response{data=model.Post}
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.postService.FetchPost(c.Request.Context(), currentUser(c), c.Param("post_id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, post)
}

// Feed 首页 feed
// @Summary 首页 feed
// @Tags 帖子
// @Produce json
// @Security BearerAuth
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.Post]}
// @Router /api/v1/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	cursor, size := pageParams(c)
	page, err := h.postService.FetchFeedPage(c.Request.Context(), currentUser(c), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// UserPosts 个人主页帖子
// @Summary 用户帖子列表
// @Tags 帖子
// @Produce json
// @Param user_id path string true "用户ID"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.Post]}
// @Router /api/v1/users/{user_id}/posts [get]
func (h *Handler) UserPosts(c *gin.Context) {
	cursor, size := pageParams(c)
	page, err := h.postService.FetchUserPostsPage(c.Request.Context(), currentUser(c), c.Param("user_id"), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}

// HashtagPosts 话题帖子
// @Summary 话题帖子列表
// @Tags 帖子
// @Produce json
// @Param tag path string true "话题（不含 #）"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=pagination.Result[model.Post]}
// @Router /api/v1/hashtags/{tag}/posts [get]
func (h *Handler) HashtagPosts(c *gin.Context) {
	cursor, size := pageParams(c)
	page, err := h.postService.FetchHashtagPostsPage(c.Request.Context(), currentUser(c), c.Param("tag"), cursor, size)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, page)
}
