package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/photo-feed/pkg/response"
)

// ListNotifications 通知列表
// @Summary 通知列表（新到旧）
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=[]service.NotificationView}
// @Router /api/v1/notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	list, err := h.notificationService.ListForUser(c.Request.Context(), currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, list)
}

// UnreadNotifications 未读通知数
// @Summary 未读通知数
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]int64}
// @Router /api/v1/notifications/unread [get]
func (h *Handler) UnreadNotifications(c *gin.Context) {
	n, err := h.notificationService.UnreadCount(c.Request.Context(), currentUser(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"unread": n})
}

// CheckNotification 标记已读
// @Summary 标记通知已读
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param notification_id path string true "通知ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/notifications/{notification_id}/check [post]
func (h *Handler) CheckNotification(c *gin.Context) {
	if err := h.notificationService.MarkChecked(c.Request.Context(), currentUser(c), c.Param("notification_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// DeleteNotification 删除通知
// @Summary 删除通知
// @Tags 通知
// @Produce json
// @Security BearerAuth
// @Param notification_id path string true "通知ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/notifications/{notification_id} [delete]
func (h *Handler) DeleteNotification(c *gin.Context) {
	if err := h.notificationService.Delete(c.Request.Context(), currentUser(c), c.Param("notification_id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}
