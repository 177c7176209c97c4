package model

import "time"

// Like 点赞边。NotificationID 记录对应的点赞通知，取消点赞时据此撤回。
type Like struct {
	ID             string `gorm:"primaryKey;type:varchar(36)"`
	UserID         string `gorm:"type:varchar(64);uniqueIndex:ux_like_pair;not null"`
	PostID         string `gorm:"type:varchar(36);uniqueIndex:ux_like_pair;index:idx_like_post;not null"`
	NotificationID string `gorm:"type:varchar(36)"`
	CreatedAt      time.Time
}

func (Like) TableName() string { return "likes" }
