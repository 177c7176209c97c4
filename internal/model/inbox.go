package model

import "time"

// Inbox 时间线项（按 user_id 切分），标记 post 应出现在 user 的首页 feed 中
type Inbox struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"type:varchar(64);uniqueIndex:ux_inbox_user_post;not null"`
	PostID string `gorm:"type:varchar(36);index:idx_inbox_post;uniqueIndex:ux_inbox_user_post;not null"`
	// 复合唯一键，避免重复 (user, post)；(user_id, post_id) 同时服务按 post_id 倒序的分页扫描
	CreatedAt time.Time
}

func (Inbox) TableName() string { return "inbox" }
