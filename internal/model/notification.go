package model

import "time"

// NotificationType 通知类型，取值与客户端约定一致
type NotificationType int

const (
	NotifyLike NotificationType = iota
	NotifyComment
	NotifyFollow
	NotifyCommentMention
	NotifyPostMention
)

var notificationNames = [...]string{"like", "comment", "follow", "comment_mention", "post_mention"}

var notificationDescriptions = [...]string{
	" liked your post",
	" commented on your post",
	" started following you",
	" mentioned you in a comment",
	" mentioned you in a post",
}

func (t NotificationType) Valid() bool { return t >= NotifyLike && t <= NotifyPostMention }

func (t NotificationType) String() string {
	if !t.Valid() {
		return "unknown"
	}
	return notificationNames[t]
}

// Description 展示用文案（拼接在触发者用户名之后）
func (t NotificationType) Description() string {
	if !t.Valid() {
		return ""
	}
	return notificationDescriptions[t]
}

type Notification struct {
	ID          string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	RecipientID string           `json:"recipient_id" gorm:"type:varchar(64);index:idx_notification_recipient;not null"`
	TriggerID   string           `json:"trigger_id" gorm:"type:varchar(64);not null"`
	Type        NotificationType `json:"type" gorm:"not null"`
	PostID      string           `json:"post_id,omitempty" gorm:"type:varchar(36);index:idx_notification_post"`
	CommentID   string           `json:"comment_id,omitempty" gorm:"type:varchar(36)"`
	Checked     bool             `json:"checked" gorm:"not null;default:false"`
	CreatedAt   time.Time        `json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
