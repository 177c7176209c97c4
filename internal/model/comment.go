package model

import "time"

type Comment struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	PostID         string    `json:"post_id" gorm:"type:varchar(36);index:idx_comment_post;not null"`
	UserID         string    `json:"user_id" gorm:"type:varchar(64);not null"`
	Text           string    `json:"text" gorm:"type:text"`
	NotificationID string    `json:"-" gorm:"type:varchar(36)"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`

	User *User `json:"user,omitempty" gorm:"-"`
}

func (Comment) TableName() string { return "comments" }
