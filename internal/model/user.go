package model

import "time"

// User 用户资料。ID 由外部身份提供方签发，Username 注册后不可修改。
type User struct {
	ID              string    `json:"id" gorm:"primaryKey;type:varchar(64)"`
	Username        string    `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	FullName        string    `json:"full_name" gorm:"type:varchar(128)"`
	ProfileImageURL string    `json:"profile_image_url" gorm:"type:text"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// IsFollowed 针对当前查看者计算，不落库
	IsFollowed bool `json:"is_followed" gorm:"-"`
}

func (User) TableName() string { return "users" }
