package model

import (
	"time"

	"gorm.io/gorm"
)

// Post 帖子。ID 为 UUIDv7，字典序即创建顺序，分页游标直接使用 ID。
// DeletedAt 用作删除墓碑：级联清理期间帖子对所有读者不可见。
type Post struct {
	ID        string         `json:"id" gorm:"primaryKey;type:varchar(36)"`
	AuthorID  string         `json:"author_id" gorm:"type:varchar(64);index:idx_post_author;not null"`
	ImageURLs []string       `json:"image_urls" gorm:"serializer:json;type:text"`
	Caption   string         `json:"caption" gorm:"type:text"`
	LikeCount int64          `json:"like_count" gorm:"not null;default:0"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"-"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// 以下字段按查看者补全，不落库
	Author  *User `json:"author,omitempty" gorm:"-"`
	DidLike bool  `json:"did_like" gorm:"-"`
}

func (Post) TableName() string { return "posts" }

// UserPost 作者自己的帖子集合（个人主页、关注回填的数据源）
type UserPost struct {
	UserID    string `gorm:"primaryKey;type:varchar(64)"`
	PostID    string `gorm:"primaryKey;type:varchar(36)"`
	CreatedAt time.Time
}

func (UserPost) TableName() string { return "user_posts" }
