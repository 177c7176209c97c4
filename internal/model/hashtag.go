package model

// HashtagPost 话题索引：tag -> post
type HashtagPost struct {
	Tag    string `gorm:"primaryKey;type:varchar(128)"`
	PostID string `gorm:"primaryKey;type:varchar(36);index:idx_hashtag_post"`
}

func (HashtagPost) TableName() string { return "hashtag_posts" }
