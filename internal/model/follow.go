package model

import "time"

// Follow 关注关系（A 关注 B），following 集合，isFollowing 以此为准
type Follow struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	FollowerID string `gorm:"type:varchar(64);index:idx_follow_follower;uniqueIndex:ux_follow_pair;not null"`
	FolloweeID string `gorm:"type:varchar(64);index:idx_follow_followee;uniqueIndex:ux_follow_pair;not null"`
	// ux_follow_pair = (follower_id, followee_id)，重复关注不产生新行
	CreatedAt time.Time
}

func (Follow) TableName() string { return "follows" }
