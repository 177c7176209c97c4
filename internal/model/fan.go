package model

import "time"

// Fan 粉丝关系（B 的粉丝是 A），冗余自 Follow，由复制器或对账任务维护
type Fan struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	UserID    string `gorm:"type:varchar(64);index:idx_fan_user;uniqueIndex:ux_fan_pair;not null"`
	FanID     string `gorm:"type:varchar(64);uniqueIndex:ux_fan_pair;not null"`
	CreatedAt time.Time
}

func (Fan) TableName() string { return "fans" }
