package repository

import (
	"errors"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// NewKey 生成按时间递增的 UUIDv7，字典序即插入顺序
func NewKey() string {
	return uuid.Must(uuid.NewV7()).String()
}

// keyWindow 取 column <= endAt 的最后 limit 个 key，按升序返回。
// 比较与排序都按字节序，和 pagination.Fetch 对游标的判断一致。
func keyWindow(q *gorm.DB, column, endAt string, limit int) ([]string, error) {
	ordered := byteOrder(q.Dialector.Name(), column)
	if endAt != "" {
		q = q.Where(ordered+" <= ?", endAt)
	}
	var keys []string
	if err := q.Order(ordered + " DESC").Limit(limit).Pluck(column, &keys).Error; err != nil {
		return nil, err
	}
	slices.Reverse(keys)
	return keys, nil
}

// byteOrder postgres 的默认排序规则随 locale 变化，显式使用 "C"；sqlite 默认即为 BINARY
func byteOrder(dialect, column string) string {
	if dialect == "postgres" {
		return column + ` COLLATE "C"`
	}
	return column
}
