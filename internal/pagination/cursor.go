// Package pagination implements the "last N ending at cursor" listing
// convention shared by every paginated read (feed, profile posts, followers,
// following, likers, user search, hashtags).
//
// Keys are immutable insertion keys ordered ascending. The first page is the
// newest pageSize keys; the returned cursor is the oldest key of that page.
// Each later page asks for pageSize+1 keys ending at (and including) the
// cursor and drops the cursor itself. A page with no net-new keys ends the
// listing.
package pagination

import (
	"context"
	"slices"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// Window 返回按 key 升序排列、以 endAt（含）结尾的最后 limit 个 key。
// endAt 为空表示从最新的 key 开始。
type Window func(ctx context.Context, endAt string, limit int) ([]string, error)

// Page 一页结果，Keys 由新到旧
type Page struct {
	Keys       []string
	NextCursor string
	Done       bool
}

// Result 补全后的分页结果
type Result[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
	Done       bool   `json:"done"`
}

// NormalizeSize 把页大小限制在 [1, MaxPageSize]，非正值取默认值
func NormalizeSize(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}

// Fetch 按游标协议取一页
func Fetch(ctx context.Context, w Window, cursor string, pageSize int) (Page, error) {
	pageSize = NormalizeSize(pageSize)

	limit := pageSize
	if cursor != "" {
		limit = pageSize + 1
	}
	keys, err := w(ctx, cursor, limit)
	if err != nil {
		return Page{}, err
	}

	fresh := make([]string, 0, len(keys))
	for _, k := range keys {
		if cursor != "" && k >= cursor {
			continue
		}
		fresh = append(fresh, k)
	}
	// 游标项已被并发删除时窗口内会多出一条，保留最新的 pageSize 条
	if len(fresh) > pageSize {
		fresh = fresh[len(fresh)-pageSize:]
	}

	if len(fresh) == 0 {
		return Page{NextCursor: cursor, Done: true}, nil
	}

	next := fresh[0]
	slices.Reverse(fresh)
	return Page{Keys: fresh, NextCursor: next}, nil
}

// Hydrate 按 Keys 顺序组装条目，缺失的 key 被静默跳过
func Hydrate[T any](p Page, byKey map[string]T) Result[T] {
	items := make([]T, 0, len(p.Keys))
	for _, k := range p.Keys {
		if it, ok := byKey[k]; ok {
			items = append(items, it)
		}
	}
	return Result[T]{Items: items, NextCursor: p.NextCursor, Done: p.Done}
}

// SliceWindow 基于已排序切片的 Window，供内存数据与测试使用
func SliceWindow(sorted []string) Window {
	return func(_ context.Context, endAt string, limit int) ([]string, error) {
		end := len(sorted)
		if endAt != "" {
			end, _ = slices.BinarySearch(sorted, endAt)
			if end < len(sorted) && sorted[end] == endAt {
				end++
			}
		}
		start := end - limit
		if start < 0 {
			start = 0
		}
		return slices.Clone(sorted[start:end]), nil
	}
}
