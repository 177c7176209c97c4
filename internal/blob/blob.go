// Package blob stores post and profile images in an external blob store and
// hands back durable URLs.
package blob

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrUpload 图片上传失败
var ErrUpload = errors.New("blob upload failed")

// Store 图片存储。Delete 对不存在的对象返回 nil。
type Store interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, url string) error
}

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// objectName 生成对象名，保留与内容类型对应的扩展名
func objectName(contentType string) string {
	ext := extensions[strings.ToLower(contentType)]
	return uuid.NewString() + ext
}
