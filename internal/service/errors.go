package service

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/photo-feed/internal/blob"
	"github.com/d60-Lab/photo-feed/internal/repository"
)

var (
	// ErrNotFound 被引用的用户、帖子、评论或通知不存在
	ErrNotFound             = errors.New("not found")
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)
	ErrPostNotFound         = fmt.Errorf("post %w", ErrNotFound)
	ErrCommentNotFound      = fmt.Errorf("comment %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)

	ErrUnauthorized      = errors.New("no resolvable current user")
	ErrForbidden         = errors.New("operation not permitted for current user")
	ErrFollowSelf        = errors.New("cannot follow self")
	ErrUsernameTaken     = errors.New("username already taken")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrCounterDivergence = errors.New("like counter diverges from like edges")
	ErrRateLimited       = errors.New("rate or quota exceeded")

	// ErrBlobUpload 与 blob 包共用同一个哨兵错误
	ErrBlobUpload = blob.ErrUpload
)

// PartialFanoutError 扇出过程中部分粉丝的 feed 写入失败
type PartialFanoutError struct {
	PostID string
	Failed int
	Total  int
	Err    error
}

func (e *PartialFanoutError) Error() string {
	return fmt.Sprintf("fanout of post %s: %d/%d feed writes failed: %v", e.PostID, e.Failed, e.Total, e.Err)
}

func (e *PartialFanoutError) Unwrap() error { return e.Err }

// notFound 把仓储层的 ErrNotFound 转换为具体的业务错误
func notFound(err, target error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return target
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
