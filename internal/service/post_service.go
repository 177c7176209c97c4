package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/d60-Lab/photo-feed/internal/blob"
	"github.com/d60-Lab/photo-feed/internal/cache"
	"github.com/d60-Lab/photo-feed/internal/metrics"
	"github.com/d60-Lab/photo-feed/internal/model"
	"github.com/d60-Lab/photo-feed/internal/pagination"
	"github.com/d60-Lab/photo-feed/internal/repository"
	"github.com/d60-Lab/photo-feed/internal/textscan"
	"github.com/d60-Lab/photo-feed/pkg/logger"
)

// ImageUpload 一张待上传的图片
type ImageUpload struct {
	Data        []byte `validate:"required,min=1"`
	ContentType string `validate:"required,startswith=image/"`
}

// CreatePostRequest 发帖请求，图片按顺序保存
type CreatePostRequest struct {
	Images  []ImageUpload `validate:"min=1,max=10,dive"`
	Caption string        `validate:"max=500"`
}

// PostService 帖子读写
type PostService interface {
	CreatePost(ctx context.Context, ownerID string, req CreatePostRequest) (*model.Post, error)
	// DeletePost 级联删除，可重复执行以完成上次未完成的步骤
	DeletePost(ctx context.Context, actorID, postID string) error
	FetchPost(ctx context.Context, viewerID, postID string) (*model.Post, error)
	FetchFeedPage(ctx context.Context, viewerID, cursor string, pageSize int) (pagination.Result[*model.Post], error)
	FetchUserPostsPage(ctx context.Context, viewerID, userID, cursor string, pageSize int) (pagination.Result[*model.Post], error)
	FetchHashtagPostsPage(ctx context.Context, viewerID, tag, cursor string, pageSize int) (pagination.Result[*model.Post], error)
}

// PostStores 帖子服务依赖的仓储
type PostStores struct {
	Posts    repository.PostRepository
	Users    repository.UserRepository
	Feed     repository.FeedRepository
	Outbox   repository.OutboxRepository
	Likes    repository.LikeRepository
	Comments repository.CommentRepository
	Hashtags repository.HashtagRepository
}

type postService struct {
	PostStores
	blobs      blob.Store
	fanout     *FanoutEngine
	notifier   NotificationService
	stats      *cache.StatsCache
	validate   *validator.Validate
	syncFanout bool
}

// NewPostService syncFanout 为 true 时在发帖请求内完成扇出，否则交给 FanoutWorker
func NewPostService(stores PostStores, blobs blob.Store, fanout *FanoutEngine, notifier NotificationService, stats *cache.StatsCache, syncFanout bool) PostService {
	return &postService{
		PostStores: stores,
		blobs:      blobs,
		fanout:     fanout,
		notifier:   notifier,
		stats:      stats,
		validate:   validator.New(),
		syncFanout: syncFanout,
	}
}

func (s *postService) CreatePost(ctx context.Context, ownerID string, req CreatePostRequest) (*model.Post, error) {
	if ownerID == "" {
		return nil, ErrUnauthorized
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if ok, err := s.Users.Exists(ctx, ownerID); err != nil {
		return nil, err
	} else if !ok {
		return nil, ErrUserNotFound
	}

	urls := make([]string, 0, len(req.Images))
	for _, img := range req.Images {
		url, err := s.blobs.Upload(ctx, img.Data, img.ContentType)
		if err != nil {
			s.discardBlobs(urls)
			if errors.Is(err, blob.ErrUpload) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrBlobUpload, err)
		}
		urls = append(urls, url)
	}

	tokens := textscan.Scan(req.Caption)
	post := &model.Post{AuthorID: ownerID, ImageURLs: urls, Caption: req.Caption}
	ob, err := s.Posts.Publish(ctx, post, tokens.Hashtags)
	if err != nil {
		s.discardBlobs(urls)
		return nil, err
	}
	s.invalidate(ctx, ownerID)

	if s.syncFanout {
		s.fanoutNow(ctx, ob)
	}
	s.notifyMentions(ctx, tokens.Mentions, ownerID, model.NotifyPostMention, post.ID, "")
	return post, nil
}

// fanoutNow 同步扇出；失败的事件保持 pending，由 FanoutWorker 重试
func (s *postService) fanoutNow(ctx context.Context, ob *model.Outbox) {
	n, err := s.fanout.PushToFeeds(ctx, ob.PostID, ob.AuthorID)
	if err != nil {
		logger.Warn("sync fanout incomplete", zap.String("post", ob.PostID), zap.Error(err))
		return
	}
	if err := s.Outbox.MarkDone(ctx, ob.ID, n); err != nil {
		logger.Warn("mark outbox done", zap.String("outbox", ob.ID), zap.Error(err))
	}
}

func (s *postService) notifyMentions(ctx context.Context, usernames []string, triggerID string, typ model.NotificationType, postID, commentID string) {
	for _, name := range usernames {
		u, err := s.Users.GetByUsername(ctx, name)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				logger.Warn("resolve mention", zap.String("username", name), zap.Error(err))
			}
			continue
		}
		if _, err := s.notifier.Notify(ctx, u.ID, triggerID, typ, postID, commentID); err != nil {
			logger.Warn("mention notification failed", zap.String("recipient", u.ID), zap.Error(err))
		}
	}
}

func (s *postService) discardBlobs(urls []string) {
	for _, u := range urls {
		if err := s.blobs.Delete(context.Background(), u); err != nil {
			logger.Warn("discard uploaded image", zap.String("url", u), zap.Error(err))
		}
	}
}

func (s *postService) invalidate(ctx context.Context, userIDs ...string) {
	if err := s.stats.Invalidate(ctx, userIDs...); err != nil {
		logger.Warn("invalidate user stats", zap.Strings("users", userIDs), zap.Error(err))
	}
}

type cascadeStep struct {
	name string
	run  func(ctx context.Context, p *model.Post) error
}

func (s *postService) DeletePost(ctx context.Context, actorID, postID string) error {
	if actorID == "" {
		return ErrUnauthorized
	}
	post, err := s.Posts.GetWithDeleted(ctx, postID)
	if err != nil {
		return notFound(err, ErrPostNotFound)
	}
	if post.AuthorID != actorID {
		return ErrForbidden
	}
	// 先立墓碑，级联期间帖子对新读者不可见
	if !post.DeletedAt.Valid {
		if err := s.Posts.Tombstone(ctx, postID); err != nil {
			return err
		}
	}

	var errs error
	for _, step := range s.cascade() {
		if err := step.run(ctx, post); err != nil {
			metrics.CascadeFailures.WithLabelValues(step.name).Inc()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}
	if errs != nil {
		logger.Warn("post delete cascade incomplete", zap.String("post", postID), zap.Error(errs))
		return errs
	}
	if err := s.Posts.Purge(ctx, postID); err != nil {
		return err
	}
	s.invalidate(ctx, post.AuthorID)
	return nil
}

func (s *postService) cascade() []cascadeStep {
	return []cascadeStep{
		{"outbox", func(ctx context.Context, p *model.Post) error {
			return s.Outbox.DeleteByPost(ctx, p.ID)
		}},
		{"feeds", func(ctx context.Context, p *model.Post) error {
			return s.fanout.RetractPost(ctx, p.ID, p.AuthorID)
		}},
		{"owner_posts", func(ctx context.Context, p *model.Post) error {
			return s.Posts.RemoveUserPost(ctx, p.AuthorID, p.ID)
		}},
		{"likes", s.deleteLikes},
		{"hashtags", func(ctx context.Context, p *model.Post) error {
			return s.Hashtags.DeleteByPost(ctx, p.ID)
		}},
		{"comments", s.deleteComments},
		{"notifications", func(ctx context.Context, p *model.Post) error {
			_, err := s.notifier.RetractForPost(ctx, p.ID)
			return err
		}},
		{"images", func(ctx context.Context, p *model.Post) error {
			var errs error
			for _, u := range p.ImageURLs {
				errs = multierr.Append(errs, s.blobs.Delete(ctx, u))
			}
			return errs
		}},
	}
}

const cascadeBatch = 500

func (s *postService) deleteLikes(ctx context.Context, p *model.Post) error {
	for {
		likes, err := s.Likes.ListByPost(ctx, p.ID, cascadeBatch)
		if err != nil {
			return err
		}
		for _, l := range likes {
			if err := s.notifier.Retract(ctx, p.AuthorID, l.NotificationID); err != nil {
				return err
			}
			if err := s.Likes.Delete(ctx, l.ID); err != nil {
				return err
			}
		}
		if len(likes) < cascadeBatch {
			return nil
		}
	}
}

func (s *postService) deleteComments(ctx context.Context, p *model.Post) error {
	comments, err := s.Comments.ListByPost(ctx, p.ID)
	if err != nil {
		return err
	}
	for _, c := range comments {
		if err := s.notifier.Retract(ctx, p.AuthorID, c.NotificationID); err != nil {
			return err
		}
	}
	return s.Comments.DeleteByPost(ctx, p.ID)
}

func (s *postService) FetchPost(ctx context.Context, viewerID, postID string) (*model.Post, error) {
	p, err := s.Posts.Get(ctx, postID)
	if err != nil {
		return nil, notFound(err, ErrPostNotFound)
	}
	author, err := s.Users.Get(ctx, p.AuthorID)
	if err != nil {
		return nil, notFound(err, ErrPostNotFound)
	}
	p.Author = author
	if viewerID != "" {
		if p.DidLike, err = s.Likes.Exists(ctx, viewerID, postID); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (s *postService) FetchFeedPage(ctx context.Context, viewerID, cursor string, pageSize int) (pagination.Result[*model.Post], error) {
	if viewerID == "" {
		return pagination.Result[*model.Post]{}, ErrUnauthorized
	}
	w := func(ctx context.Context, endAt string, limit int) ([]string, error) {
		return s.Feed.Window(ctx, viewerID, endAt, limit)
	}
	return s.postPage(ctx, viewerID, w, cursor, pageSize, func(postIDs []string) {
		// 指向已删除帖子的 feed 项顺手清掉
		for _, id := range postIDs {
			if err := s.fanout.RetractFromFeed(ctx, id, viewerID); err != nil {
				logger.Warn("prune dangling feed entry", zap.String("viewer", viewerID), zap.String("post", id), zap.Error(err))
			}
		}
	})
}

func (s *postService) FetchUserPostsPage(ctx context.Context, viewerID, userID, cursor string, pageSize int) (pagination.Result[*model.Post], error) {
	w := func(ctx context.Context, endAt string, limit int) ([]string, error) {
		return s.Posts.UserPostWindow(ctx, userID, endAt, limit)
	}
	return s.postPage(ctx, viewerID, w, cursor, pageSize, nil)
}

func (s *postService) FetchHashtagPostsPage(ctx context.Context, viewerID, tag, cursor string, pageSize int) (pagination.Result[*model.Post], error) {
	tag = strings.ToLower(strings.TrimPrefix(tag, string(textscan.HashtagMarker)))
	if tag == "" {
		return pagination.Result[*model.Post]{}, invalid("empty hashtag")
	}
	w := func(ctx context.Context, endAt string, limit int) ([]string, error) {
		return s.Hashtags.Window(ctx, tag, endAt, limit)
	}
	return s.postPage(ctx, viewerID, w, cursor, pageSize, nil)
}

// postPage 取一页帖子 ID 并补全；已删除或缺少作者的帖子被跳过。
// missing 非空时收到本页中已删除（或打了墓碑）的帖子 ID。
func (s *postService) postPage(ctx context.Context, viewerID string, w pagination.Window, cursor string, pageSize int, missing func(postIDs []string)) (pagination.Result[*model.Post], error) {
	page, err := pagination.Fetch(ctx, w, cursor, pageSize)
	if err != nil {
		return pagination.Result[*model.Post]{}, err
	}
	posts, err := s.Posts.GetMany(ctx, page.Keys)
	if err != nil {
		return pagination.Result[*model.Post]{}, err
	}
	if missing != nil && len(posts) < len(page.Keys) {
		var gone []string
		for _, k := range page.Keys {
			if _, ok := posts[k]; !ok {
				gone = append(gone, k)
			}
		}
		missing(gone)
	}
	authorIDs := make([]string, 0, len(posts))
	for _, p := range posts {
		authorIDs = append(authorIDs, p.AuthorID)
	}
	authors, err := s.Users.GetMany(ctx, authorIDs)
	if err != nil {
		return pagination.Result[*model.Post]{}, err
	}
	liked := map[string]bool{}
	if viewerID != "" {
		if liked, err = s.Likes.LikedAmong(ctx, viewerID, page.Keys); err != nil {
			return pagination.Result[*model.Post]{}, err
		}
	}
	for id, p := range posts {
		a, ok := authors[p.AuthorID]
		if !ok {
			delete(posts, id)
			continue
		}
		p.Author = a
		p.DidLike = liked[id]
	}
	return pagination.Hydrate(page, posts), nil
}
