package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/photo-feed/internal/model"
)

func TestLikeThenUnlikeRestoresState(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	p := e.post(t, b.ID, "")
	before := e.likeCount(t, p.ID)

	_, err := e.likes.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	_, err = e.likes.Unlike(e.ctx, a.ID, p.ID)
	require.NoError(t, err)

	liked, err := e.likes.HasLiked(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Equal(t, before, e.likeCount(t, p.ID))
}

func TestLikeTwiceIncrementsOnce(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	p := e.post(t, b.ID, "")

	r1, err := e.likes.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, r1.Changed)
	r2, err := e.likes.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, r2.Changed)

	assert.EqualValues(t, 1, r2.Likes)
	assert.EqualValues(t, 1, e.likeCount(t, p.ID))
	assert.Len(t, e.notificationsOf(t, b.ID), 1, "no duplicate notification")
}

func TestLikeNotificationLifecycle(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	p := e.post(t, b.ID, "")

	_, err := e.likes.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)

	list := e.notificationsOf(t, b.ID)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotifyLike, list[0].Type)
	assert.Equal(t, a.ID, list[0].TriggerID)
	assert.Equal(t, p.ID, list[0].PostID)
	assert.Equal(t, "alice liked your post", list[0].Message)

	edge, err := e.likeRepo.Get(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, list[0].ID, edge.NotificationID)

	_, err = e.likes.Unlike(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.Empty(t, e.notificationsOf(t, b.ID))
}

func TestSelfLikeDoesNotNotify(t *testing.T) {
	e := newTestEnv(t)
	b := e.user(t, "bob")
	p := e.post(t, b.ID, "")

	res, err := e.likes.Like(e.ctx, b.ID, p.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Empty(t, e.notificationsOf(t, b.ID))
}

func TestUnlikeWithoutLikeIsNoop(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	p := e.post(t, b.ID, "")

	res, err := e.likes.Unlike(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.EqualValues(t, 0, e.likeCount(t, p.ID))
}

func TestLikeErrors(t *testing.T) {
	e := newTestEnv(t)
	b := e.user(t, "bob")
	p := e.post(t, b.ID, "")

	_, err := e.likes.Like(e.ctx, "", p.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.likes.Like(e.ctx, b.ID, "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLikeCounterNeverDivergesUnderRandomSequences(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner")
	p := e.post(t, owner.ID, "")
	var likers []string
	for i := 0; i < 5; i++ {
		likers = append(likers, e.user(t, fmt.Sprintf("u%d", i)).ID)
	}

	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		u := likers[rnd.Intn(len(likers))]
		var err error
		if rnd.Intn(2) == 0 {
			_, err = e.likes.Like(e.ctx, u, p.ID)
		} else {
			_, err = e.likes.Unlike(e.ctx, u, p.ID)
		}
		require.NoError(t, err)
		require.NoError(t, e.likes.VerifyLikeCounter(e.ctx, p.ID))
	}
}

func TestConcurrentLikesFromDifferentUsers(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner")
	p := e.post(t, owner.ID, "")
	const n = 10
	ids := make([]string, n)
	for i := range ids {
		ids[i] = e.user(t, fmt.Sprintf("fan%d", i)).ID
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.likes.Like(e.ctx, id, p.ID)
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.EqualValues(t, n, e.likeCount(t, p.ID))
	require.NoError(t, e.likes.VerifyLikeCounter(e.ctx, p.ID))
}

func TestVerifyLikeCounterDetectsDivergence(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	p := e.post(t, b.ID, "")
	_, err := e.likes.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)

	require.NoError(t, e.db.Model(&model.Post{}).Where("id = ?", p.ID).UpdateColumn("like_count", 5).Error)
	assert.ErrorIs(t, e.likes.VerifyLikeCounter(e.ctx, p.ID), ErrCounterDivergence)

	rep, err := e.reconciler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.CountersFixed)
	assert.NoError(t, e.likes.VerifyLikeCounter(e.ctx, p.ID))
}

func TestFetchLikersPage(t *testing.T) {
	e := newTestEnv(t)
	owner := e.user(t, "owner")
	p := e.post(t, owner.ID, "")
	for i := 0; i < 5; i++ {
		u := e.user(t, fmt.Sprintf("liker%d", i))
		_, err := e.likes.Like(e.ctx, u.ID, p.ID)
		require.NoError(t, err)
	}
	e.follow(t, owner.ID, "id-liker3")

	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := e.likes.FetchLikersPage(e.ctx, owner.ID, p.ID, cursor, 2)
		require.NoError(t, err)
		if page.Done {
			break
		}
		for _, u := range page.Items {
			seen[u.ID] = true
			assert.Equal(t, u.ID == "id-liker3", u.IsFollowed)
		}
		cursor = page.NextCursor
	}
	assert.Len(t, seen, 5)
}

// unlikeOnNotify 在点赞通知写入之后、通知 ID 写回点赞边之前插入一次回调
type unlikeOnNotify struct {
	NotificationService
	after func()
}

func (n *unlikeOnNotify) Notify(ctx context.Context, recipientID, triggerID string, typ model.NotificationType, postID, commentID string) (string, error) {
	id, err := n.NotificationService.Notify(ctx, recipientID, triggerID, typ, postID, commentID)
	if f := n.after; f != nil && typ == model.NotifyLike {
		n.after = nil
		f()
	}
	return id, err
}

func TestUnlikeBeforeNotificationStoredLeavesNoNotification(t *testing.T) {
	e := newTestEnv(t)
	owner, a := e.user(t, "owner"), e.user(t, "alice")
	p := e.post(t, owner.ID, "")

	notifier := &unlikeOnNotify{NotificationService: e.notify}
	svc := NewLikeService(e.likeRepo, e.postRepo, e.users, e.follows, notifier)
	notifier.after = func() {
		res, err := svc.Unlike(e.ctx, a.ID, p.ID)
		require.NoError(t, err)
		require.True(t, res.Changed)
	}

	_, err := svc.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)

	liked, err := svc.HasLiked(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	assert.False(t, liked)
	assert.Zero(t, e.likeCount(t, p.ID))
	assert.Empty(t, e.notificationsOf(t, owner.ID))
}

func TestReconcilerRemovesLikeNotificationsWithoutEdge(t *testing.T) {
	e := newTestEnv(t)
	owner, a, b := e.user(t, "owner"), e.user(t, "alice"), e.user(t, "bob")
	p := e.post(t, owner.ID, "")
	_, err := e.likes.Like(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	_, err = e.likes.Like(e.ctx, b.ID, p.ID)
	require.NoError(t, err)
	require.Len(t, e.notificationsOf(t, owner.ID), 2)

	// alice 的点赞边丢失，通知残留
	edge, err := e.likeRepo.Get(e.ctx, a.ID, p.ID)
	require.NoError(t, err)
	require.NoError(t, e.likeRepo.Delete(e.ctx, edge.ID))

	rep, err := e.reconciler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rep.NotifyOrphans)
	assert.Equal(t, 1, rep.CountersFixed)

	list := e.notificationsOf(t, owner.ID)
	require.Len(t, list, 1)
	assert.Equal(t, b.ID, list[0].TriggerID)
}
