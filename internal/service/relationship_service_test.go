package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/photo-feed/internal/model"
)

func TestFollowUnfollowIsFollowing(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")

	res, err := e.rel.Follow(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, res.Created)
	ok, err := e.rel.IsFollowing(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	removed, err := e.rel.Unfollow(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)
	ok, err = e.rel.IsFollowing(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFollowIsIdempotent(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")

	e.follow(t, a.ID, b.ID)
	res, err := e.rel.Follow(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, res.Created)

	list := e.notificationsOf(t, b.ID)
	require.Len(t, list, 1)
	assert.Equal(t, model.NotifyFollow, list[0].Type)
	assert.Equal(t, a.ID, list[0].TriggerID)
}

func TestFollowErrors(t *testing.T) {
	e := newTestEnv(t)
	a := e.user(t, "alice")

	_, err := e.rel.Follow(e.ctx, "", a.ID)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = e.rel.Follow(e.ctx, a.ID, a.ID)
	assert.ErrorIs(t, err, ErrFollowSelf)
	_, err = e.rel.Follow(e.ctx, a.ID, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)

	ok, err := e.follows.Exists(e.ctx, a.ID, "ghost")
	require.NoError(t, err)
	assert.False(t, ok, "failed precondition leaves no edge")
}

func TestFollowBackfillsExistingPosts(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	var posts []string
	for i := 0; i < 3; i++ {
		posts = append(posts, e.post(t, b.ID, fmt.Sprintf("post %d", i)).ID)
	}
	before, err := e.feed.Count(e.ctx, a.ID)
	require.NoError(t, err)

	res, err := e.rel.Follow(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Backfilled)

	after, err := e.feed.Count(e.ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, after-before)
	for _, id := range posts {
		assert.True(t, e.inFeed(t, a.ID, id))
	}
}

func TestUnfollowRetractsAuthorPostsFromFeed(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.follow(t, a.ID, b.ID)
	p := e.post(t, b.ID, "")
	require.True(t, e.inFeed(t, a.ID, p.ID))

	_, err := e.rel.Unfollow(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, e.inFeed(t, a.ID, p.ID))
	assert.True(t, e.inFeed(t, b.ID, p.ID), "author keeps own post")
}

func TestFollowMirrorsIntoFans(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	e.follow(t, a.ID, b.ID)

	fans, err := e.fans.ListFanIDs(e.ctx, b.ID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{a.ID}, fans)

	prof, err := e.userSvc.GetProfile(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, prof.User.IsFollowed)
	assert.EqualValues(t, 1, prof.Stats.Followers)

	_, err = e.rel.Unfollow(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	prof, err = e.userSvc.GetProfile(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, prof.User.IsFollowed)
	assert.EqualValues(t, 0, prof.Stats.Followers, "stats cache invalidated on unfollow")
}

func TestAsyncReplicatorAndReconcilerRepairMirror(t *testing.T) {
	e := newTestEnv(t, withReplicator)
	a, b := e.user(t, "alice"), e.user(t, "bob")

	// 未启动 worker：第二步停留在队列中，isFollowing 仍以 follows 为准
	e.follow(t, a.ID, b.ID)
	ok, err := e.rel.IsFollowing(e.ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	cnt, err := e.fans.CountFans(e.ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, cnt)

	rep, err := e.reconciler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.MirrorsAdded)
	cnt, err = e.fans.CountFans(e.ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cnt)

	stop := e.replicator.Start(1)
	require.NoError(t, stop(context.Background()))
	assert.Zero(t, e.replicator.QueueLen())
}

func TestReplicatorAppliesJobs(t *testing.T) {
	e := newTestEnv(t, withReplicator)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	stop := e.replicator.Start(2)

	e.follow(t, a.ID, b.ID)
	select {
	case <-e.replicator.Metrics():
	case <-time.After(2 * time.Second):
		t.Fatal("mirror job not applied")
	}
	cnt, err := e.fans.CountFans(e.ctx, b.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, cnt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, stop(ctx))
}

func TestReconcilerRemovesOrphanFans(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	require.NoError(t, e.fans.Create(e.ctx, b.ID, a.ID))

	rep, err := e.reconciler.RunOnce(e.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.OrphansRemoved)
	cnt, err := e.fans.CountFans(e.ctx, b.ID)
	require.NoError(t, err)
	assert.Zero(t, cnt)
}

func TestListFollowersAndFollowingPages(t *testing.T) {
	e := newTestEnv(t)
	star := e.user(t, "star")
	for i := 0; i < 7; i++ {
		u := e.user(t, fmt.Sprintf("fan%d", i))
		e.follow(t, u.ID, star.ID)
		e.follow(t, star.ID, u.ID)
	}

	collect := func(fetch func(cursor string) ([]*model.User, string, bool)) []string {
		var ids []string
		cursor := ""
		for i := 0; i < 10; i++ {
			items, next, done := fetch(cursor)
			if done {
				return ids
			}
			for _, u := range items {
				ids = append(ids, u.ID)
			}
			cursor = next
		}
		t.Fatal("pagination did not terminate")
		return nil
	}

	followers := collect(func(c string) ([]*model.User, string, bool) {
		p, err := e.rel.ListFollowersPage(e.ctx, "", star.ID, c, 3)
		require.NoError(t, err)
		return p.Items, p.NextCursor, p.Done
	})
	following := collect(func(c string) ([]*model.User, string, bool) {
		p, err := e.rel.ListFollowingPage(e.ctx, star.ID, star.ID, c, 3)
		require.NoError(t, err)
		for _, u := range p.Items {
			assert.True(t, u.IsFollowed)
		}
		return p.Items, p.NextCursor, p.Done
	})
	assert.Len(t, followers, 7)
	assert.ElementsMatch(t, followers, following)
}
