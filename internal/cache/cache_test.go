package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/photo-feed/internal/model"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStatsCacheHitMissInvalidate(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	loads := 0
	current := UserStats{Followers: 3, Following: 1, Posts: 7}
	c := NewStatsCache(client, time.Minute, func(context.Context, string) (UserStats, error) {
		loads++
		return current, nil
	})

	st, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, current, st)
	assert.True(t, mr.Exists("user:stats:u1"))

	st, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, current, st)
	assert.Equal(t, 1, loads)

	current.Followers = 4
	require.NoError(t, c.Invalidate(ctx, "u1"))
	st, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 4, st.Followers)
	assert.Equal(t, 2, loads)

	hits, misses := c.Counters()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 2, misses)

	mr.FastForward(2 * time.Minute)
	assert.False(t, mr.Exists("user:stats:u1"))
}

func TestStatsCacheFallsBackWhenRedisDown(t *testing.T) {
	mr, client := newRedis(t)
	mr.Close()

	c := NewStatsCache(client, time.Minute, func(context.Context, string) (UserStats, error) {
		return UserStats{Posts: 2}, nil
	})
	st, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, st.Posts)

	failing := NewStatsCache(nil, time.Minute, func(context.Context, string) (UserStats, error) {
		return UserStats{}, errors.New("db down")
	})
	_, err = failing.Get(context.Background(), "u1")
	assert.Error(t, err)
}

func TestCommentBrokerDeliversEvents(t *testing.T) {
	_, client := newRedis(t)
	broker := NewCommentBroker(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := broker.Subscribe(ctx, "p1")
	require.NoError(t, err)

	c := &model.Comment{ID: "c1", PostID: "p1", UserID: "u1", Text: "nice"}
	require.NoError(t, broker.Publish(ctx, "p1", CommentEvent{Type: CommentAdded, Comment: c}))
	require.NoError(t, broker.Publish(ctx, "other", CommentEvent{Type: CommentAdded, Comment: c}))
	require.NoError(t, broker.Publish(ctx, "p1", CommentEvent{Type: CommentRemoved, Comment: c}))

	var got []CommentEventType
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case ev := <-sub.Events():
			assert.Equal(t, "c1", ev.Comment.ID)
			got = append(got, ev.Type)
		case <-timeout:
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.Equal(t, []CommentEventType{CommentAdded, CommentRemoved}, got)

	cancel()
	select {
	case _, ok := <-sub.Events():
		for ok {
			_, ok = <-sub.Events()
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events channel not closed after cancel")
	}
}
