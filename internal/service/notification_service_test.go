package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/photo-feed/internal/model"
)

func TestNotifySuppressesSelfForNonCommentTypes(t *testing.T) {
	e := newTestEnv(t, withSelfComment)
	u := e.user(t, "alice")
	for _, typ := range []model.NotificationType{model.NotifyLike, model.NotifyFollow, model.NotifyCommentMention, model.NotifyPostMention} {
		id, err := e.notify.Notify(e.ctx, u.ID, u.ID, typ, "p", "")
		require.NoError(t, err)
		assert.Empty(t, id, typ.String())
	}
	id, err := e.notify.Notify(e.ctx, u.ID, u.ID, model.NotifyComment, "p", "c")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = e.notify.Notify(e.ctx, u.ID, "x", model.NotificationType(42), "", "")
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestListForUserSortedNewestFirst(t *testing.T) {
	e := newTestEnv(t)
	a, b, c := e.user(t, "alice"), e.user(t, "bob"), e.user(t, "carol")

	base := time.Now().Add(-time.Hour)
	for i, trigger := range []string{b.ID, c.ID, b.ID} {
		n := &model.Notification{RecipientID: a.ID, TriggerID: trigger, Type: model.NotifyFollow, CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, e.notifRepo.Create(e.ctx, n))
	}
	// 触发者不存在的通知被跳过
	require.NoError(t, e.notifRepo.Create(e.ctx, &model.Notification{RecipientID: a.ID, TriggerID: "ghost", Type: model.NotifyFollow}))

	list := e.notificationsOf(t, a.ID)
	require.Len(t, list, 3)
	for i := 1; i < len(list); i++ {
		assert.False(t, list[i].CreatedAt.After(list[i-1].CreatedAt))
	}
	assert.Equal(t, "carol started following you", list[1].Message)
}

func TestMarkCheckedAndDelete(t *testing.T) {
	e := newTestEnv(t)
	a, b := e.user(t, "alice"), e.user(t, "bob")
	id, err := e.notify.Notify(e.ctx, a.ID, b.ID, model.NotifyFollow, "", "")
	require.NoError(t, err)

	unread, err := e.notify.UnreadCount(e.ctx, a.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, unread)

	require.NoError(t, e.notify.MarkChecked(e.ctx, a.ID, id))
	require.NoError(t, e.notify.MarkChecked(e.ctx, a.ID, id), "marking twice is fine")
	unread, err = e.notify.UnreadCount(e.ctx, a.ID)
	require.NoError(t, err)
	assert.Zero(t, unread)

	list := e.notificationsOf(t, a.ID)
	require.Len(t, list, 1)
	assert.True(t, list[0].Checked)

	assert.ErrorIs(t, e.notify.Delete(e.ctx, b.ID, id), ErrNotificationNotFound, "only the recipient can delete")
	require.NoError(t, e.notify.Delete(e.ctx, a.ID, id))
	assert.ErrorIs(t, e.notify.Delete(e.ctx, a.ID, id), ErrNotificationNotFound)
	assert.ErrorIs(t, e.notify.MarkChecked(e.ctx, a.ID, id), ErrNotificationNotFound)
	assert.NoError(t, e.notify.Retract(e.ctx, a.ID, id), "retract of a missing notification is a no-op")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, " liked your post", Describe(model.NotifyLike))
	assert.Equal(t, " mentioned you in a post", Describe(model.NotifyPostMention))
	assert.Empty(t, Describe(model.NotificationType(99)))
}
