package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

func newCart(t *testing.T) (*CartServiceImpl, *store.Store) {
	t.Helper()
	st, _ := newMemStore()
	return NewCartService(st, NewActivityLog(st, nil, nil), nil), st
}

func TestCart_AddRemoveTotal(t *testing.T) {
	svc, st := newCart(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "a@x.io", course("a", 499))
	require.NoError(t, err)
	items, err := svc.Add(ctx, "a@x.io", course("b", 299))
	require.NoError(t, err)
	require.Len(t, items, 2)

	items, err = svc.Add(ctx, "A@x.io", course("a", 499))
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(798), svc.Total(ctx, "a@x.io"))

	items, err = svc.Remove(ctx, "a@x.io", "a")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Course.ID)

	require.NoError(t, svc.Clear(ctx, "a@x.io"))
	assert.Empty(t, svc.Items(ctx, "a@x.io"))

	acts := store.ReadAll[model.ActivityEvent](ctx, st, store.KeyActivities)
	require.Len(t, acts, 2)
	assert.Equal(t, model.ActionAddToCart, acts[0].Action)
	assert.Equal(t, "Added: Course a (₹499)", acts[0].Details)
}

func TestCart_AnonymousOwner(t *testing.T) {
	svc, st := newCart(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "session-123", course("a", 100))
	require.NoError(t, err)
	acts := store.ReadAll[model.ActivityEvent](ctx, st, store.KeyActivities)
	require.Len(t, acts, 1)
	assert.Equal(t, model.AnonymousEmail, acts[0].UserEmail)

	_, err = svc.Add(ctx, "", course("a", 100))
	assert.Error(t, err)
}

func TestCart_ResumePending(t *testing.T) {
	svc, _ := newCart(t)
	ctx := context.Background()
	const visitor = "v-1"

	got, ok, err := svc.ResumePending(ctx, visitor)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	require.NoError(t, svc.StashCart(ctx, visitor, []model.Course{course("a", 1), course("b", 2)}))
	require.NoError(t, svc.StashCourse(ctx, visitor, course("c", 3)))

	got, ok, err = svc.ResumePending(ctx, visitor)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, ok, err = svc.ResumePending(ctx, visitor)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got, 2)

	_, ok, err = svc.ResumePending(ctx, visitor)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, svc.StashCart(ctx, visitor, nil))
}

func TestCart_PendingIsPerVisitor(t *testing.T) {
	svc, _ := newCart(t)
	ctx := context.Background()

	require.NoError(t, svc.StashCourse(ctx, "browser-a", course("a", 100)))

	got, ok, err := svc.ResumePending(ctx, "browser-b")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	got, ok, err = svc.ResumePending(ctx, "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, got)

	got, ok, err = svc.ResumePending(ctx, "browser-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a", got[0].ID)

	for _, bad := range []string{"", "has space", "../etc"} {
		err := svc.StashCourse(ctx, bad, course("a", 100))
		assert.ErrorIs(t, err, errs.ErrValidation, bad)
	}
}
