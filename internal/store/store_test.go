package store

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

func media(t *testing.T) map[string]Medium {
	t.Helper()

	fm, err := NewFileMedium(t.TempDir())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	return map[string]Medium{
		"memory": NewMemoryMedium(),
		"file":   fm,
		"redis":  NewRedisMedium(rc, "test:"),
	}
}

func TestMedium_Contract(t *testing.T) {
	ctx := context.Background()
	for name, m := range media(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := m.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, m.Set(ctx, "referral_c1_a@x.io", `{"a":1}`))
			require.NoError(t, m.Set(ctx, "referral_c2_b@x.io", `{}`))
			require.NoError(t, m.Set(ctx, "admin_purchases", `[]`))

			v, ok, err := m.Get(ctx, "referral_c1_a@x.io")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `{"a":1}`, v)

			keys, err := m.Keys(ctx, "referral_")
			require.NoError(t, err)
			assert.Equal(t, []string{"referral_c1_a@x.io", "referral_c2_b@x.io"}, keys)

			require.NoError(t, m.Delete(ctx, "referral_c1_a@x.io"))
			require.NoError(t, m.Delete(ctx, "referral_c1_a@x.io"))
			_, ok, err = m.Get(ctx, "referral_c1_a@x.io")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestReadAll_FailSoft(t *testing.T) {
	ctx := context.Background()
	mm := NewMemoryMedium()
	s := New(mm, nil)

	assert.Empty(t, ReadAll[model.Purchase](ctx, s, KeyAdminPurchases))

	require.NoError(t, mm.Set(ctx, KeyAdminPurchases, "{not json"))
	got := ReadAll[model.Purchase](ctx, s, KeyAdminPurchases)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, mm.Set(ctx, KeyAdminPurchases, "null"))
	assert.NotNil(t, ReadAll[model.Purchase](ctx, s, KeyAdminPurchases))
}

func TestWriteAll_RoundTripAndReplace(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryMedium(), nil)

	in := []model.Purchase{{ID: "p1", Status: model.StatusPending}, {ID: "p2", Status: model.StatusApproved}}
	require.NoError(t, WriteAll(ctx, s, KeyAdminPurchases, in))
	assert.Equal(t, in, ReadAll[model.Purchase](ctx, s, KeyAdminPurchases))

	require.NoError(t, WriteAll(ctx, s, KeyAdminPurchases, in[:1]))
	assert.Len(t, ReadAll[model.Purchase](ctx, s, KeyAdminPurchases), 1)
}

func TestWriteAll_StorageError(t *testing.T) {
	ctx := context.Background()
	mm := NewMemoryMedium()
	mm.FailWrites = errors.New("quota exceeded")
	s := New(mm, nil)

	err := WriteAll(ctx, s, KeyAdminPurchases, []model.Purchase{{ID: "p1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrStorage)

	assert.ErrorIs(t, s.SetFlag(ctx, KeySessionEmail, "a@x.io"), errs.ErrStorage)
	assert.ErrorIs(t, s.Remove(ctx, KeySessionEmail), errs.ErrStorage)
}

func TestAppend_CapsOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryMedium(), nil)

	const limit = 500
	for i := 0; i < limit+1; i++ {
		_, err := Append(ctx, s, KeyActivities, model.ActivityEvent{ID: fmt.Sprintf("act_%d", i)}, limit)
		require.NoError(t, err)
	}
	got := ReadAll[model.ActivityEvent](ctx, s, KeyActivities)
	require.Len(t, got, limit)
	assert.Equal(t, "act_1", got[0].ID)
	assert.Equal(t, fmt.Sprintf("act_%d", limit), got[limit-1].ID)
}

func TestAppend_ReturnsSliceOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	mm := NewMemoryMedium()
	s := New(mm, nil)
	_, err := Append(ctx, s, KeyActivities, model.ActivityEvent{ID: "a"}, 0)
	require.NoError(t, err)

	mm.FailWrites = errors.New("disabled")
	got, err := Append(ctx, s, KeyActivities, model.ActivityEvent{ID: "b"}, 0)
	assert.ErrorIs(t, err, errs.ErrStorage)
	assert.Len(t, got, 2)
	assert.Len(t, ReadAll[model.ActivityEvent](ctx, s, KeyActivities), 1)
}

func TestReadOneWriteOne(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryMedium(), nil)

	key := ReferralKey("free-1", "A@X.io ")
	assert.Equal(t, "referral_free-1_a@x.io", key)

	_, ok := ReadOne[model.ReferralState](ctx, s, key)
	assert.False(t, ok)

	st := model.ReferralState{ReferralCode: "REFABC", CourseID: "free-1", UserEmail: "a@x.io"}
	require.NoError(t, WriteOne(ctx, s, key, st))
	got, ok := ReadOne[model.ReferralState](ctx, s, key)
	require.True(t, ok)
	assert.Equal(t, "REFABC", got.ReferralCode)

	assert.Equal(t, []string{key}, s.Keys(ctx, ReferralKeyPrefix))
}

func TestFlags(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryMedium(), nil)

	assert.Equal(t, "", s.Flag(ctx, KeyRememberMe))
	require.NoError(t, s.SetFlag(ctx, KeyRememberMe, "true"))
	assert.Equal(t, "true", s.Flag(ctx, KeyRememberMe))
	require.NoError(t, s.Remove(ctx, KeyRememberMe))
	assert.Equal(t, "", s.Flag(ctx, KeyRememberMe))
}
