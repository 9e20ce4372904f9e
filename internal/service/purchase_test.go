package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

func newPurchaseSvc(t *testing.T) (*PurchaseServiceImpl, *store.Store, *store.MemoryMedium) {
	t.Helper()
	rec, st, m, c := newReconciler(t, nil)
	roster := NewRoster(st)
	roster.now = c.now
	svc := NewPurchaseService(rec, st, roster, nil, nil)
	svc.now = c.now
	return svc, st, m
}

var buyer = model.BuyerDetails{FullName: "Asha Rao", Email: "Asha@Example.com", Phone: "9999999999"}

func TestCheckout_Validation(t *testing.T) {
	svc, st, _ := newPurchaseSvc(t)
	ctx := context.Background()
	cs := []model.Course{course("a", 500)}

	tests := []struct {
		name    string
		courses []model.Course
		buyer   model.BuyerDetails
		coupon  string
		msg     string
	}{
		{name: "empty cart", courses: nil, buyer: buyer, msg: "Your cart is empty"},
		{name: "missing name", courses: cs, buyer: model.BuyerDetails{Email: "a@b.c", Phone: "1"}, msg: "Please fill in all your details"},
		{name: "blank phone", courses: cs, buyer: model.BuyerDetails{FullName: "A", Email: "a@b.c", Phone: "  "}, msg: "Please fill in all your details"},
		{name: "email without at", courses: cs, buyer: model.BuyerDetails{FullName: "A", Email: "abc", Phone: "1"}, msg: "Invalid user email. Please sign in again."},
		{name: "unknown coupon", courses: cs, buyer: buyer, coupon: "XYZ", msg: "Invalid coupon code"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Checkout(ctx, tt.courses, tt.buyer, tt.coupon)
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrValidation)
			assert.Equal(t, tt.msg, errs.Message(err))
		})
	}
	assert.Empty(t, store.ReadAll[model.Purchase](ctx, st, store.KeyAdminPurchases))
}

func TestCheckout_CreatesPendingPurchases(t *testing.T) {
	svc, st, _ := newPurchaseSvc(t)
	ctx := context.Background()

	got, err := svc.Checkout(ctx, []model.Course{course("a", 200), course("b", 300)}, buyer, "get20")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(160), got[0].AmountPaid)
	assert.Equal(t, int64(240), got[1].AmountPaid)
	assert.Equal(t, int64(200), got[0].CoursePrice)
	for _, p := range got {
		assert.Equal(t, model.StatusPending, p.Status)
		assert.Equal(t, "GET20", p.CouponUsed)
		assert.Equal(t, "Asha@Example.com", p.UserEmail)
		assert.Contains(t, p.ID, "local_")
		assert.Nil(t, p.ApprovedAt)
	}
	assert.Len(t, store.ReadAll[model.Purchase](ctx, st, store.KeyAdminPurchases), 2)

	_, err = svc.Checkout(ctx, []model.Course{course("a", 200)}, buyer, "")
	require.NoError(t, err)
	assert.Len(t, store.ReadAll[model.Purchase](ctx, st, store.KeyAdminPurchases), 3)
	assert.Len(t, store.ReadAll[model.Purchase](ctx, st, store.KeyRecentPurchases), 2)
}

func TestCheckout_StorageFailure(t *testing.T) {
	svc, _, m := newPurchaseSvc(t)
	m.FailWrites = errors.New("disabled")

	_, err := svc.Checkout(context.Background(), []model.Course{course("a", 200)}, buyer, "")
	assert.ErrorIs(t, err, errs.ErrStorage)
}

func TestCheckout_MarksRosterBuyer(t *testing.T) {
	svc, st, _ := newPurchaseSvc(t)
	ctx := context.Background()
	require.NoError(t, store.WriteAll(ctx, st, store.KeyLibraryUsers, []model.Account{
		{ID: "u1", Email: "asha@example.com", FullName: "Asha Rao"},
		{ID: "u2", Email: "ravi@example.com", FullName: "Ravi"},
	}))

	_, err := svc.Checkout(ctx, []model.Course{course("a", 200)}, buyer, "")
	require.NoError(t, err)

	users := store.ReadAll[model.RegisteredUser](ctx, st, store.KeyRegisteredUsers)
	require.Len(t, users, 2)
	assert.True(t, users[0].HasPurchased)
	assert.False(t, users[1].HasPurchased)
}

func TestLibraryEntries(t *testing.T) {
	t1 := baseTime
	t2 := baseTime.Add(time.Hour)

	pendingA := pending("p1", "Asha@x.io", "a", t1)
	approvedA := pending("p2", "asha@x.io", "a", t1)
	approvedA.Status = model.StatusApproved
	approvedA.ApprovedAt = &t1
	pendingAAgain := pending("p3", "asha@x.io", "a", t2)
	olderB := pending("p4", "asha@x.io", "b", t1)
	newerB := pending("p5", "ASHA@x.io", "b", t2)
	other := pending("p6", "ravi@x.io", "a", t1)

	got := LibraryEntries([]model.Purchase{pendingA, approvedA, pendingAAgain, olderB, newerB, other}, "asha@x.io")
	require.Len(t, got, 2)

	assert.Equal(t, "a", got[0].CourseID)
	assert.Equal(t, "approved_p2", got[0].ID)
	assert.True(t, got[0].HasAccess)

	assert.Equal(t, "b", got[1].CourseID)
	assert.Equal(t, "p5", got[1].PurchaseID)
	assert.False(t, got[1].HasAccess)
	assert.Equal(t, model.StatusPending, got[1].Status)
}

func TestLibrary_SearchAndRecent(t *testing.T) {
	svc, st, _ := newPurchaseSvc(t)
	ctx := context.Background()
	p := pending("r1", "asha@x.io", "py", baseTime)
	p.CourseTitle = "Python Full Stack"
	require.NoError(t, store.WriteAll(ctx, st, store.KeyRecentPurchases, []model.Purchase{p}))
	seedLocal(t, st, pending("l1", "asha@x.io", "react", baseTime))

	assert.Len(t, svc.Library(ctx, "ASHA@x.io", ""), 2)
	got := svc.Library(ctx, "asha@x.io", "python")
	require.Len(t, got, 1)
	assert.Equal(t, "py", got[0].CourseID)
}

func TestFilterPurchases(t *testing.T) {
	a := pending("p1", "asha@x.io", "a", baseTime)
	a.UserName = "Asha"
	b := pending("p2", "ravi@x.io", "b", baseTime)
	b.Status = model.StatusApproved
	b.CourseTitle = "React Mastery"

	assert.Len(t, FilterPurchases([]model.Purchase{a, b}, "", "all"), 2)
	assert.Equal(t, []string{"p2"}, ids(FilterPurchases([]model.Purchase{a, b}, "", model.StatusApproved)))
	assert.Equal(t, []string{"p2"}, ids(FilterPurchases([]model.Purchase{a, b}, "react", "")))
	assert.Equal(t, []string{"p1"}, ids(FilterPurchases([]model.Purchase{a, b}, "ASHA", "")))
	assert.Empty(t, FilterPurchases([]model.Purchase{a, b}, "asha", model.StatusRejected))
}

func TestStats(t *testing.T) {
	svc, st, _ := newPurchaseSvc(t)
	ctx := context.Background()
	paid := pending("p1", "a@x.io", "a", baseTime)
	paid.Status, paid.AmountPaid, paid.CoursePrice = model.StatusApproved, 160, 200
	unpaid := pending("p2", "b@x.io", "b", baseTime)
	unpaid.Status, unpaid.AmountPaid, unpaid.CoursePrice = model.StatusApproved, 0, 300
	rej := pending("p3", "c@x.io", "c", baseTime)
	rej.Status = model.StatusRejected
	seedLocal(t, st, paid, unpaid, rej, pending("p4", "a@x.io", "d", baseTime))
	require.NoError(t, store.WriteAll(ctx, st, store.KeyLibraryUsers, []model.Account{
		{Email: "a@x.io", FullName: "A"}, {Email: "z@x.io", FullName: "Z"},
	}))

	s, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Total: 4, Pending: 1, Approved: 2, Rejected: 1, Revenue: 460, RegisteredCount: 2, NonBuyers: 1}, s)
}
