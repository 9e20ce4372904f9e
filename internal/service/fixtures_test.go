package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/remote"
	"github.com/and161185/course-keeper/internal/store"
)

var baseTime = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMemStore() (*store.Store, *store.MemoryMedium) {
	m := store.NewMemoryMedium()
	return store.New(m, nil), m
}

type fakeRemote struct {
	mu        sync.Mutex
	down      bool
	listErr   error
	purchases []model.Purchase
	users     map[string]model.Account

	inserted int
	updated  int
}

var _ remote.Remote = (*fakeRemote)(nil)

var errDown = errors.New("connection refused")

func (f *fakeRemote) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	return nil
}

func (f *fakeRemote) ListPurchases(context.Context) ([]model.Purchase, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]model.Purchase(nil), f.purchases...), nil
}

func (f *fakeRemote) InsertPurchase(_ context.Context, p model.Purchase) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	for _, x := range f.purchases {
		if x.ID == p.ID {
			return errs.ErrAlreadyExists
		}
	}
	f.inserted++
	f.purchases = append([]model.Purchase{p}, f.purchases...)
	return nil
}

func (f *fakeRemote) UpdatePurchaseStatus(_ context.Context, id string, status model.PurchaseStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	for i := range f.purchases {
		if f.purchases[i].ID == id && f.purchases[i].Status == model.StatusPending {
			f.purchases[i].Status = status
			if status == model.StatusApproved {
				a := at
				f.purchases[i].ApprovedAt = &a
			}
			f.updated++
			return nil
		}
	}
	return errs.ErrNotFound
}

func (f *fakeRemote) FindUserByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errDown
	}
	a, ok := f.users[strings.ToLower(email)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (f *fakeRemote) InsertUser(_ context.Context, u model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return errDown
	}
	if f.users == nil {
		f.users = map[string]model.Account{}
	}
	k := strings.ToLower(u.Email)
	if _, ok := f.users[k]; ok {
		return errs.ErrAlreadyExists
	}
	f.users[k] = u
	return nil
}

// newGuard wraps r with a breaker that never trips during a test. A nil r yields a local-only guard.
func newGuard(r remote.Remote) *remote.Guard {
	if r == nil {
		return remote.NewGuard(nil, remote.Options{}, nil, nil)
	}
	return remote.NewGuard(r, remote.Options{
		ProbeTimeout:   time.Second,
		CallTimeout:    time.Second,
		FailuresToTrip: 1000,
		OpenFor:        time.Minute,
	}, nil, nil)
}

func course(id string, price int64) model.Course {
	return model.Course{ID: id, Title: "Course " + id, Price: price, Free: price == 0}
}

func pending(id, email, courseID string, at time.Time) model.Purchase {
	return model.Purchase{
		ID:          id,
		UserEmail:   email,
		UserName:    "Buyer",
		CourseID:    courseID,
		CourseTitle: "Course " + courseID,
		CoursePrice: 100,
		AmountPaid:  100,
		Status:      model.StatusPending,
		CreatedAt:   at,
	}
}
