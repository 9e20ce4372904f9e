package remote

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

type fakeRemote struct {
	pingErr   error
	pingDelay time.Duration
	pings     int
	findErr   error
}

func (f *fakeRemote) Ping(ctx context.Context) error {
	f.pings++
	if f.pingDelay > 0 {
		select {
		case <-time.After(f.pingDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.pingErr
}

func (f *fakeRemote) ListPurchases(context.Context) ([]model.Purchase, error) { return nil, nil }

func (f *fakeRemote) InsertPurchase(context.Context, model.Purchase) error { return nil }

func (f *fakeRemote) UpdatePurchaseStatus(context.Context, string, model.PurchaseStatus, time.Time) error {
	return nil
}

func (f *fakeRemote) FindUserByEmail(context.Context, string) (*model.Account, error) {
	return nil, f.findErr
}

func (f *fakeRemote) InsertUser(context.Context, model.Account) error { return nil }

func TestGuard_NilRemote(t *testing.T) {
	g := NewGuard(nil, Options{}, nil, nil)

	assert.False(t, g.Configured())
	assert.False(t, g.Reachable(context.Background()))
	err := g.Do(context.Background(), func(context.Context, Remote) error { return nil })
	assert.ErrorIs(t, err, errs.ErrRemoteUnavailable)
}

func TestGuard_Reachable(t *testing.T) {
	f := &fakeRemote{}
	g := NewGuard(f, Options{}, nil, nil)

	assert.True(t, g.Reachable(context.Background()))
	f.pingErr = errors.New("connection refused")
	assert.False(t, g.Reachable(context.Background()))
}

func TestGuard_ProbeTimeoutBounded(t *testing.T) {
	f := &fakeRemote{pingDelay: time.Second}
	g := NewGuard(f, Options{ProbeTimeout: 20 * time.Millisecond}, nil, nil)

	start := time.Now()
	assert.False(t, g.Reachable(context.Background()))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestGuard_BreakerOpensAndShortCircuits(t *testing.T) {
	f := &fakeRemote{pingErr: errors.New("down")}
	g := NewGuard(f, Options{FailuresToTrip: 2, OpenFor: time.Minute}, nil, nil)
	ctx := context.Background()

	assert.False(t, g.Reachable(ctx))
	assert.False(t, g.Reachable(ctx))
	require.Equal(t, gobreaker.StateOpen, g.State())

	pings := f.pings
	assert.False(t, g.Reachable(ctx))
	assert.Equal(t, pings, f.pings, "open breaker must not call the remote")

	err := g.Do(ctx, func(ctx context.Context, r Remote) error { return r.Ping(ctx) })
	assert.ErrorIs(t, err, errs.ErrRemoteUnavailable)
}

func TestGuard_DomainErrorsDoNotTrip(t *testing.T) {
	f := &fakeRemote{findErr: errs.ErrNotFound}
	g := NewGuard(f, Options{FailuresToTrip: 1}, nil, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := g.Do(ctx, func(ctx context.Context, r Remote) error {
			_, err := r.FindUserByEmail(ctx, "a@x.io")
			return err
		})
		assert.ErrorIs(t, err, errs.ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, g.State())
}
