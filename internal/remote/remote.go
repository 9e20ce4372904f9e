// Package remote defines the contract of the remote data service and a connectivity guard
// that bounds every call and short-circuits while the service keeps failing.
package remote

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/model"
)

// Remote is the hosted relational store of purchases and library users.
type Remote interface {
	// Ping performs a minimal read to check connectivity.
	Ping(ctx context.Context) error
	// ListPurchases returns every purchase, newest first.
	ListPurchases(ctx context.Context) ([]model.Purchase, error)
	// InsertPurchase stores p under its own id.
	InsertPurchase(ctx context.Context, p model.Purchase) error
	// UpdatePurchaseStatus moves a pending purchase to status. Non-pending rows are left as is.
	UpdatePurchaseStatus(ctx context.Context, id string, status model.PurchaseStatus, at time.Time) error
	// FindUserByEmail returns errs.ErrNotFound when no account exists.
	FindUserByEmail(ctx context.Context, email string) (*model.Account, error)
	// InsertUser returns errs.ErrAlreadyExists on duplicate email.
	InsertUser(ctx context.Context, u model.Account) error
}

// Options tune the guard.
type Options struct {
	ProbeTimeout time.Duration
	CallTimeout  time.Duration
	// FailuresToTrip consecutive failures open the breaker; OpenFor is how long it stays open.
	FailuresToTrip uint32
	OpenFor        time.Duration
}

// DefaultOptions returns a 3s probe, 5s calls and a breaker opening after 3 failures for 30s.
func DefaultOptions() Options {
	return Options{
		ProbeTimeout:   3 * time.Second,
		CallTimeout:    5 * time.Second,
		FailuresToTrip: 3,
		OpenFor:        30 * time.Second,
	}
}

const breakerName = "remote"

// Guard wraps a Remote with timeouts and a circuit breaker. A Guard over a nil Remote is
// permanently unreachable, which runs the product local-only.
type Guard struct {
	r    Remote
	cb   *gobreaker.CircuitBreaker[struct{}]
	opts Options
	log  *zap.Logger
}

// NewGuard constructs a Guard. r may be nil.
func NewGuard(r Remote, opts Options, log *zap.Logger, m *metrics.Metrics) *Guard {
	if log == nil {
		log = zap.NewNop()
	}
	d := DefaultOptions()
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = d.ProbeTimeout
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = d.CallTimeout
	}
	if opts.FailuresToTrip == 0 {
		opts.FailuresToTrip = d.FailuresToTrip
	}
	if opts.OpenFor <= 0 {
		opts.OpenFor = d.OpenFor
	}
	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     opts.OpenFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.FailuresToTrip
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			m.BreakerState(name, stateToFloat(to))
		},
		// Domain outcomes prove the service is up.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrAlreadyExists)
		},
	}
	m.BreakerState(breakerName, 0)
	return &Guard{r: r, cb: gobreaker.NewCircuitBreaker[struct{}](settings), opts: opts, log: log}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// Configured reports whether a remote is wired at all.
func (g *Guard) Configured() bool { return g != nil && g.r != nil }

// State returns the breaker state.
func (g *Guard) State() gobreaker.State { return g.cb.State() }

// Reachable runs a bounded connectivity probe. Any failure, including an open breaker,
// reports false.
func (g *Guard) Reachable(ctx context.Context) bool {
	if !g.Configured() {
		return false
	}
	err := g.exec(ctx, g.opts.ProbeTimeout, func(ctx context.Context, r Remote) error {
		return r.Ping(ctx)
	})
	if err != nil {
		g.log.Debug("remote probe failed", zap.Error(err))
		return false
	}
	return true
}

// Do runs fn against the remote bounded by the call timeout. It returns
// errs.ErrRemoteUnavailable when no remote is configured or the breaker is open.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context, r Remote) error) error {
	if !g.Configured() {
		return errs.ErrRemoteUnavailable
	}
	return g.exec(ctx, g.opts.CallTimeout, fn)
}

func (g *Guard) exec(ctx context.Context, timeout time.Duration, fn func(ctx context.Context, r Remote) error) error {
	_, err := g.cb.Execute(func() (struct{}, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return struct{}{}, fn(cctx, g.r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return errors.Join(errs.ErrRemoteUnavailable, err)
	}
	return err
}
