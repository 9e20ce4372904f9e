package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

// ReferralEventKind distinguishes progress updates from the one-time unlock.
type ReferralEventKind string

// Referral event kinds.
const (
	ReferralProgress ReferralEventKind = "progress"
	ReferralUnlocked ReferralEventKind = "unlocked"
)

// ReferralEvent is one observation pushed to a subscriber.
type ReferralEvent struct {
	Kind      ReferralEventKind   `json:"kind"`
	State     model.ReferralState `json:"state"`
	Remaining int                 `json:"remaining"`
}

// ReferralWatcher streams referral progress of one (user, course) pair until ctx is done.
// The channel is closed when watching stops.
type ReferralWatcher interface {
	Watch(ctx context.Context, email, courseID string) (<-chan ReferralEvent, error)
}

// PollingWatcher re-reads the referral state every interval. It sends the current state first,
// then a progress event whenever the referral count changes and exactly one unlocked event
// when the threshold is crossed while watching.
type PollingWatcher struct {
	refs     ReferralService
	st       *store.Store
	interval time.Duration
	log      *zap.Logger
	m        *metrics.Metrics
}

// NewPollingWatcher constructs a PollingWatcher.
func NewPollingWatcher(refs ReferralService, st *store.Store, interval time.Duration, log *zap.Logger, m *metrics.Metrics) *PollingWatcher {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &PollingWatcher{refs: refs, st: st, interval: interval, log: log, m: m}
}

// Watch returns errs.ErrNotFound when the referral state does not exist yet.
func (w *PollingWatcher) Watch(ctx context.Context, email, courseID string) (<-chan ReferralEvent, error) {
	initial, err := w.refs.Get(ctx, email, courseID)
	if err != nil {
		return nil, err
	}
	ch := make(chan ReferralEvent, 4)
	go w.poll(ctx, email, courseID, initial, ch)
	return ch, nil
}

func (w *PollingWatcher) poll(ctx context.Context, email, courseID string, last model.ReferralState, ch chan<- ReferralEvent) {
	defer close(ch)

	send := func(kind ReferralEventKind, st model.ReferralState) bool {
		select {
		case ch <- ReferralEvent{Kind: kind, State: st, Remaining: st.Remaining()}:
			return true
		case <-ctx.Done():
			return false
		}
	}
	if !send(ReferralProgress, last) {
		return
	}
	celebrated := last.Unlocked

	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		cur, err := w.refs.Get(ctx, email, courseID)
		if err != nil {
			continue
		}
		if cur.Count() != last.Count() {
			if !send(ReferralProgress, cur) {
				return
			}
		}
		if !celebrated && (cur.Unlocked || cur.Count() >= model.RequiredReferrals) {
			if !cur.Unlocked {
				cur.Unlocked = true
				if err := store.WriteOne(ctx, w.st, store.ReferralKey(courseID, email), cur); err != nil {
					w.log.Error("latch referral unlock", zap.String("course_id", courseID), zap.Error(err))
				}
				w.m.ReferralUnlock()
			}
			celebrated = true
			if !send(ReferralUnlocked, cur) {
				return
			}
		}
		last = cur
	}
}
