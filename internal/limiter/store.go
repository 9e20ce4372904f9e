package limiter

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

type attempt struct {
	Email        string    `json:"email"`
	IPHash       string    `json:"ip_hash"`
	FailCount    int       `json:"fail_count"`
	BlockedUntil time.Time `json:"blocked_until"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Store is a Record Store backed limiter with a sliding window and lockout.
// Counters live in the signin_attempts collection.
type Store struct {
	st       *store.Store
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

// NewStore constructs a limiter persisted in st.
func NewStore(st *store.Store, window time.Duration, maxFails int, blockFor time.Duration) *Store {
	return &Store{st: st, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

func (l *Store) find(all []attempt, email string, ipHash []byte) int {
	email = model.NormalizeEmail(email)
	h := hex.EncodeToString(ipHash)
	for i := range all {
		if all[i].Email == email && all[i].IPHash == h {
			return i
		}
	}
	return -1
}

// Allow reports whether sign-in is currently allowed and a retry-after duration.
func (l *Store) Allow(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	all := store.ReadAll[attempt](ctx, l.st, store.KeySigninAttempts)
	i := l.find(all, email, ipHash)
	if i < 0 {
		return true, 0, nil
	}
	now := l.now()
	if all[i].BlockedUntil.After(now) {
		return false, all[i].BlockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (email, ip).
func (l *Store) Success(ctx context.Context, email string, ipHash []byte) error {
	all := store.ReadAll[attempt](ctx, l.st, store.KeySigninAttempts)
	i := l.find(all, email, ipHash)
	if i < 0 {
		return nil
	}
	all = append(all[:i], all[i+1:]...)
	return store.WriteAll(ctx, l.st, store.KeySigninAttempts, all)
}

// stale reports whether a row has neither a live window nor a live block.
func (l *Store) stale(a attempt, now time.Time) bool {
	return now.Sub(a.UpdatedAt) > l.window && !a.BlockedUntil.After(now)
}

// Failure records a failed attempt; may set a block until a future time.
// Rows whose window and block have both lapsed are dropped on the same write.
func (l *Store) Failure(ctx context.Context, email string, ipHash []byte) (bool, time.Duration, error) {
	now := l.now()
	all := store.ReadAll[attempt](ctx, l.st, store.KeySigninAttempts)
	live := all[:0]
	for _, a := range all {
		if !l.stale(a, now) {
			live = append(live, a)
		}
	}
	all = live
	i := l.find(all, email, ipHash)
	if i < 0 {
		all = append(all, attempt{Email: model.NormalizeEmail(email), IPHash: hex.EncodeToString(ipHash)})
		i = len(all) - 1
	}
	a := &all[i]
	if now.Sub(a.UpdatedAt) > l.window {
		a.FailCount = 1
	} else {
		a.FailCount++
	}
	a.UpdatedAt = now

	blocked := false
	if a.FailCount >= l.maxFails {
		a.BlockedUntil = now.Add(l.blockFor)
		blocked = true
	}
	if err := store.WriteAll(ctx, l.st, store.KeySigninAttempts, all); err != nil {
		return false, 0, err
	}
	if blocked {
		return true, l.blockFor, nil
	}
	return false, 0, nil
}
