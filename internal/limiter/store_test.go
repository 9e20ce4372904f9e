package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/store"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newLimiter(t *testing.T, window time.Duration, maxFails int, block time.Duration) (*Store, *clock, *store.MemoryMedium) {
	t.Helper()
	mm := store.NewMemoryMedium()
	l := NewStore(store.New(mm, nil), window, maxFails, block)
	c := &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
	l.now = c.now
	return l, c, mm
}

func TestAllow_NoRecord_Allows(t *testing.T) {
	l, _, _ := newLimiter(t, 15*time.Minute, 5, 15*time.Minute)

	ok, dur, err := l.Allow(context.Background(), "u@x.io", HashIP("1.2.3.4"))
	if err != nil || !ok || dur != 0 {
		t.Fatalf("Allow no-record: ok=%v dur=%v err=%v", ok, dur, err)
	}
}

func TestFailure_BlocksAtThreshold(t *testing.T) {
	ctx := context.Background()
	l, c, _ := newLimiter(t, 5*time.Minute, 3, 10*time.Minute)
	ip := HashIP("1.2.3.4")

	for i := 0; i < 2; i++ {
		blocked, _, err := l.Failure(ctx, "u@x.io", ip)
		if err != nil || blocked {
			t.Fatalf("failure %d: blocked=%v err=%v", i, blocked, err)
		}
	}
	blocked, dur, err := l.Failure(ctx, "U@X.io", ip)
	if err != nil || !blocked || dur != 10*time.Minute {
		t.Fatalf("third failure: blocked=%v dur=%v err=%v", blocked, dur, err)
	}

	c.t = c.t.Add(time.Minute)
	ok, retry, err := l.Allow(ctx, "u@x.io", ip)
	if err != nil || ok || retry != 9*time.Minute {
		t.Fatalf("Allow blocked: ok=%v retry=%v err=%v", ok, retry, err)
	}

	ok, _, _ = l.Allow(ctx, "u@x.io", HashIP("5.6.7.8"))
	if !ok {
		t.Fatalf("other ip must not be blocked")
	}

	c.t = c.t.Add(10 * time.Minute)
	ok, _, _ = l.Allow(ctx, "u@x.io", ip)
	if !ok {
		t.Fatalf("block must expire")
	}
}

func TestFailure_WindowResetsCount(t *testing.T) {
	ctx := context.Background()
	l, c, _ := newLimiter(t, 5*time.Minute, 2, 10*time.Minute)
	ip := HashIP("1.2.3.4")

	if blocked, _, _ := l.Failure(ctx, "u@x.io", ip); blocked {
		t.Fatalf("unexpected block")
	}
	c.t = c.t.Add(6 * time.Minute)
	if blocked, _, _ := l.Failure(ctx, "u@x.io", ip); blocked {
		t.Fatalf("count must restart after the window")
	}
}

func TestSuccess_Resets(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newLimiter(t, 5*time.Minute, 2, 10*time.Minute)
	ip := HashIP("1.2.3.4")

	_, _, _ = l.Failure(ctx, "u@x.io", ip)
	if err := l.Success(ctx, "u@x.io", ip); err != nil {
		t.Fatalf("Success: %v", err)
	}
	if blocked, _, _ := l.Failure(ctx, "u@x.io", ip); blocked {
		t.Fatalf("counter must reset after success")
	}
}

func TestFailure_StorageErrorPropagates(t *testing.T) {
	l, _, mm := newLimiter(t, 5*time.Minute, 2, 10*time.Minute)
	mm.FailWrites = errors.New("quota")

	if _, _, err := l.Failure(context.Background(), "u@x.io", HashIP("1.2.3.4")); !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("want ErrStorage, got %v", err)
	}
}

func TestHashIP_Determinism(t *testing.T) {
	a := HashIP("1.2.3.4:123")
	b := HashIP("1.2.3.4:123")
	c := HashIP("5.6.7.8:321")
	if string(a) != string(b) || string(a) == string(c) || len(a) != 32 {
		t.Fatalf("hash mismatch/len: %d", len(a))
	}
}

func TestFailure_PrunesLapsedRows(t *testing.T) {
	ctx := context.Background()
	l, c, _ := newLimiter(t, 5*time.Minute, 2, 10*time.Minute)

	_, _, _ = l.Failure(ctx, "old@x.io", HashIP("1.1.1.1"))
	_, _, _ = l.Failure(ctx, "held@x.io", HashIP("2.2.2.2"))
	if blocked, _, _ := l.Failure(ctx, "held@x.io", HashIP("2.2.2.2")); !blocked {
		t.Fatalf("held@x.io must be blocked")
	}

	c.t = c.t.Add(6 * time.Minute)
	if _, _, err := l.Failure(ctx, "new@x.io", HashIP("3.3.3.3")); err != nil {
		t.Fatalf("Failure: %v", err)
	}

	rows := store.ReadAll[attempt](ctx, l.st, store.KeySigninAttempts)
	emails := map[string]bool{}
	for _, r := range rows {
		emails[r.Email] = true
	}
	if emails["old@x.io"] || !emails["held@x.io"] || !emails["new@x.io"] || len(rows) != 2 {
		t.Fatalf("rows after prune: %+v", rows)
	}
	if ok, _, _ := l.Allow(ctx, "held@x.io", HashIP("2.2.2.2")); ok {
		t.Fatalf("a live block must survive pruning")
	}

	c.t = c.t.Add(5 * time.Minute)
	_, _, _ = l.Failure(ctx, "new@x.io", HashIP("3.3.3.3"))
	rows = store.ReadAll[attempt](ctx, l.st, store.KeySigninAttempts)
	if len(rows) != 1 || rows[0].Email != "new@x.io" {
		t.Fatalf("expired block must be pruned: %+v", rows)
	}
}
