// Package service contains the application services of the course library: purchase
// reconciliation and lifecycle, referrals, accounts, activity, engagement and carts.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/remote"
	"github.com/and161185/course-keeper/internal/store"
)

// Reconciler merges the optional remote purchase table with the local admin_purchases buffer.
// Local storage is always written first; the remote is best effort.
type Reconciler struct {
	st    *store.Store
	guard *remote.Guard
	log   *zap.Logger
	m     *metrics.Metrics
	now   func() time.Time
}

// NewReconciler constructs a Reconciler. guard may wrap a nil remote.
func NewReconciler(st *store.Store, guard *remote.Guard, log *zap.Logger, m *metrics.Metrics) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{st: st, guard: guard, log: log, m: m, now: time.Now}
}

// LocalPurchases returns the admin_purchases buffer as stored.
func (r *Reconciler) LocalPurchases(ctx context.Context) []model.Purchase {
	return store.ReadAll[model.Purchase](ctx, r.st, store.KeyAdminPurchases)
}

// ListPurchases returns remote ++ local de-duplicated by id (remote wins), or the local buffer
// unchanged when the remote is unreachable or fails.
func (r *Reconciler) ListPurchases(ctx context.Context) []model.Purchase {
	local := r.LocalPurchases(ctx)
	remotes, ok := r.fetchRemote(ctx, "list_purchases")
	if !ok {
		return local
	}
	return Merge(append(remotes, local...), purchaseID, nil)
}

func purchaseID(p model.Purchase) string { return p.ID }

func (r *Reconciler) fetchRemote(ctx context.Context, op string) ([]model.Purchase, bool) {
	if !r.guard.Reachable(ctx) {
		r.m.RemoteFallback(op)
		r.log.Debug("remote unreachable, using local purchases", zap.String("op", op))
		return nil, false
	}
	var remotes []model.Purchase
	err := r.guard.Do(ctx, func(ctx context.Context, rm remote.Remote) error {
		var err error
		remotes, err = rm.ListPurchases(ctx)
		return err
	})
	if err != nil {
		r.m.RemoteFallback(op)
		r.log.Warn("remote list failed, using local purchases", zap.String("op", op), zap.Error(err))
		return nil, false
	}
	return remotes, true
}

// UpsertPurchase writes p to the local buffer (replacing a record with the same id) and then
// inserts it remotely. Remote failures are logged and swallowed; a local write failure is
// returned as errs.ErrStorage.
func (r *Reconciler) UpsertPurchase(ctx context.Context, p model.Purchase) error {
	if err := r.putLocal(ctx, p); err != nil {
		return err
	}
	if !r.guard.Configured() {
		return nil
	}
	err := r.guard.Do(ctx, func(ctx context.Context, rm remote.Remote) error {
		return rm.InsertPurchase(ctx, p)
	})
	if err != nil && !errors.Is(err, errs.ErrAlreadyExists) {
		r.m.RemoteError("insert_purchase")
		r.log.Warn("remote insert failed, kept locally", zap.String("purchase_id", p.ID), zap.Error(err))
	}
	return nil
}

func (r *Reconciler) putLocal(ctx context.Context, p model.Purchase) error {
	local := r.LocalPurchases(ctx)
	replaced := false
	for i := range local {
		if local[i].ID == p.ID {
			local[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		local = append(local, p)
	}
	if err := store.WriteAll(ctx, r.st, store.KeyAdminPurchases, local); err != nil {
		return fmt.Errorf("save purchase %s: %w", p.ID, err)
	}
	return nil
}

// ApprovePurchase moves a pending purchase to approved and stamps approvedAt.
func (r *Reconciler) ApprovePurchase(ctx context.Context, id string) (model.Purchase, error) {
	return r.setStatus(ctx, id, model.StatusApproved)
}

// RejectPurchase moves a pending purchase to rejected.
func (r *Reconciler) RejectPurchase(ctx context.Context, id string) (model.Purchase, error) {
	return r.setStatus(ctx, id, model.StatusRejected)
}

// setStatus resolves the current record and leaves terminal records untouched. A terminal local
// copy wins over the remote one and is pushed to a lagging remote row. Otherwise the remote copy
// is preferred when reachable; the remote is updated if reachable and the local copy always.
func (r *Reconciler) setStatus(ctx context.Context, id string, status model.PurchaseStatus) (model.Purchase, error) {
	local := r.LocalPurchases(ctx)
	var current *model.Purchase
	for i := range local {
		if local[i].ID == id {
			cp := local[i]
			current = &cp
			break
		}
	}

	remotes, reachable := r.fetchRemote(ctx, "set_status")
	if current != nil && current.Status.Terminal() {
		// A terminal local copy is final; a remote row still pending only lags behind it.
		for _, rp := range remotes {
			if rp.ID == id && !rp.Status.Terminal() {
				r.pushStatus(ctx, *current)
			}
		}
		return *current, nil
	}
	for i := range remotes {
		if remotes[i].ID == id {
			cp := remotes[i]
			current = &cp
			break
		}
	}
	if current == nil {
		return model.Purchase{}, fmt.Errorf("purchase %s: %w", id, errs.ErrNotFound)
	}

	if current.Status.Terminal() {
		if err := r.syncLocal(ctx, *current); err != nil {
			return model.Purchase{}, err
		}
		return *current, nil
	}

	updated := *current
	updated.Status = status
	now := r.now()
	if status == model.StatusApproved {
		updated.ApprovedAt = &now
	}

	if reachable {
		r.pushStatus(ctx, updated)
	}

	if err := r.putLocal(ctx, updated); err != nil {
		return model.Purchase{}, err
	}
	r.m.Purchase(string(status))
	return updated, nil
}

// pushStatus moves the remote row of p to p's status. Failures are logged and swallowed.
func (r *Reconciler) pushStatus(ctx context.Context, p model.Purchase) {
	at := r.now()
	if p.ApprovedAt != nil {
		at = *p.ApprovedAt
	}
	err := r.guard.Do(ctx, func(ctx context.Context, rm remote.Remote) error {
		return rm.UpdatePurchaseStatus(ctx, p.ID, p.Status, at)
	})
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrNotFound):
		r.log.Debug("purchase not pending remotely", zap.String("purchase_id", p.ID))
	default:
		r.m.RemoteError("update_status")
		r.log.Warn("remote status update failed", zap.String("purchase_id", p.ID), zap.Error(err))
	}
}

// syncLocal overwrites a stale local copy with p when their statuses differ.
func (r *Reconciler) syncLocal(ctx context.Context, p model.Purchase) error {
	for _, l := range r.LocalPurchases(ctx) {
		if l.ID == p.ID && l.Status == p.Status {
			return nil
		}
	}
	return r.putLocal(ctx, p)
}
