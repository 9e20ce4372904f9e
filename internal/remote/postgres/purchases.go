package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

const purchaseCols = `id, user_email, user_name, user_phone, course_id, course_title, course_price, amount_paid, coupon_used, payment_status, created_at, approved_at`

// ListPurchases returns every purchase ordered by creation time, newest first.
func (db *DB) ListPurchases(ctx context.Context) ([]model.Purchase, error) {
	q := `SELECT ` + purchaseCols + ` FROM purchases ORDER BY created_at DESC`
	rows, err := db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Purchase, 0)
	for rows.Next() {
		var (
			p      model.Purchase
			coupon *string
			status string
		)
		if err := rows.Scan(&p.ID, &p.UserEmail, &p.UserName, &p.UserPhone, &p.CourseID, &p.CourseTitle,
			&p.CoursePrice, &p.AmountPaid, &coupon, &status, &p.CreatedAt, &p.ApprovedAt); err != nil {
			return nil, err
		}
		if coupon != nil {
			p.CouponUsed = *coupon
		}
		p.Status = model.PurchaseStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

// InsertPurchase inserts p keeping its id.
func (db *DB) InsertPurchase(ctx context.Context, p model.Purchase) error {
	q := `INSERT INTO purchases (` + purchaseCols + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	var coupon *string
	if p.CouponUsed != "" {
		coupon = &p.CouponUsed
	}
	_, err := db.Pool.Exec(ctx, q, p.ID, p.UserEmail, p.UserName, p.UserPhone, p.CourseID, p.CourseTitle,
		p.CoursePrice, p.AmountPaid, coupon, string(p.Status), p.CreatedAt, p.ApprovedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("purchase %s: %w", p.ID, errs.ErrAlreadyExists)
	}
	return err
}

// UpdatePurchaseStatus moves a pending purchase to status. approved_at is set only for approvals.
// It returns errs.ErrNotFound when no pending row with id exists.
func (db *DB) UpdatePurchaseStatus(ctx context.Context, id string, status model.PurchaseStatus, at time.Time) error {
	const q = `
UPDATE purchases
SET payment_status = $2, approved_at = $3
WHERE id = $1 AND payment_status = 'pending'`
	var approvedAt *time.Time
	if status == model.StatusApproved {
		approvedAt = &at
	}
	tag, err := db.Pool.Exec(ctx, q, id, string(status), approvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
