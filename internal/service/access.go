package service

import (
	"context"

	"github.com/and161185/course-keeper/internal/model"
)

// CanAccess reports whether email may open course: a paid course needs an approved purchase,
// a free course needs an unlocked referral state.
func CanAccess(ctx context.Context, purchases PurchaseService, refs ReferralService, email string, c model.Course) bool {
	if c.Free {
		st, err := refs.Get(ctx, email, c.ID)
		return err == nil && st.Unlocked
	}
	for _, e := range purchases.Library(ctx, email, "") {
		if e.CourseID == c.ID && e.HasAccess {
			return true
		}
	}
	return false
}
