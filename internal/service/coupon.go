package service

import (
	"fmt"
	"math"
	"strings"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

// Coupon codes and their discount percentages.
var coupons = map[string]int{
	"GET20":  20,
	"FREE20": 20,
	"SAVE30": 30,
}

// NormalizeCoupon trims and upper-cases a coupon code.
func NormalizeCoupon(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CouponPercent looks a code up in the discount table.
func CouponPercent(code string) (int, bool) {
	pct, ok := coupons[NormalizeCoupon(code)]
	return pct, ok
}

// Quote is the priced view of a checkout.
type Quote struct {
	Courses         []model.Course `json:"courses"`
	OriginalTotal   int64          `json:"original_total"`
	Coupon          string         `json:"coupon,omitempty"`
	DiscountPercent int            `json:"discount_percent"`
	DiscountAmount  int64          `json:"discount_amount"`
	FinalTotal      int64          `json:"final_total"`
}

// QuoteFor prices courses with an optional coupon. An unknown non-empty code is rejected with
// a user-visible error.
func QuoteFor(courses []model.Course, code string) (Quote, error) {
	q := Quote{Courses: courses}
	for _, c := range courses {
		q.OriginalTotal += c.Price
	}
	q.FinalTotal = q.OriginalTotal

	code = NormalizeCoupon(code)
	if code == "" {
		return q, nil
	}
	pct, ok := coupons[code]
	if !ok {
		return Quote{}, &errs.ValidationError{
			Field:   "coupon",
			Message: "Invalid coupon code",
			Err:     fmt.Errorf("%q: %w", code, errs.ErrInvalidCoupon),
		}
	}
	q.Coupon = code
	q.DiscountPercent = pct
	q.FinalTotal = applyDiscount(q.OriginalTotal, pct)
	q.DiscountAmount = q.OriginalTotal - q.FinalTotal
	return q, nil
}

func applyDiscount(total int64, pct int) int64 {
	return int64(math.Round(float64(total) - float64(total)*float64(pct)/100))
}

// SplitAmounts returns the amount paid per course. A single course pays the final total;
// several courses share it in proportion to their prices, rounded per item.
func (q Quote) SplitAmounts() []int64 {
	out := make([]int64, len(q.Courses))
	if len(q.Courses) == 1 {
		out[0] = q.FinalTotal
		return out
	}
	if q.OriginalTotal == 0 {
		return out
	}
	for i, c := range q.Courses {
		out[i] = int64(math.Round(float64(c.Price) / float64(q.OriginalTotal) * float64(q.FinalTotal)))
	}
	return out
}
