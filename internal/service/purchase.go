package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

// PurchaseService defines checkout, approval and library operations.
type PurchaseService interface {
	// Quote prices courses with an optional coupon without changing any state.
	Quote(courses []model.Course, coupon string) (Quote, error)
	// Checkout creates one pending purchase per course for the buyer.
	Checkout(ctx context.Context, courses []model.Course, buyer model.BuyerDetails, coupon string) ([]model.Purchase, error)
	// Approve moves a pending purchase to approved; terminal purchases are returned unchanged.
	Approve(ctx context.Context, id string) (model.Purchase, error)
	// Reject moves a pending purchase to rejected; terminal purchases are returned unchanged.
	Reject(ctx context.Context, id string) (model.Purchase, error)
	// List returns the reconciled purchases filtered by search term and status.
	List(ctx context.Context, search string, status model.PurchaseStatus) []model.Purchase
	// Library returns the buyer's de-duplicated library entries.
	Library(ctx context.Context, email, search string) []model.LibraryEntry
	// Stats summarizes purchases and the roster for the admin dashboard.
	Stats(ctx context.Context) (Stats, error)
}

// Stats is the admin dashboard summary.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Approved        int   `json:"approved"`
	Rejected        int   `json:"rejected"`
	Revenue         int64 `json:"total_revenue"`
	RegisteredCount int   `json:"registered_count"`
	NonBuyers       int   `json:"non_buyers"`
}

type PurchaseServiceImpl struct {
	rec      *Reconciler
	st       *store.Store
	roster   *Roster
	validate *validator.Validate
	log      *zap.Logger
	m        *metrics.Metrics
	now      func() time.Time
}

// NewPurchaseService constructs PurchaseService.
func NewPurchaseService(rec *Reconciler, st *store.Store, roster *Roster, log *zap.Logger, m *metrics.Metrics) *PurchaseServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &PurchaseServiceImpl{
		rec:      rec,
		st:       st,
		roster:   roster,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		m:        m,
		now:      time.Now,
	}
}

// Quote prices courses with an optional coupon.
func (s *PurchaseServiceImpl) Quote(courses []model.Course, coupon string) (Quote, error) {
	return QuoteFor(courses, coupon)
}

func (s *PurchaseServiceImpl) validateBuyer(b model.BuyerDetails) (model.BuyerDetails, error) {
	b.FullName = strings.TrimSpace(b.FullName)
	b.Email = strings.TrimSpace(b.Email)
	b.Phone = strings.TrimSpace(b.Phone)

	err := s.validate.Struct(b)
	if err == nil {
		return b, nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return b, err
	}
	for _, fe := range ve {
		if fe.Tag() == "required" {
			return b, errs.Invalid(strings.ToLower(fe.Field()), "Please fill in all your details")
		}
	}
	return b, errs.Invalid("email", "Invalid user email. Please sign in again.")
}

// Checkout validates the buyer and coupon, splits the discounted total across courses and
// creates one pending purchase per course. Purchases are also remembered in recent_purchases
// once per (course, email).
func (s *PurchaseServiceImpl) Checkout(ctx context.Context, courses []model.Course, buyer model.BuyerDetails, coupon string) ([]model.Purchase, error) {
	if len(courses) == 0 {
		return nil, errs.Invalid("courses", "Your cart is empty")
	}
	buyer, err := s.validateBuyer(buyer)
	if err != nil {
		return nil, err
	}
	q, err := QuoteFor(courses, coupon)
	if err != nil {
		return nil, err
	}
	amounts := q.SplitAmounts()

	created := make([]model.Purchase, 0, len(courses))
	for i, c := range courses {
		now := s.now()
		p := model.Purchase{
			ID:          newPurchaseID(now, c.ID),
			UserEmail:   buyer.Email,
			UserName:    buyer.FullName,
			UserPhone:   buyer.Phone,
			CourseID:    c.ID,
			CourseTitle: c.Title,
			CoursePrice: c.Price,
			AmountPaid:  amounts[i],
			CouponUsed:  q.Coupon,
			Status:      model.StatusPending,
			CreatedAt:   now,
		}
		if err := s.rec.UpsertPurchase(ctx, p); err != nil {
			return created, err
		}
		if err := s.rememberRecent(ctx, p); err != nil {
			return created, err
		}
		s.m.Purchase(string(model.StatusPending))
		created = append(created, p)
	}

	if _, err := s.roster.Refresh(ctx); err != nil {
		s.log.Error("roster refresh after checkout", zap.Error(err))
	}
	return created, nil
}

func (s *PurchaseServiceImpl) rememberRecent(ctx context.Context, p model.Purchase) error {
	recent := store.ReadAll[model.Purchase](ctx, s.st, store.KeyRecentPurchases)
	for _, r := range recent {
		if r.CourseID == p.CourseID && strings.EqualFold(r.UserEmail, p.UserEmail) {
			return nil
		}
	}
	if err := store.WriteAll(ctx, s.st, store.KeyRecentPurchases, append(recent, p)); err != nil {
		return fmt.Errorf("remember purchase %s: %w", p.ID, err)
	}
	return nil
}

// Approve moves a pending purchase to approved.
func (s *PurchaseServiceImpl) Approve(ctx context.Context, id string) (model.Purchase, error) {
	return s.rec.ApprovePurchase(ctx, id)
}

// Reject moves a pending purchase to rejected.
func (s *PurchaseServiceImpl) Reject(ctx context.Context, id string) (model.Purchase, error) {
	return s.rec.RejectPurchase(ctx, id)
}

// List returns reconciled purchases filtered by FilterPurchases.
func (s *PurchaseServiceImpl) List(ctx context.Context, search string, status model.PurchaseStatus) []model.Purchase {
	return FilterPurchases(s.rec.ListPurchases(ctx), search, status)
}

// FilterPurchases keeps purchases whose buyer name, email or course title contains search
// (case-insensitive) and whose status equals status. An empty status or "all" matches any.
func FilterPurchases(purchases []model.Purchase, search string, status model.PurchaseStatus) []model.Purchase {
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]model.Purchase, 0, len(purchases))
	for _, p := range purchases {
		if status != "" && status != "all" && p.Status != status {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(p.UserName), term) &&
			!strings.Contains(strings.ToLower(p.UserEmail), term) &&
			!strings.Contains(strings.ToLower(p.CourseTitle), term) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Library collects every purchase of email from the reconciled list and recent_purchases,
// keeps one entry per course and filters titles by search.
func (s *PurchaseServiceImpl) Library(ctx context.Context, email, search string) []model.LibraryEntry {
	all := append(s.rec.ListPurchases(ctx), store.ReadAll[model.Purchase](ctx, s.st, store.KeyRecentPurchases)...)
	entries := LibraryEntries(all, email)
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return entries
	}
	out := make([]model.LibraryEntry, 0, len(entries))
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.CourseTitle), term) {
			out = append(out, e)
		}
	}
	return out
}

// LibraryEntries derives the library of email: purchases are matched case-insensitively and
// de-duplicated by (course, email); approved beats any other status, otherwise the more
// recently approved or created entry wins.
func LibraryEntries(purchases []model.Purchase, email string) []model.LibraryEntry {
	want := model.NormalizeEmail(email)
	entries := make([]model.LibraryEntry, 0)
	for _, p := range purchases {
		if model.NormalizeEmail(p.UserEmail) != want {
			continue
		}
		entries = append(entries, toLibraryEntry(p))
	}
	return Merge(entries, libraryKey, betterLibraryEntry)
}

type libraryEntryKey struct{ courseID, email string }

func libraryKey(e model.LibraryEntry) libraryEntryKey {
	return libraryEntryKey{courseID: e.CourseID, email: model.NormalizeEmail(e.UserEmail)}
}

func betterLibraryEntry(candidate, current model.LibraryEntry) bool {
	ca, cu := candidate.Status == model.StatusApproved, current.Status == model.StatusApproved
	if ca != cu {
		return ca
	}
	return candidate.ApprovedAt.After(current.ApprovedAt)
}

func toLibraryEntry(p model.Purchase) model.LibraryEntry {
	at := p.CreatedAt
	if p.ApprovedAt != nil {
		at = *p.ApprovedAt
	}
	status := p.Status
	if status == "" {
		status = model.StatusPending
	}
	return model.LibraryEntry{
		ID:          "approved_" + p.ID,
		PurchaseID:  p.ID,
		UserEmail:   p.UserEmail,
		UserName:    p.UserName,
		CourseID:    p.CourseID,
		CourseTitle: p.CourseTitle,
		AmountPaid:  p.AmountPaid,
		ApprovedAt:  at,
		Status:      status,
		HasAccess:   status == model.StatusApproved,
	}
}

// Stats summarizes reconciled purchases and the roster.
func (s *PurchaseServiceImpl) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, p := range s.rec.ListPurchases(ctx) {
		st.Total++
		switch p.Status {
		case model.StatusPending:
			st.Pending++
		case model.StatusApproved:
			st.Approved++
			if p.AmountPaid != 0 {
				st.Revenue += p.AmountPaid
			} else {
				st.Revenue += p.CoursePrice
			}
		case model.StatusRejected:
			st.Rejected++
		}
	}
	users, err := s.roster.Refresh(ctx)
	st.RegisteredCount = len(users)
	for _, u := range users {
		if !u.HasPurchased {
			st.NonBuyers++
		}
	}
	return st, err
}
