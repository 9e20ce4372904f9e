package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

// CartService defines per-owner carts and the checkout hand-off across sign-in.
type CartService interface {
	// Add puts a course in the owner's cart; a course already present is left as is.
	Add(ctx context.Context, owner string, course model.Course) ([]model.CartItem, error)
	// Remove drops a course from the cart.
	Remove(ctx context.Context, owner, courseID string) ([]model.CartItem, error)
	// Clear empties the cart.
	Clear(ctx context.Context, owner string) error
	// Items lists the cart in insertion order.
	Items(ctx context.Context, owner string) []model.CartItem
	// Total sums the cart prices.
	Total(ctx context.Context, owner string) int64
	// StashCourse remembers a single course the visitor will buy after sign-in.
	StashCourse(ctx context.Context, visitor string, course model.Course) error
	// StashCart remembers a list of courses the visitor will buy after sign-in.
	StashCart(ctx context.Context, visitor string, courses []model.Course) error
	// ResumePending returns and clears the visitor's stashed purchase; a single course wins over
	// a cart.
	ResumePending(ctx context.Context, visitor string) ([]model.Course, bool, error)
}

type CartServiceImpl struct {
	st       *store.Store
	activity *ActivityLog
	log      *zap.Logger
	now      func() time.Time
}

// NewCartService constructs CartService.
func NewCartService(st *store.Store, activity *ActivityLog, log *zap.Logger) *CartServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartServiceImpl{st: st, activity: activity, log: log, now: time.Now}
}

func cartKey(owner string) (string, error) {
	if strings.TrimSpace(owner) == "" {
		return "", errs.Invalid("owner", "cart owner is required")
	}
	return store.CartKey(owner), nil
}

// Add appends course with quantity 1 unless it is already in the cart.
func (s *CartServiceImpl) Add(ctx context.Context, owner string, course model.Course) ([]model.CartItem, error) {
	key, err := cartKey(owner)
	if err != nil {
		return nil, err
	}
	items := store.ReadAll[model.CartItem](ctx, s.st, key)
	for _, it := range items {
		if it.Course.ID == course.ID {
			return items, nil
		}
	}
	items = append(items, model.CartItem{ID: course.ID, Course: course, Quantity: 1, AddedAt: s.now()})
	if err := store.WriteAll(ctx, s.st, key, items); err != nil {
		return nil, err
	}
	email := owner
	if !strings.Contains(owner, "@") {
		email = ""
	}
	s.activity.Track(ctx, email, model.ActionAddToCart,
		fmt.Sprintf("Added: %s (₹%d)", course.Title, course.Price), "cart")
	return items, nil
}

// Remove drops courseID; removing an absent course is not an error.
func (s *CartServiceImpl) Remove(ctx context.Context, owner, courseID string) ([]model.CartItem, error) {
	key, err := cartKey(owner)
	if err != nil {
		return nil, err
	}
	items := store.ReadAll[model.CartItem](ctx, s.st, key)
	out := items[:0]
	for _, it := range items {
		if it.Course.ID != courseID {
			out = append(out, it)
		}
	}
	if len(out) == len(items) {
		return out, nil
	}
	if err := store.WriteAll(ctx, s.st, key, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Clear removes the cart key.
func (s *CartServiceImpl) Clear(ctx context.Context, owner string) error {
	key, err := cartKey(owner)
	if err != nil {
		return err
	}
	return s.st.Remove(ctx, key)
}

// Items lists the owner's cart.
func (s *CartServiceImpl) Items(ctx context.Context, owner string) []model.CartItem {
	key, err := cartKey(owner)
	if err != nil {
		return []model.CartItem{}
	}
	return store.ReadAll[model.CartItem](ctx, s.st, key)
}

// Total sums price times quantity.
func (s *CartServiceImpl) Total(ctx context.Context, owner string) int64 {
	var total int64
	for _, it := range s.Items(ctx, owner) {
		total += it.Course.Price * int64(max(it.Quantity, 1))
	}
	return total
}

// StashCourse writes the visitor's pending course.
func (s *CartServiceImpl) StashCourse(ctx context.Context, visitor string, course model.Course) error {
	if err := checkVisitor(visitor); err != nil {
		return err
	}
	return store.WriteOne(ctx, s.st, store.PendingCourseKey(visitor), course)
}

// StashCart writes the visitor's pending cart.
func (s *CartServiceImpl) StashCart(ctx context.Context, visitor string, courses []model.Course) error {
	if err := checkVisitor(visitor); err != nil {
		return err
	}
	if len(courses) == 0 {
		return errs.Invalid("courses", "Your cart is empty")
	}
	return store.WriteAll(ctx, s.st, store.PendingCartKey(visitor), courses)
}

// ResumePending pops the visitor's stashed course, or else the stashed cart. Only the returned
// stash is cleared. An unknown visitor has nothing pending.
func (s *CartServiceImpl) ResumePending(ctx context.Context, visitor string) ([]model.Course, bool, error) {
	if checkVisitor(visitor) != nil {
		return nil, false, nil
	}
	courseKey, cartKey := store.PendingCourseKey(visitor), store.PendingCartKey(visitor)
	if c, ok := store.ReadOne[model.Course](ctx, s.st, courseKey); ok && c.ID != "" {
		return []model.Course{c}, true, s.st.Remove(ctx, courseKey)
	}
	courses := store.ReadAll[model.Course](ctx, s.st, cartKey)
	if len(courses) == 0 {
		return nil, false, nil
	}
	return courses, true, s.st.Remove(ctx, cartKey)
}
