package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

// ReferralService defines the free-course referral unlock operations.
type ReferralService interface {
	// Code returns the deterministic referral code of (email, courseID).
	Code(email, courseID string) string
	// Ensure returns the referral state of (email, course), creating it for free courses.
	Ensure(ctx context.Context, email string, course model.Course) (model.ReferralState, error)
	// Get loads an existing referral state.
	Get(ctx context.Context, email, courseID string) (model.ReferralState, error)
	// RecordSignup attributes a new signup to the state owning code. It reports whether a
	// referral was recorded; unknown codes, repeats and self-referrals are no-ops.
	RecordSignup(ctx context.Context, code, email, name string) (bool, error)
}

type ReferralServiceImpl struct {
	st  *store.Store
	log *zap.Logger
	m   *metrics.Metrics
	now func() time.Time
}

// NewReferralService constructs ReferralService.
func NewReferralService(st *store.Store, log *zap.Logger, m *metrics.Metrics) *ReferralServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReferralServiceImpl{st: st, log: log, m: m, now: time.Now}
}

// ReferralCode is "REF" followed by up to 8 upper-case base-36 digits of a 32-bit string hash
// of "<email>_<courseId>_ref". The hash runs over UTF-16 code units with h = h*31 + c.
func ReferralCode(email, courseID string) string {
	src := model.NormalizeEmail(email) + "_" + courseID + "_ref"
	var h int32
	for _, c := range utf16.Encode([]rune(src)) {
		h = h*31 + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	digits := strings.ToUpper(strconv.FormatInt(abs, 36))
	if len(digits) > 8 {
		digits = digits[:8]
	}
	return "REF" + digits
}

// Code returns ReferralCode(email, courseID).
func (s *ReferralServiceImpl) Code(email, courseID string) string {
	return ReferralCode(email, courseID)
}

// Ensure lazily creates the referral state of a free course.
func (s *ReferralServiceImpl) Ensure(ctx context.Context, email string, course model.Course) (model.ReferralState, error) {
	if !course.Free {
		return model.ReferralState{}, errs.Invalid("course", "Referral unlock is only available for free courses")
	}
	key := store.ReferralKey(course.ID, email)
	if st, ok := store.ReadOne[model.ReferralState](ctx, s.st, key); ok {
		return st, nil
	}
	st := model.ReferralState{
		ReferralCode:  ReferralCode(email, course.ID),
		UserEmail:     model.NormalizeEmail(email),
		CourseID:      course.ID,
		ReferredUsers: []model.ReferredUser{},
		CreatedAt:     s.now(),
	}
	if err := store.WriteOne(ctx, s.st, key, st); err != nil {
		return st, fmt.Errorf("create referral state: %w", err)
	}
	return st, nil
}

// Get loads the referral state of (email, courseID) or errs.ErrNotFound.
func (s *ReferralServiceImpl) Get(ctx context.Context, email, courseID string) (model.ReferralState, error) {
	st, ok := store.ReadOne[model.ReferralState](ctx, s.st, store.ReferralKey(courseID, email))
	if !ok {
		return model.ReferralState{}, fmt.Errorf("referral %s/%s: %w", courseID, email, errs.ErrNotFound)
	}
	return st, nil
}

// RecordSignup scans every referral state for code, appends the signup once per email and
// latches unlocked when the required count is reached. The first matching state is the only
// one considered.
func (s *ReferralServiceImpl) RecordSignup(ctx context.Context, code, email, name string) (bool, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return false, nil
	}
	for _, key := range s.st.Keys(ctx, store.ReferralKeyPrefix) {
		st, ok := store.ReadOne[model.ReferralState](ctx, s.st, key)
		if !ok || st.ReferralCode != code {
			continue
		}
		if strings.EqualFold(st.UserEmail, strings.TrimSpace(email)) {
			s.log.Info("self-referral ignored", zap.String("code", code))
			return false, nil
		}
		if st.HasReferred(email) {
			return false, nil
		}
		st.ReferredUsers = append(st.ReferredUsers, model.ReferredUser{
			Email:      model.NormalizeEmail(email),
			Name:       strings.TrimSpace(name),
			SignedUpAt: s.now(),
		})
		if st.Count() >= model.RequiredReferrals && !st.Unlocked {
			st.Unlocked = true
			s.m.ReferralUnlock()
		}
		if err := store.WriteOne(ctx, s.st, key, st); err != nil {
			return false, fmt.Errorf("record referral: %w", err)
		}
		return true, nil
	}
	return false, nil
}
