// Package store implements the Record Store: named collections kept as whole JSON snapshots
// under flat string keys of a pluggable storage medium.
//
// Every write replaces a full collection value. There is no merge inside WriteAll and no
// isolation between a read and the following write: callers merge first, and two overlapping
// read-modify-write cycles resolve as last writer wins.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/errs"
	"github.com/and161185/course-keeper/internal/model"
)

// Medium is a flat string key/value storage backend.
type Medium interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set replaces the value for key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key; deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Collection and flag keys.
const (
	KeyAdminPurchases     = "admin_purchases"
	KeyRecentPurchases    = "recent_purchases"
	KeyRegisteredUsers    = "registered_users_list"
	KeyLibraryUsers       = "library_users"
	KeyActivities         = "user_activities"
	KeySessionEmail       = "library_user_email"
	KeyRememberMe         = "library_remember_me"
	KeySigninAttempts     = "signin_attempts"
	ReferralKeyPrefix     = "referral_"
	engagementKeyPrefix   = "engagement_"
	cartKeyPrefix         = "cart_"
	pendingReferralPrefix = "pending_referral_code_"
	pendingCoursePrefix   = "pending_course_purchase_"
	pendingCartPrefix     = "pending_cart_purchase_"
)

// ReferralKey is the key of the referral state for (courseID, email).
func ReferralKey(courseID, email string) string {
	return ReferralKeyPrefix + courseID + "_" + model.NormalizeEmail(email)
}

// EngagementKey is the key of a user's engagement state.
func EngagementKey(email string) string {
	return engagementKeyPrefix + model.NormalizeEmail(email)
}

// CartKey is the key of the cart owned by owner (an email or an anonymous session id).
func CartKey(owner string) string {
	return cartKeyPrefix + strings.ToLower(strings.TrimSpace(owner))
}

// PendingReferralKey holds a referral code the visitor saw before signing up.
func PendingReferralKey(visitor string) string { return pendingReferralPrefix + visitorPart(visitor) }

// PendingCourseKey holds a single course the visitor chose to buy before signing in.
func PendingCourseKey(visitor string) string { return pendingCoursePrefix + visitorPart(visitor) }

// PendingCartKey holds the cart the visitor chose to buy before signing in.
func PendingCartKey(visitor string) string { return pendingCartPrefix + visitorPart(visitor) }

func visitorPart(visitor string) string { return strings.TrimSpace(visitor) }

// Store is the typed access point over a Medium.
type Store struct {
	medium Medium
	log    *zap.Logger
}

// New constructs a Store. A nil logger is replaced with a no-op logger.
func New(m Medium, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{medium: m, log: log}
}

// ReadAll returns the collection stored under key. It never fails: an absent key, a medium
// error or unparsable content all yield an empty slice.
func ReadAll[T any](ctx context.Context, s *Store, key string) []T {
	raw, ok, err := s.medium.Get(ctx, key)
	if err != nil {
		s.log.Warn("store read", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return []T{}
	}
	var out []T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn("store parse", zap.String("key", key), zap.Error(err))
		return []T{}
	}
	if out == nil {
		out = []T{}
	}
	return out
}

// WriteAll replaces the collection stored under key with records.
func WriteAll[T any](ctx context.Context, s *Store, key string, records []T) error {
	if records == nil {
		records = []T{}
	}
	return s.put(ctx, key, records)
}

// Append reads the collection, appends rec, trims the oldest entries so that at most limit
// remain (limit <= 0 disables trimming) and writes it back. The resulting slice is returned
// even when the write fails.
func Append[T any](ctx context.Context, s *Store, key string, rec T, limit int) ([]T, error) {
	records := append(ReadAll[T](ctx, s, key), rec)
	if limit > 0 && len(records) > limit {
		records = append([]T(nil), records[len(records)-limit:]...)
	}
	return records, WriteAll(ctx, s, key, records)
}

// ReadOne loads a single-record key. ok is false when absent or unparsable.
func ReadOne[T any](ctx context.Context, s *Store, key string) (T, bool) {
	var zero T
	raw, ok, err := s.medium.Get(ctx, key)
	if err != nil {
		s.log.Warn("store read", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return zero, false
	}
	var out T
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		s.log.Warn("store parse", zap.String("key", key), zap.Error(err))
		return zero, false
	}
	return out, true
}

// WriteOne stores a single record under key.
func WriteOne[T any](ctx context.Context, s *Store, key string, rec T) error {
	return s.put(ctx, key, rec)
}

// Remove deletes key.
func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.medium.Delete(ctx, key); err != nil {
		s.log.Error("store delete", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("delete %s: %w: %w", key, errs.ErrStorage, err)
	}
	return nil
}

// Keys lists keys with prefix; medium failures yield an empty list.
func (s *Store) Keys(ctx context.Context, prefix string) []string {
	keys, err := s.medium.Keys(ctx, prefix)
	if err != nil {
		s.log.Warn("store keys", zap.String("prefix", prefix), zap.Error(err))
		return nil
	}
	return keys
}

// Flag returns the raw string stored under key, or "".
func (s *Store) Flag(ctx context.Context, key string) string {
	v, ok, err := s.medium.Get(ctx, key)
	if err != nil || !ok {
		return ""
	}
	return v
}

// SetFlag stores a raw string under key.
func (s *Store) SetFlag(ctx context.Context, key, value string) error {
	if err := s.medium.Set(ctx, key, value); err != nil {
		s.log.Error("store write", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("write %s: %w: %w", key, errs.ErrStorage, err)
	}
	return nil
}

func (s *Store) put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.medium.Set(ctx, key, string(b)); err != nil {
		s.log.Error("store write", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("write %s: %w: %w", key, errs.ErrStorage, err)
	}
	return nil
}
