// Package model defines domain entities used by services, stores and the remote data service.
package model

import (
	"strings"
	"time"
)

// PurchaseStatus is the manual-payment approval state of a purchase.
type PurchaseStatus string

// Purchase statuses. Pending moves to exactly one of the terminal states.
const (
	StatusPending  PurchaseStatus = "pending"
	StatusApproved PurchaseStatus = "approved"
	StatusRejected PurchaseStatus = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s PurchaseStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is one of the known statuses.
func (s PurchaseStatus) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Course is a catalog entry. Prices are in the smallest currency unit. DriveURL is never
// serialized; it is handed out only to users entitled to the course.
type Course struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Slug        string `json:"slug" yaml:"slug"`
	Description string `json:"description" yaml:"description"`
	Price       int64  `json:"price" yaml:"price"`
	ImageURL    string `json:"image_url,omitempty" yaml:"image_url"`
	Category    string `json:"category" yaml:"category"`
	Level       string `json:"level" yaml:"level"`
	Duration    string `json:"duration" yaml:"duration"`
	DriveURL    string `json:"-" yaml:"drive_url"`
	Free        bool   `json:"free" yaml:"-"` // derived: Price == 0
}

// Purchase is one course line-item bought by one user.
type Purchase struct {
	ID          string         `json:"id"`
	UserEmail   string         `json:"user_email"`
	UserName    string         `json:"user_name"`
	UserPhone   string         `json:"user_phone"`
	CourseID    string         `json:"course_id"`
	CourseTitle string         `json:"course_title"`
	CoursePrice int64          `json:"course_price"`
	AmountPaid  int64          `json:"amount_paid"`
	CouponUsed  string         `json:"coupon_used,omitempty"`
	Status      PurchaseStatus `json:"payment_status"`
	CreatedAt   time.Time      `json:"created_at"`
	ApprovedAt  *time.Time     `json:"approved_at,omitempty"`
}

// BuyerDetails are the checkout form fields.
type BuyerDetails struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,contains=@"`
	Phone    string `json:"phone" validate:"required"`
}

// Account is a credential record stored under library_users.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username,omitempty"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

// RegisteredUser is an admin-facing roster row stored under registered_users_list.
type RegisteredUser struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	Username     string    `json:"username,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	HasPurchased bool      `json:"has_purchased"`
	LastActive   time.Time `json:"last_active"`
}

// Tracked activity actions.
const (
	ActionPageVisit    = "page_visit"
	ActionViewCourse   = "view_course"
	ActionAddToCart    = "add_to_cart"
	ActionSignup       = "signup"
	ActionSignin       = "signin"
	ActionSignout      = "signout"
	ActionAccessCourse = "access_course"
)

// AnonymousEmail is recorded for activity without a signed-in user.
const AnonymousEmail = "anonymous"

// ActivityEvent is an entry of the capped activity log.
type ActivityEvent struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"user_email"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
	Page      string    `json:"page"`
}

// RequiredReferrals is the number of distinct referred signups that unlock a free course.
const RequiredReferrals = 5

// ReferredUser is one signup attributed to a referral code.
type ReferredUser struct {
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	SignedUpAt time.Time `json:"signedUpAt"`
}

// ReferralState tracks referrals for one (user, free course) pair.
type ReferralState struct {
	ReferralCode  string         `json:"referralCode"`
	UserEmail     string         `json:"userEmail"`
	CourseID      string         `json:"courseId"`
	ReferredUsers []ReferredUser `json:"referredUsers"`
	Unlocked      bool           `json:"unlocked"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Count returns the number of referred users.
func (r ReferralState) Count() int { return len(r.ReferredUsers) }

// Remaining returns how many referrals are still needed to unlock.
func (r ReferralState) Remaining() int {
	return max(0, RequiredReferrals-len(r.ReferredUsers))
}

// HasReferred reports whether email (case-insensitive) already signed up with this code.
func (r ReferralState) HasReferred(email string) bool {
	for _, u := range r.ReferredUsers {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}

// TaskType groups engagement tasks; only daily tasks reset each day.
type TaskType string

// Task types.
const (
	TaskDaily     TaskType = "daily"
	TaskMilestone TaskType = "milestone"
	TaskSocial    TaskType = "social"
	TaskLearning  TaskType = "learning"
)

// Task is an engagement task definition plus its completion flag.
type Task struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        TaskType `json:"type"`
	XPReward    int      `json:"xpReward"`
	Completed   bool     `json:"completed"`
}

// EngagementState is per-user gamification bookkeeping.
type EngagementState struct {
	Tasks     []Task `json:"tasks"`
	Streak    int    `json:"streak"`
	TotalXP   int    `json:"totalXP"`
	LastVisit string `json:"lastVisit"` // local calendar date, 2006-01-02
}

// Level is one plus every full hundred XP.
func (e EngagementState) Level() int { return e.TotalXP/100 + 1 }

// XPToNext is the XP still missing for the next level.
func (e EngagementState) XPToNext() int { return 100 - e.TotalXP%100 }

// CompletedCount returns the number of completed tasks.
func (e EngagementState) CompletedCount() int {
	n := 0
	for _, t := range e.Tasks {
		if t.Completed {
			n++
		}
	}
	return n
}

// CartItem is a course in a shopping cart; unique by course id.
type CartItem struct {
	ID       string    `json:"id"`
	Course   Course    `json:"course"`
	Quantity int       `json:"quantity"`
	AddedAt  time.Time `json:"added_at"`
}

// LibraryEntry is a derived view of a buyer's purchase of one course.
type LibraryEntry struct {
	ID          string         `json:"id"`
	PurchaseID  string         `json:"purchase_id"`
	UserEmail   string         `json:"user_email"`
	UserName    string         `json:"user_name"`
	CourseID    string         `json:"course_id"`
	CourseTitle string         `json:"course_title"`
	AmountPaid  int64          `json:"amount_paid"`
	ApprovedAt  time.Time      `json:"approved_at"`
	Status      PurchaseStatus `json:"status"`
	HasAccess   bool           `json:"has_access"`
}

// Tokens collects an issued session token.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Session is the signed-in library user as seen by callers.
type Session struct {
	Email    string    `json:"email"`
	FullName string    `json:"full_name"`
	Username string    `json:"username,omitempty"`
	Token    string    `json:"token,omitempty"`
	Expires  time.Time `json:"expires_at,omitempty"`
}

// NormalizeEmail lowercases and trims an email for identity comparisons.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
