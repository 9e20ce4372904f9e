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

const dayLayout = "2006-01-02"

// CheckInTaskID is the daily task completed by every visit.
const CheckInTaskID = "t1"

var defaultTasks = []model.Task{
	{ID: "t1", Title: "Daily Check-in", Description: "Visit the platform today", Type: model.TaskDaily, XPReward: 10},
	{ID: "t2", Title: "Explore a Course", Description: "View details of any course", Type: model.TaskLearning, XPReward: 15},
	{ID: "t3", Title: "Share Knowledge", Description: "Share a course with a friend", Type: model.TaskSocial, XPReward: 25},
	{ID: "t4", Title: "Complete Profile", Description: "Set up your username and details", Type: model.TaskMilestone, XPReward: 50},
	{ID: "t5", Title: "Wishlist a Course", Description: "Add a course to your wishlist", Type: model.TaskLearning, XPReward: 10},
	{ID: "t6", Title: "Read Reviews", Description: "Read student reviews on any course", Type: model.TaskLearning, XPReward: 10},
}

var quotes = []string{
	"The expert in anything was once a beginner.",
	"Learning never exhausts the mind. (Leonardo da Vinci)",
	"The beautiful thing about learning is nobody can take it away from you.",
	"Education is the passport to the future.",
	"A journey of a thousand miles begins with a single step.",
	"Invest in yourself. Your career is the engine of your wealth.",
	"The more you learn, the more you earn.",
	"Knowledge is power. Information is liberating.",
}

// DefaultTasks returns a fresh copy of the task catalog with nothing completed.
func DefaultTasks() []model.Task {
	return append([]model.Task(nil), defaultTasks...)
}

// DailyQuote picks the quote of the day by day of month.
func DailyQuote(t time.Time) string {
	return quotes[t.Day()%len(quotes)]
}

// EngagementView is the engagement state with its derived figures.
type EngagementView struct {
	model.EngagementState
	Level          int    `json:"level"`
	XPToNext       int    `json:"xpToNext"`
	CompletedCount int    `json:"completedCount"`
	Quote          string `json:"quote"`
}

// EngagementService defines streak, task and XP bookkeeping per signed-in user.
type EngagementService interface {
	// Visit creates or rolls the state forward to today and completes the daily check-in.
	Visit(ctx context.Context, email string) (EngagementView, error)
	// CompleteTask marks a task done, adding its XP once.
	CompleteTask(ctx context.Context, email, taskID string) (EngagementView, error)
	// Get returns the stored state without rolling the day.
	Get(ctx context.Context, email string) (EngagementView, error)
}

type EngagementServiceImpl struct {
	st  *store.Store
	log *zap.Logger
	now func() time.Time
}

// NewEngagementService constructs EngagementService.
func NewEngagementService(st *store.Store, log *zap.Logger) *EngagementServiceImpl {
	if log == nil {
		log = zap.NewNop()
	}
	return &EngagementServiceImpl{st: st, log: log, now: time.Now}
}

func (s *EngagementServiceImpl) view(st model.EngagementState) EngagementView {
	return EngagementView{
		EngagementState: st,
		Level:           st.Level(),
		XPToNext:        st.XPToNext(),
		CompletedCount:  st.CompletedCount(),
		Quote:           DailyQuote(s.now()),
	}
}

func requireEmail(email string) (string, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("engagement: %w", errs.ErrUnauthorized)
	}
	return email, nil
}

// rollDay starts a new state, or for a new calendar day resets daily tasks and continues the
// streak when the last visit was yesterday.
func (s *EngagementServiceImpl) rollDay(st model.EngagementState, found bool) model.EngagementState {
	now := s.now()
	today := now.Format(dayLayout)
	if !found {
		return model.EngagementState{Tasks: DefaultTasks(), Streak: 1, LastVisit: today}
	}
	if st.LastVisit == today {
		return st
	}
	for i := range st.Tasks {
		if st.Tasks[i].Type == model.TaskDaily {
			st.Tasks[i].Completed = false
		}
	}
	if st.LastVisit == now.AddDate(0, 0, -1).Format(dayLayout) {
		st.Streak++
	} else {
		st.Streak = 1
	}
	st.LastVisit = today
	return st
}

func complete(st *model.EngagementState, taskID string) bool {
	for i := range st.Tasks {
		if st.Tasks[i].ID != taskID {
			continue
		}
		if st.Tasks[i].Completed {
			return false
		}
		st.Tasks[i].Completed = true
		st.TotalXP += st.Tasks[i].XPReward
		return true
	}
	return false
}

// Visit rolls the day and auto-completes the check-in task.
func (s *EngagementServiceImpl) Visit(ctx context.Context, email string) (EngagementView, error) {
	email, err := requireEmail(email)
	if err != nil {
		return EngagementView{}, err
	}
	key := store.EngagementKey(email)
	st, found := store.ReadOne[model.EngagementState](ctx, s.st, key)
	st = s.rollDay(st, found)
	complete(&st, CheckInTaskID)
	if err := store.WriteOne(ctx, s.st, key, st); err != nil {
		return s.view(st), err
	}
	return s.view(st), nil
}

// CompleteTask awards a task's XP once. Unknown task ids are rejected.
func (s *EngagementServiceImpl) CompleteTask(ctx context.Context, email, taskID string) (EngagementView, error) {
	email, err := requireEmail(email)
	if err != nil {
		return EngagementView{}, err
	}
	taskID = strings.TrimSpace(taskID)
	known := false
	for _, t := range defaultTasks {
		if t.ID == taskID {
			known = true
			break
		}
	}
	if !known {
		return EngagementView{}, fmt.Errorf("task %q: %w", taskID, errs.ErrNotFound)
	}

	key := store.EngagementKey(email)
	st, found := store.ReadOne[model.EngagementState](ctx, s.st, key)
	if !found {
		st = s.rollDay(st, false)
	}
	if !complete(&st, taskID) {
		return s.view(st), nil
	}
	s.log.Debug("task completed", zap.String("task", taskID))
	if err := store.WriteOne(ctx, s.st, key, st); err != nil {
		return s.view(st), err
	}
	return s.view(st), nil
}

// Get returns the stored state, or a fresh one that is not persisted.
func (s *EngagementServiceImpl) Get(ctx context.Context, email string) (EngagementView, error) {
	email, err := requireEmail(email)
	if err != nil {
		return EngagementView{}, err
	}
	st, found := store.ReadOne[model.EngagementState](ctx, s.st, store.EngagementKey(email))
	if !found {
		st = s.rollDay(st, false)
	}
	return s.view(st), nil
}
