package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/course-keeper/internal/metrics"
	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

// Activity log limits.
const (
	ActivityCap        = 500
	ActivityAdminLimit = 200
)

// ActivityLog appends to the capped user_activities collection.
type ActivityLog struct {
	st  *store.Store
	log *zap.Logger
	m   *metrics.Metrics
	now func() time.Time
}

// NewActivityLog constructs an ActivityLog.
func NewActivityLog(st *store.Store, log *zap.Logger, m *metrics.Metrics) *ActivityLog {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivityLog{st: st, log: log, m: m, now: time.Now}
}

// Track records an event; an empty email is recorded as anonymous. Tracking never fails the
// caller: write errors are logged.
func (a *ActivityLog) Track(ctx context.Context, email, action, details, page string) model.ActivityEvent {
	email = strings.TrimSpace(email)
	if email == "" {
		email = model.AnonymousEmail
	}
	now := a.now()
	ev := model.ActivityEvent{
		ID:        newActivityID(now),
		UserEmail: email,
		Action:    action,
		Details:   details,
		Timestamp: now,
		Page:      page,
	}
	if _, err := store.Append(ctx, a.st, store.KeyActivities, ev, ActivityCap); err != nil {
		a.log.Error("track activity", zap.String("action", action), zap.Error(err))
	}
	a.m.Activity(action)
	return ev
}

// Recent returns at most limit events, newest first, filtered by a case-insensitive term over
// email and action. limit <= 0 returns all matches.
func (a *ActivityLog) Recent(ctx context.Context, limit int, search string) []model.ActivityEvent {
	all := store.ReadAll[model.ActivityEvent](ctx, a.st, store.KeyActivities)
	term := strings.ToLower(strings.TrimSpace(search))
	out := make([]model.ActivityEvent, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		ev := all[i]
		if term != "" &&
			!strings.Contains(strings.ToLower(ev.UserEmail), term) &&
			!strings.Contains(strings.ToLower(ev.Action), term) {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
