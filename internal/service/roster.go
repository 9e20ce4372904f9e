package service

import (
	"context"
	"strings"
	"time"

	"github.com/and161185/course-keeper/internal/model"
	"github.com/and161185/course-keeper/internal/store"
)

// Roster maintains the admin-facing registered_users_list.
type Roster struct {
	st  *store.Store
	now func() time.Time
}

// NewRoster constructs a Roster.
func NewRoster(st *store.Store) *Roster {
	return &Roster{st: st, now: time.Now}
}

// Refresh folds library_users into the roster and recomputes hasPurchased from every
// admin_purchases row of any status. The result is persisted and returned.
func (r *Roster) Refresh(ctx context.Context) ([]model.RegisteredUser, error) {
	users := store.ReadAll[model.RegisteredUser](ctx, r.st, store.KeyRegisteredUsers)
	accounts := store.ReadAll[model.Account](ctx, r.st, store.KeyLibraryUsers)
	purchases := store.ReadAll[model.Purchase](ctx, r.st, store.KeyAdminPurchases)

	buyers := make(map[string]struct{}, len(purchases))
	for _, p := range purchases {
		buyers[model.NormalizeEmail(p.UserEmail)] = struct{}{}
	}

	known := make(map[string]struct{}, len(users))
	for _, u := range users {
		known[model.NormalizeEmail(u.Email)] = struct{}{}
	}
	for _, a := range accounts {
		k := model.NormalizeEmail(a.Email)
		if _, ok := known[k]; ok {
			continue
		}
		known[k] = struct{}{}
		users = append(users, accountToUser(a, r.now()))
	}

	for i := range users {
		_, users[i].HasPurchased = buyers[model.NormalizeEmail(users[i].Email)]
	}
	return users, store.WriteAll(ctx, r.st, store.KeyRegisteredUsers, users)
}

func accountToUser(a model.Account, now time.Time) model.RegisteredUser {
	u := model.RegisteredUser{
		ID:         a.ID,
		Email:      a.Email,
		FullName:   a.FullName,
		Username:   a.Username,
		CreatedAt:  a.CreatedAt,
		LastActive: a.CreatedAt,
	}
	if u.ID == "" {
		u.ID = newUserID()
	}
	if u.FullName == "" {
		u.FullName = "Unknown"
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt, u.LastActive = now, now
	}
	return u
}

// Touch sets lastActive for email, adding the user from library_users when missing.
func (r *Roster) Touch(ctx context.Context, email string) error {
	users := store.ReadAll[model.RegisteredUser](ctx, r.st, store.KeyRegisteredUsers)
	k := model.NormalizeEmail(email)
	for i := range users {
		if model.NormalizeEmail(users[i].Email) == k {
			users[i].LastActive = r.now()
			return store.WriteAll(ctx, r.st, store.KeyRegisteredUsers, users)
		}
	}
	if _, err := r.Refresh(ctx); err != nil {
		return err
	}
	users = store.ReadAll[model.RegisteredUser](ctx, r.st, store.KeyRegisteredUsers)
	for i := range users {
		if model.NormalizeEmail(users[i].Email) == k {
			users[i].LastActive = r.now()
			return store.WriteAll(ctx, r.st, store.KeyRegisteredUsers, users)
		}
	}
	return nil
}

// List returns the refreshed roster filtered by a case-insensitive term over email and name.
func (r *Roster) List(ctx context.Context, search string) ([]model.RegisteredUser, error) {
	users, err := r.Refresh(ctx)
	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return users, err
	}
	out := make([]model.RegisteredUser, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Email), term) || strings.Contains(strings.ToLower(u.FullName), term) {
			out = append(out, u)
		}
	}
	return out, err
}
