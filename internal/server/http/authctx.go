package httpserver

import "context"

type ctxKey string

const (
	subjectKey ctxKey = "ck.subject"
	roleKey    ctxKey = "ck.role"
)

// WithIdentity stores the authenticated subject and role in context.
func WithIdentity(ctx context.Context, subject, role string) context.Context {
	ctx = context.WithValue(ctx, subjectKey, subject)
	return context.WithValue(ctx, roleKey, role)
}

// SubjectFromCtx returns the authenticated email (or admin username).
func SubjectFromCtx(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(subjectKey).(string)
	return v, ok && v != ""
}

// RoleFromCtx returns the token role.
func RoleFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}
