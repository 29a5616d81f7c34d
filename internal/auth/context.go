package auth

import "context"

type contextKey string

const sessionKey contextKey = "session"

// WithSession stores the authenticated session in ctx.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext returns the session stored by WithSession.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	return s, ok
}

// UserID returns the authenticated user id, or "" when there is none.
func UserID(ctx context.Context) string {
	s, _ := SessionFromContext(ctx)
	return s.UserID
}
