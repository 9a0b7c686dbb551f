package auth

import (
	"context"
	"strings"
)

type ctxKey string

const sessionKey ctxKey = "auth_session"

// ContextWithSession stores the verified session in the context.
func ContextWithSession(ctx context.Context, s Session) context.Context {
	s.Login = strings.TrimSpace(s.Login)
	return context.WithValue(ctx, sessionKey, s)
}

// SessionFromContext extracts the authenticated session from context.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey).(Session)
	if !ok || s.Login == "" {
		return Session{}, false
	}
	return s, true
}

// LoginFromContext returns just the authenticated login, for callers that
// must not see the wrapped upstream token.
func LoginFromContext(ctx context.Context) (string, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return "", false
	}
	return s.Login, true
}
