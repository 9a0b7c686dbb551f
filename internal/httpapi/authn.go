package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"reposweep.org/internal/auth"
)

const (
	authHeader   = "Authorization"
	bearerPrefix = "Bearer "

	sessionCookieName = "session_token"
	stateCookieName   = "oauth_state"
)

// extractSessionToken pulls the session credential off the request. The
// Authorization header wins; the http-only cookie is the fallback and the
// transport the browser UI actually uses.
func extractSessionToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get(authHeader))
	if header != "" {
		if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearerPrefix)) {
			return "", errors.New("invalid authorization scheme")
		}
		token := strings.TrimSpace(header[len(bearerPrefix):])
		if token == "" {
			return "", errors.New("missing bearer token")
		}
		return token, nil
	}

	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return "", errors.New("missing session credential")
	}
	return cookie.Value, nil
}

// requireSession verifies the session token and stores the session in the
// request context. Every failure maps to a 401; verification is pure, so
// there is no 500 path here.
func (a *API) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractSessionToken(r)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		sess, err := a.codec.Verify(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "invalid or expired session")
			return
		}

		ctx := auth.ContextWithSession(r.Context(), sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
