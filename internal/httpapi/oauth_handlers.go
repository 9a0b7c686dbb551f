package httpapi

import (
	"net/http"
	"time"

	"reposweep.org/internal/audit"
	"reposweep.org/internal/auth"
	"reposweep.org/internal/oauth"
)

// stateCookieTTL bounds how long a login attempt may sit between the
// redirect to the provider and the callback.
const stateCookieTTL = 10 * time.Minute

func (a *API) setCookie(w http.ResponseWriter, name, value string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.production,
		SameSite: http.SameSiteLaxMode,
	})
}

// handleLogin starts the authorization-code flow: a fresh state nonce in an
// http-only cookie, then a redirect to the provider.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	state, err := oauth.NewState()
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not start login")
		return
	}

	a.setCookie(w, stateCookieName, state, stateCookieTTL)
	http.Redirect(w, r, a.flow.AuthURL(state), http.StatusFound)
}

// handleCallback finishes the flow. The state cookie is single-use: it is
// cleared on every path through here, matched or not. The exchange only
// happens after the state check passes, and the issued session token
// travels back exclusively in the cookie, never in a URL.
func (a *API) handleCallback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	query := r.URL.Query()
	code := query.Get("code")
	if code == "" {
		writeError(w, r, http.StatusBadRequest, "missing code")
		return
	}

	state := query.Get("state")
	cookie, err := r.Cookie(stateCookieName)
	if state == "" || err != nil || cookie.Value == "" || state != cookie.Value {
		a.clearCookie(w, stateCookieName)
		writeError(w, r, http.StatusBadRequest, "state mismatch")
		return
	}
	a.clearCookie(w, stateCookieName)

	upstreamToken, err := a.flow.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "token exchange failed")
		return
	}

	login, err := a.newRepoClient(upstreamToken).CurrentUser(r.Context())
	if err != nil {
		a.upstreamError(w, r, err)
		return
	}

	session, err := a.codec.Issue(login, upstreamToken)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "could not issue session")
		return
	}

	_ = audit.LogEvent(r.Context(), "auth.session.issued", map[string]any{
		"login":      login,
		"expires_in": auth.SessionTTL.String(),
	})

	a.setCookie(w, sessionCookieName, session, auth.SessionTTL)
	http.Redirect(w, r, "/", http.StatusFound)
}

// handleLogout clears both cookies unconditionally. Idempotent: logging out
// twice, or without a session, behaves identically.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	a.clearCookie(w, sessionCookieName)
	a.clearCookie(w, stateCookieName)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
