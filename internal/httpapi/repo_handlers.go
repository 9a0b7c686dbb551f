package httpapi

import (
	"net/http"

	"reposweep.org/internal/auth"
	"reposweep.org/internal/github"
)

// handleSessionCheck is the liveness probe the UI polls to decide whether
// the login button or the repo table should render.
func (a *API) handleSessionCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"authenticated": true})
}

// handleListRepos returns every repository the session's identity owns,
// most recently updated first.
func (a *API) handleListRepos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing session")
		return
	}

	repos, err := a.newRepoClient(sess.GitHubToken).ListOwnedRepos(r.Context(), sess.Login)
	if err != nil {
		a.upstreamError(w, r, err)
		return
	}
	if repos == nil {
		repos = []github.Repo{}
	}
	writeJSON(w, http.StatusOK, repos)
}
