package httpapi

import (
	"errors"
	"net/http"

	"reposweep.org/internal/audit"
	"reposweep.org/internal/auth"
	"reposweep.org/internal/batch"
	"reposweep.org/internal/obs"
)

type deleteRequest struct {
	Repos  []string `json:"repos"`
	DryRun bool     `json:"dryRun"`
}

type archiveRequest struct {
	Repos []string `json:"repos"`
}

type deleteResponse struct {
	DryRun  bool           `json:"dryRun"`
	Results []batch.Result `json:"results"`
	Summary batch.Summary  `json:"summary"`
}

type archiveResponse struct {
	Results []batch.Result `json:"results"`
	Summary batch.Summary  `json:"summary"`
}

// handleDelete runs a bulk delete. dryRun walks the full validate-and-verify
// pipeline without ever reaching the destructive endpoint.
func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	out, ok := a.runBatch(w, r, batch.Request{
		Repos:  req.Repos,
		Action: batch.ActionDelete,
		DryRun: req.DryRun,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		DryRun:  req.DryRun,
		Results: out.Results,
		Summary: out.Summary,
	})
}

// handleArchive runs a bulk archive. No dry-run mode: archiving is
// reversible upstream, and the request shape rejects unknown fields.
func (a *API) handleArchive(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req archiveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDecodeError(w, r, err)
		return
	}

	out, ok := a.runBatch(w, r, batch.Request{
		Repos:  req.Repos,
		Action: batch.ActionArchive,
	})
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{
		Results: out.Results,
		Summary: out.Summary,
	})
}

// runBatch executes the batch for the current session and handles the
// error-to-status mapping. Reports ok=false when a response was already
// written.
func (a *API) runBatch(w http.ResponseWriter, r *http.Request, req batch.Request) (batch.Outcome, bool) {
	sess, ok := auth.SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing session")
		return batch.Outcome{}, false
	}

	engine := batch.New(a.newRepoClient(sess.GitHubToken))
	out, err := engine.Execute(r.Context(), req, sess.Login)
	if err != nil {
		if errors.Is(err, batch.ErrValidation) {
			writeError(w, r, http.StatusBadRequest, err.Error())
		} else {
			writeError(w, r, http.StatusInternalServerError, "batch execution failed")
		}
		return batch.Outcome{}, false
	}

	for _, res := range out.Results {
		obs.ObserveRepoAction(string(req.Action), res.Success)
	}
	_ = audit.LogEvent(r.Context(), "repos.batch."+string(req.Action), map[string]any{
		"dry_run":   req.DryRun,
		"total":     out.Summary.Total,
		"succeeded": out.Summary.Succeeded,
		"failed":    out.Summary.Failed,
	})

	return out, true
}

// writeDecodeError distinguishes an oversized body (413) from a malformed
// one (400).
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	writeError(w, r, http.StatusBadRequest, err.Error())
}
