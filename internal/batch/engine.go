// Package batch executes bulk repository actions: validate the request,
// then walk the identifiers strictly in order, re-verifying ownership per
// item before every mutation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"reposweep.org/internal/github"
)

// Action is the kind of mutation applied to every repository in a batch.
type Action string

const (
	ActionDelete  Action = "delete"
	ActionArchive Action = "archive"
)

const (
	// MaxBatchSize bounds a single request. Larger selections are split by
	// the client.
	MaxBatchSize = 100

	// MaxIdentifierLength bounds one owner/name identifier.
	MaxIdentifierLength = 100
)

// Generic per-item error texts. Ownership mismatch is deliberately
// indistinguishable from a missing repository, and upstream error detail
// never reaches the response.
const (
	msgNotFound      = "not found or access denied"
	msgRequestFailed = "request failed"
)

// ErrValidation marks a malformed batch request. Handlers map it to 400.
var ErrValidation = errors.New("invalid batch request")

// identifierPattern restricts identifiers to owner/name with the character
// set GitHub itself allows. Anything else (path traversal, empty segments)
// rejects the whole batch.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

// RepoService is the slice of the upstream client the engine needs.
type RepoService interface {
	GetRepo(ctx context.Context, owner, name string) (github.Repo, error)
	DeleteRepo(ctx context.Context, owner, name string) error
	ArchiveRepo(ctx context.Context, owner, name string) error
}

// Request is one validated-then-executed batch.
type Request struct {
	Repos  []string
	Action Action
	DryRun bool
}

// Result is the outcome for a single identifier, in submitted order.
type Result struct {
	Repo    string `json:"repo"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Summary aggregates a result set.
type Summary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Outcome is the full return of one batch execution.
type Outcome struct {
	Results []Result
	Summary Summary
}

// Engine runs batches against an upstream repo service.
type Engine struct {
	repos RepoService
}

// New builds an engine over the given upstream service. Engines are cheap;
// handlers construct one per request around the session's client.
func New(repos RepoService) *Engine {
	return &Engine{repos: repos}
}

// Validate checks the request shape without touching upstream. Any single
// malformed identifier rejects the whole batch.
func Validate(req Request) error {
	switch req.Action {
	case ActionDelete, ActionArchive:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrValidation, string(req.Action))
	}
	if len(req.Repos) == 0 {
		return fmt.Errorf("%w: repos must not be empty", ErrValidation)
	}
	if len(req.Repos) > MaxBatchSize {
		return fmt.Errorf("%w: batch exceeds %d repositories", ErrValidation, MaxBatchSize)
	}
	for _, id := range req.Repos {
		if len(id) > MaxIdentifierLength {
			return fmt.Errorf("%w: identifier too long", ErrValidation)
		}
		if !identifierPattern.MatchString(id) {
			return fmt.Errorf("%w: malformed identifier %q", ErrValidation, id)
		}
	}
	return nil
}

// Execute validates the request, then processes every identifier in order.
// After validation passes it never returns an error: per-item failures are
// data in the result list, and a failing item never aborts its siblings.
//
// Items run strictly sequentially. Ownership is re-checked against the
// upstream immediately before each mutation rather than trusted from an
// earlier listing; list and action can be arbitrarily separated in time.
func (e *Engine) Execute(ctx context.Context, req Request, identity string) (Outcome, error) {
	if err := Validate(req); err != nil {
		return Outcome{}, err
	}
	if strings.TrimSpace(identity) == "" {
		return Outcome{}, fmt.Errorf("%w: identity is required", ErrValidation)
	}

	results := make([]Result, 0, len(req.Repos))
	for _, id := range req.Repos {
		results = append(results, e.executeOne(ctx, req, id, identity))
	}

	summary := Summary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return Outcome{Results: results, Summary: summary}, nil
}

func (e *Engine) executeOne(ctx context.Context, req Request, id, identity string) Result {
	owner, name, _ := strings.Cut(id, "/")

	repo, err := e.repos.GetRepo(ctx, owner, name)
	if err != nil {
		return Result{Repo: id, Error: msgNotFound}
	}
	if !strings.EqualFold(repo.Owner, identity) {
		return Result{Repo: id, Error: msgNotFound}
	}

	if req.DryRun && req.Action == ActionDelete {
		return Result{Repo: id, Success: true}
	}

	switch req.Action {
	case ActionDelete:
		err = e.repos.DeleteRepo(ctx, owner, name)
	case ActionArchive:
		err = e.repos.ArchiveRepo(ctx, owner, name)
	}
	if err != nil {
		return Result{Repo: id, Error: msgRequestFailed}
	}
	return Result{Repo: id, Success: true}
}
