// Package github is a minimal REST client for the parts of the GitHub API
// this service touches: resolving the authenticated login, listing owned
// repositories, and deleting or archiving a single repository.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.github.com"

	// pageSize is fixed; listing stops on the first short page rather
	// than trusting any total-count header.
	pageSize = 100

	acceptHeader     = "application/vnd.github+json"
	apiVersionHeader = "2022-11-28"
)

var (
	// ErrNotFound covers 404 and 403 from repository endpoints. The two are
	// collapsed so callers cannot distinguish a private repository they
	// cannot see from one that does not exist.
	ErrNotFound = errors.New("repository not found")
)

// APIError is a non-2xx answer from the upstream API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("github: upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("github: upstream status %d: %s", e.StatusCode, e.Message)
}

// Repo is the normalized repository shape exposed to the rest of the service.
type Repo struct {
	Name        string    `json:"name"`
	FullName    string    `json:"full_name"`
	Owner       string    `json:"owner"`
	Private     bool      `json:"private"`
	Archived    bool      `json:"archived"`
	Description string    `json:"description,omitempty"`
	HTMLURL     string    `json:"html_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// apiRepo mirrors the wire shape before normalization.
type apiRepo struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Owner    struct {
		Login string `json:"login"`
	} `json:"owner"`
	Private     bool      `json:"private"`
	Archived    bool      `json:"archived"`
	Description string    `json:"description"`
	HTMLURL     string    `json:"html_url"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (r apiRepo) normalize() Repo {
	return Repo{
		Name:        r.Name,
		FullName:    r.FullName,
		Owner:       r.Owner.Login,
		Private:     r.Private,
		Archived:    r.Archived,
		Description: r.Description,
		HTMLURL:     r.HTMLURL,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Client calls the GitHub REST API on behalf of one authenticated user.
// All requests share a pacing limiter so a batch never bursts against the
// upstream rate limit; batch execution is sequential, so the limiter mostly
// spaces out back-to-back mutations.
type Client struct {
	http  *http.Client
	base  string
	token string
	pace  *rate.Limiter
}

// Option adjusts a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default API root (tests, GHE).
func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = strings.TrimRight(base, "/") }
}

// WithHTTPClient substitutes the transport.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithPacing overrides the inter-request pacing limiter.
func WithPacing(l *rate.Limiter) Option {
	return func(c *Client) { c.pace = l }
}

// NewClient builds a client wrapping the given upstream access token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		http:  &http.Client{Timeout: 30 * time.Second},
		base:  defaultBaseURL,
		token: token,
		// One mutation every 200ms with a small burst keeps a full
		// 100-item batch well inside the upstream secondary limits.
		pace: rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CurrentUser resolves the login of the token's owner.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	body, err := c.do(ctx, http.MethodGet, "/user", nil)
	if err != nil {
		return "", err
	}
	var user struct {
		Login string `json:"login"`
	}
	if err := json.Unmarshal(body, &user); err != nil {
		return "", fmt.Errorf("decode user: %w", err)
	}
	if user.Login == "" {
		return "", errors.New("github: user response missing login")
	}
	return user.Login, nil
}

// ListOwnedRepos pages through the authenticated user's repositories, most
// recently updated first, and keeps only those owned by the given login.
// Pagination terminates on the first page shorter than the page size.
func (c *Client) ListOwnedRepos(ctx context.Context, owner string) ([]Repo, error) {
	var repos []Repo
	for page := 1; ; page++ {
		path := fmt.Sprintf("/user/repos?type=owner&sort=updated&per_page=%d&page=%d", pageSize, page)
		body, err := c.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}
		var items []apiRepo
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode repos page %d: %w", page, err)
		}
		for _, item := range items {
			if !strings.EqualFold(item.Owner.Login, owner) {
				continue
			}
			repos = append(repos, item.normalize())
		}
		if len(items) < pageSize {
			return repos, nil
		}
	}
}

// GetRepo fetches a single repository. 404 and 403 both come back as
// ErrNotFound.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (Repo, error) {
	body, err := c.do(ctx, http.MethodGet, "/repos/"+owner+"/"+name, nil)
	if err != nil {
		return Repo{}, err
	}
	var item apiRepo
	if err := json.Unmarshal(body, &item); err != nil {
		return Repo{}, fmt.Errorf("decode repo: %w", err)
	}
	return item.normalize(), nil
}

// DeleteRepo irreversibly deletes the repository.
func (c *Client) DeleteRepo(ctx context.Context, owner, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "/repos/"+owner+"/"+name, nil)
	return err
}

// ArchiveRepo marks the repository archived.
func (c *Client) ArchiveRepo(ctx context.Context, owner, name string) error {
	payload := map[string]bool{"archived": true}
	_, err := c.do(ctx, http.MethodPatch, "/repos/"+owner+"/"+name, payload)
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.pace.Wait(ctx); err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("github: read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return nil, ErrNotFound
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}
}

// upstreamMessage pulls the human-readable message out of a GitHub error
// body without committing to its full schema.
func upstreamMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		return msg.String()
	}
	return ""
}
