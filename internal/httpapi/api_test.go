package httpapi

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"reposweep.org/internal/auth"
	"reposweep.org/internal/github"
	"reposweep.org/internal/ratelimit"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// fakeExchanger stands in for the OAuth flow and counts exchange attempts
// so tests can assert the CSRF gate short-circuits before any exchange.
type fakeExchanger struct {
	token         string
	err           error
	exchangeCalls int
	lastState     string
}

func (f *fakeExchanger) AuthURL(state string) string {
	f.lastState = state
	return "https://github.test/login/oauth/authorize?state=" + state
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (string, error) {
	f.exchangeCalls++
	if f.err != nil {
		return "", f.err
	}
	return f.token, nil
}

// fakeRepoClient is an in-memory upstream with call recording.
type fakeRepoClient struct {
	login    string
	loginErr error

	repos   map[string]github.Repo
	listErr error

	deleteErr  error
	archiveErr error

	getCalls     []string
	deleteCalls  []string
	archiveCalls []string
	tokensSeen   []string
}

func newFakeRepoClient(login string) *fakeRepoClient {
	return &fakeRepoClient{login: login, repos: make(map[string]github.Repo)}
}

func (f *fakeRepoClient) addRepo(owner, name string) {
	full := owner + "/" + name
	f.repos[full] = github.Repo{Name: name, FullName: full, Owner: owner}
}

func (f *fakeRepoClient) CurrentUser(context.Context) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.login, nil
}

func (f *fakeRepoClient) ListOwnedRepos(_ context.Context, owner string) ([]github.Repo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []github.Repo
	for _, repo := range f.repos {
		if strings.EqualFold(repo.Owner, owner) {
			out = append(out, repo)
		}
	}
	return out, nil
}

func (f *fakeRepoClient) GetRepo(_ context.Context, owner, name string) (github.Repo, error) {
	full := owner + "/" + name
	f.getCalls = append(f.getCalls, full)
	repo, ok := f.repos[full]
	if !ok {
		return github.Repo{}, github.ErrNotFound
	}
	return repo, nil
}

func (f *fakeRepoClient) DeleteRepo(_ context.Context, owner, name string) error {
	f.deleteCalls = append(f.deleteCalls, owner+"/"+name)
	return f.deleteErr
}

func (f *fakeRepoClient) ArchiveRepo(_ context.Context, owner, name string) error {
	f.archiveCalls = append(f.archiveCalls, owner+"/"+name)
	return f.archiveErr
}

type testAPI struct {
	api   *API
	codec *auth.Codec
	flow  *fakeExchanger
	repo  *fakeRepoClient
	h     http.Handler
}

func newTestAPI(t *testing.T, repo *fakeRepoClient, flow *fakeExchanger, production bool) *testAPI {
	t.Helper()

	codec, err := auth.NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if flow == nil {
		flow = &fakeExchanger{token: "gho_upstream"}
	}
	if repo == nil {
		repo = newFakeRepoClient("alice")
	}

	api := New(Options{
		Codec: codec,
		Flow:  flow,
		NewRepoClient: func(token string) RepoClient {
			repo.tokensSeen = append(repo.tokensSeen, token)
			return repo
		},
		RateStore:  ratelimit.NewMemoryStore(),
		Production: production,
		Version:    "test",
	})
	return &testAPI{api: api, codec: codec, flow: flow, repo: repo, h: api.Handler()}
}

// sessionToken issues a valid token for the given login.
func (ta *testAPI) sessionToken(t *testing.T, login string) string {
	t.Helper()
	token, err := ta.codec.Issue(login, "gho_upstream")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}
