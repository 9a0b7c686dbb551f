package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

// Scopes requested from GitHub. delete_repo is the whole point of the tool;
// repo covers private repository listing and the archive mutation.
var scopes = []string{"repo", "delete_repo"}

// ErrNoAccessToken indicates the provider answered the exchange without a
// usable access token.
var ErrNoAccessToken = errors.New("token exchange returned no access token")

// Flow drives the authorization-code exchange against GitHub.
type Flow struct {
	cfg *oauth2.Config
}

// Option adjusts a Flow. Used by tests to point at a stub provider.
type Option func(*Flow)

// WithEndpoint overrides the provider's authorize and token URLs.
func WithEndpoint(authURL, tokenURL string) Option {
	return func(f *Flow) {
		f.cfg.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL}
	}
}

// New builds a Flow for the registered OAuth application.
func New(clientID, clientSecret, redirectURL string, opts ...Option) *Flow {
	f := &Flow{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     githuboauth.Endpoint,
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// AuthURL returns the provider authorization URL carrying the CSRF state.
func (f *Flow) AuthURL(state string) string {
	return f.cfg.AuthCodeURL(state)
}

// Exchange trades the authorization code for an upstream access token in a
// single server-to-server call.
func (f *Flow) Exchange(ctx context.Context, code string) (string, error) {
	token, err := f.cfg.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange code: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrNoAccessToken
	}
	return token.AccessToken, nil
}

// ExchangeWithClient is Exchange with an explicit HTTP client, used by tests
// to reach a stub token endpoint.
func (f *Flow) ExchangeWithClient(ctx context.Context, client *http.Client, code string) (string, error) {
	if client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, client)
	}
	return f.Exchange(ctx, code)
}

// NewState returns a fresh random nonce for the state cookie. 16 bytes of
// entropy, hex-encoded; single-use by construction since the cookie is
// cleared on the first callback regardless of outcome.
func NewState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
