package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "reposweep"
	audience = "reposweep-api"

	// SessionTTL bounds how long a wrapped GitHub token stays usable.
	// Sessions are never stored server-side, so expiry is the only
	// revocation mechanism.
	SessionTTL = 10 * time.Minute

	// MinSecretLength is the floor for the HS256 signing secret.
	MinSecretLength = 32
)

var (
	// ErrWeakSecret indicates the signing secret is missing or too short.
	ErrWeakSecret = fmt.Errorf("signing secret must be at least %d characters", MinSecretLength)

	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid session token")
)

// Session is the verified content of a session token.
type Session struct {
	Login       string
	GitHubToken string
}

// sessionClaims wraps the upstream access token alongside the registered
// claim set. The subject carries the GitHub login.
type sessionClaims struct {
	GitHubToken string `json:"github_token"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens. Construct it once at startup;
// NewCodec is where the secret strength check happens, so no request path
// ever re-validates configuration.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// NewCodec validates the signing secret and returns a ready codec.
func NewCodec(secret string) (*Codec, error) {
	secret = strings.TrimSpace(secret)
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

// Issue signs a session token for the given GitHub login, wrapping the
// upstream access token. The token carries a fresh jti and expires after
// SessionTTL.
func (c *Codec) Issue(login, githubToken string) (string, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return "", errors.New("login is required")
	}
	if githubToken == "" {
		return "", errors.New("upstream token is required")
	}

	now := c.now().UTC()
	claims := sessionClaims{
		GitHubToken: githubToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Audience:  jwt.ClaimStrings{audience},
			Subject:   login,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and claims and returns the embedded session.
// Every failure mode maps to ErrInvalidToken; callers translate it to 401.
func (c *Codec) Verify(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid {
		return Session{}, ErrInvalidToken
	}
	if err := validateClaims(claims, c.now().UTC()); err != nil {
		return Session{}, ErrInvalidToken
	}
	return Session{Login: claims.Subject, GitHubToken: claims.GitHubToken}, nil
}

func validateClaims(claims *sessionClaims, now time.Time) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if !containsAudience(claims.Audience, audience) {
		return errors.New("audience mismatch")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.GitHubToken == "" {
		return errors.New("upstream token missing")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("token id missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}

func containsAudience(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}
