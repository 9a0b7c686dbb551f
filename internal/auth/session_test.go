package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(testSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestNewCodecRejectsWeakSecret(t *testing.T) {
	for _, secret := range []string{"", "   ", "short", strings.Repeat("x", MinSecretLength-1)} {
		if _, err := NewCodec(secret); !errors.Is(err, ErrWeakSecret) {
			t.Fatalf("secret %q: expected ErrWeakSecret, got %v", secret, err)
		}
	}
	if _, err := NewCodec(strings.Repeat("x", MinSecretLength)); err != nil {
		t.Fatalf("expected %d-char secret to be accepted: %v", MinSecretLength, err)
	}
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	c := newTestCodec(t)

	token, err := c.Issue("alice", "gho_upstream")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	sess, err := c.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if sess.Login != "alice" {
		t.Fatalf("unexpected login: %q", sess.Login)
	}
	if sess.GitHubToken != "gho_upstream" {
		t.Fatalf("unexpected upstream token: %q", sess.GitHubToken)
	}
}

func TestIssueRequiresLoginAndToken(t *testing.T) {
	c := newTestCodec(t)
	if _, err := c.Issue("", "gho_upstream"); err == nil {
		t.Fatal("expected error for empty login")
	}
	if _, err := c.Issue("alice", ""); err == nil {
		t.Fatal("expected error for empty upstream token")
	}
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	c := newTestCodec(t)
	issued := time.Now().UTC()
	c.now = func() time.Time { return issued }

	token, err := c.Issue("alice", "gho_upstream")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Just before expiry the token must still verify.
	c.now = func() time.Time { return issued.Add(SessionTTL - time.Second) }
	if _, err := c.Verify(token); err != nil {
		t.Fatalf("expected token valid just before TTL, got %v", err)
	}

	// Just after expiry it must not.
	c.now = func() time.Time { return issued.Add(SessionTTL + time.Second) }
	if _, err := c.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken after TTL, got %v", err)
	}
}

func TestVerifyRejectsTamperedToken(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Issue("alice", "gho_upstream")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	tampered := token[:len(token)-2] + "zz"
	if _, err := c.Verify(tampered); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	c := newTestCodec(t)
	token, err := c.Issue("alice", "gho_upstream")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	other, err := NewCodec(strings.Repeat("y", MinSecretLength))
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

// signForTest builds tokens with arbitrary claims so individual claim checks
// can be exercised.
func signForTest(t *testing.T, claims sessionClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestVerifyRejectsBadClaims(t *testing.T) {
	c := newTestCodec(t)
	now := time.Now().UTC()
	base := func() sessionClaims {
		return sessionClaims{
			GitHubToken: "gho_upstream",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				Audience:  jwt.ClaimStrings{audience},
				Subject:   "alice",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(SessionTTL)),
				ID:        "jti-1",
			},
		}
	}

	cases := map[string]func(*sessionClaims){
		"wrong audience":         func(cl *sessionClaims) { cl.Audience = jwt.ClaimStrings{"another-app"} },
		"empty audience":         func(cl *sessionClaims) { cl.Audience = nil },
		"wrong issuer":           func(cl *sessionClaims) { cl.Issuer = "somebody-else" },
		"missing subject":        func(cl *sessionClaims) { cl.Subject = "" },
		"missing upstream token": func(cl *sessionClaims) { cl.GitHubToken = "" },
		"missing token id":       func(cl *sessionClaims) { cl.ID = "" },
	}
	for name, mutate := range cases {
		claims := base()
		mutate(&claims)
		token := signForTest(t, claims)
		if _, err := c.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}

	// Control: the unmutated claim set verifies.
	if _, err := c.Verify(signForTest(t, base())); err != nil {
		t.Fatalf("control token should verify: %v", err)
	}
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	c := newTestCodec(t)
	for _, token := range []string{"", "   ", "not-a-jwt"} {
		if _, err := c.Verify(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestSessionContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := SessionFromContext(ctx); ok {
		t.Fatal("expected no session on empty context")
	}

	ctx = ContextWithSession(ctx, Session{Login: " alice ", GitHubToken: "gho_upstream"})
	sess, ok := SessionFromContext(ctx)
	if !ok {
		t.Fatal("expected session in context")
	}
	if sess.Login != "alice" {
		t.Fatalf("unexpected login: %q", sess.Login)
	}
	login, ok := LoginFromContext(ctx)
	if !ok || login != "alice" {
		t.Fatalf("unexpected login from context: %q %v", login, ok)
	}
}
