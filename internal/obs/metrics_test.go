package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                       "/",
		"/":                      "/",
		"/metrics":               "/metrics",
		"/api/repos":             "/api/repos",
		"/api/repos?foo=bar":     "/api/repos",
		"/auth/callback?code=xy": "/auth/callback",
		"/api/delete":            "/api/delete",
		"/wp-admin/login.php":    "other",
		"/api/repos/extra":       "other",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
