package auth

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsSecureRequest(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "http://app/x", nil)
	if IsSecureRequest(plain) {
		t.Fatalf("plain request reported secure")
	}

	direct := httptest.NewRequest(http.MethodGet, "https://app/x", nil)
	direct.TLS = &tls.ConnectionState{}
	if !IsSecureRequest(direct) {
		t.Fatalf("tls request reported insecure")
	}

	proxied := httptest.NewRequest(http.MethodGet, "http://app/x", nil)
	proxied.Header.Set("X-ARR-SSL", "true")
	if !IsSecureRequest(proxied) {
		t.Fatalf("proxy header ignored")
	}

	other := httptest.NewRequest(http.MethodGet, "http://app/x", nil)
	other.Header.Set("X-ARR-SSL", "2048|256|CN=proxy")
	if IsSecureRequest(other) {
		t.Fatalf("only the literal value true marks a request secure")
	}
}

func TestRedirectURL(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "http://app.example.com:8080/some/page?x=1", nil)
	if got := RedirectURL(r, "/callback"); got != "http://app.example.com:8080/callback" {
		t.Fatalf("unexpected redirect url %q", got)
	}
	r.Header.Set("x-arr-ssl", "true")
	if got := RedirectURL(r, "/callback"); got != "https://app.example.com:8080/callback" {
		t.Fatalf("unexpected secure redirect url %q", got)
	}
}

func TestIsLocalPath(t *testing.T) {
	tests := map[string]bool{
		"/":                    true,
		"/dashboard?x=1":       true,
		"":                     false,
		"dashboard":            false,
		"//evil.example.com":   false,
		"/\\evil.example.com":  false,
		"https://evil.com/":    false,
		"/\t/evil.example.com": false,
		"/\r/evil.example.com": false,
		"/\n/evil.example.com": false,
		"/a\x7fb":              false,
		"/a//b":                true,
	}
	for in, want := range tests {
		if got := isLocalPath(in); got != want {
			t.Fatalf("isLocalPath(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestDefaultEndpoints(t *testing.T) {
	ep, err := DefaultEndpoints("https://tenant.idp.example.com/", "/.well-known/jwks.json")
	if err != nil {
		t.Fatalf("DefaultEndpoints returned error: %v", err)
	}
	if ep.AuthURL != "https://tenant.idp.example.com/authorize" {
		t.Fatalf("auth url %q", ep.AuthURL)
	}
	if ep.TokenURL != "https://tenant.idp.example.com/oauth/token" {
		t.Fatalf("token url %q", ep.TokenURL)
	}
	if ep.JWKSURL != "https://tenant.idp.example.com/.well-known/jwks.json" {
		t.Fatalf("jwks url %q", ep.JWKSURL)
	}
}
