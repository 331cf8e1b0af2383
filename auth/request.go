package auth

import (
	"net/http"
	"strings"
)

// proxySSLHeader is set to "true" by TLS-terminating proxies such as Azure ARR.
const proxySSLHeader = "X-Arr-Ssl"

// IsSecureRequest reports whether the request arrived over TLS, either directly or
// through a trusted TLS-terminating proxy.
func IsSecureRequest(r *http.Request) bool {
	return r.TLS != nil || r.Header.Get(proxySSLHeader) == "true"
}

// RedirectURL builds the absolute callback URL for the request's scheme and host.
// The same value is sent on the authorize redirect and on the token exchange.
func RedirectURL(r *http.Request, callbackPath string) string {
	scheme := "http"
	if IsSecureRequest(r) {
		scheme = "https"
	}
	return scheme + "://" + r.Host + callbackPath
}

// originalTarget returns the request path joined with its query string, if any.
func originalTarget(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return r.URL.Path
	}
	return r.URL.Path + "?" + r.URL.RawQuery
}

// isLocalPath reports whether target is an absolute path on this host. Scheme-relative
// and backslash forms are refused because browsers treat them as other origins, and
// so is any control character, since browsers drop tab, CR and LF before parsing.
func isLocalPath(target string) bool {
	if strings.IndexFunc(target, isControl) >= 0 {
		return false
	}
	if !strings.HasPrefix(target, "/") {
		return false
	}
	if len(target) > 1 && (target[1] == '/' || target[1] == '\\') {
		return false
	}
	return true
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}
