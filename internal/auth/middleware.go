// Package auth guards the SSE endpoints of redx serve.
package auth

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/sha1n/redx-indexer/internal/config"
)

// APIKeyHeader carries the API key. A bearer token in the Authorization
// header is accepted as well.
const APIKeyHeader = "X-API-Key"

// publicPaths serve health checks and metric scrapes without credentials.
var publicPaths = []string{"/health", "/metrics"}

func isPublic(path string) bool {
	return slices.Contains(publicPaths, path)
}

// authenticator reports whether a request carries valid credentials.
type authenticator func(r *http.Request) bool

// NewMiddleware creates the authentication middleware for settings.
func NewMiddleware(settings config.AuthSettings) (func(http.Handler) http.Handler, error) {
	switch settings.Type {
	case config.AuthTypeNone, "":
		return func(next http.Handler) http.Handler { return next }, nil

	case config.AuthTypeBasic:
		if settings.Basic.Username == "" || settings.Basic.Password == "" {
			return nil, fmt.Errorf("basic auth requires non-empty username and password")
		}
		return guard(basicAuth(settings.Basic), `Basic realm="redx"`), nil

	case config.AuthTypeAPIKey:
		if len(settings.APIKeys) == 0 {
			return nil, fmt.Errorf("apikey auth requires at least one API key")
		}
		return guard(apiKeyAuth(settings.APIKeys), ""), nil

	default:
		return nil, fmt.Errorf("unknown auth type: %s", settings.Type)
	}
}

// guard rejects unauthenticated requests to non-public paths. challenge,
// when set, is sent in the WWW-Authenticate header.
func guard(ok authenticator, challenge string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublic(r.URL.Path) || ok(r) {
				next.ServeHTTP(w, r)
				return
			}
			if challenge != "" {
				w.Header().Set("WWW-Authenticate", challenge)
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}

func equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func basicAuth(creds config.BasicAuthSettings) authenticator {
	return func(r *http.Request) bool {
		user, pass, ok := r.BasicAuth()
		// Both comparisons always run.
		userOK := equal(user, creds.Username)
		passOK := equal(pass, creds.Password)
		return ok && userOK && passOK
	}
}

func apiKeyAuth(keys []string) authenticator {
	return func(r *http.Request) bool {
		key := requestAPIKey(r)
		if key == "" {
			return false
		}
		return slices.ContainsFunc(keys, func(k string) bool { return equal(key, k) })
	}
}

// requestAPIKey returns the key from APIKeyHeader or a bearer token.
func requestAPIKey(r *http.Request) string {
	if key := r.Header.Get(APIKeyHeader); key != "" {
		return key
	}
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
