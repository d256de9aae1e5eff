package chi

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
)

// ReindexAuthMiddleware guards the rebuild trigger. With tokens configured a
// Bearer token is required: a missing header is 401, a wrong token 403.
// Without tokens only loopback callers are let through.
func ReindexAuthMiddleware(tokens []string) func(http.Handler) http.Handler {
	var valid [][]byte
	for _, t := range tokens {
		if t != "" {
			valid = append(valid, []byte(t))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(valid) == 0 {
				if !isLoopback(r.RemoteAddr) {
					writeError(w, http.StatusForbidden, CodeForbidden,
						"reindex without a token is only allowed from localhost")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			auth := r.Header.Get("Authorization")
			if auth == "" {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing authorization header")
				return
			}

			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(auth, bearerPrefix) {
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, "authorization header must use Bearer scheme")
				return
			}

			token := []byte(strings.TrimSpace(auth[len(bearerPrefix):]))
			for _, v := range valid {
				if subtle.ConstantTimeCompare(token, v) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, CodeForbidden, "invalid token")
		})
	}
}

// isLoopback reports whether addr (host:port or bare host) is a local caller.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
