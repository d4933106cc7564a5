package middleware

import (
	"net/http"
	"os"
	"strings"
)

// allowedOrigins reads the comma-separated WEB_ALLOWED_ORIGINS env var
// into a set. Localhost origins are handled separately and need not be
// listed.
func allowedOrigins() map[string]struct{} {
	set := make(map[string]struct{})
	for origin := range strings.SplitSeq(os.Getenv("WEB_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			set[origin] = struct{}{}
		}
	}
	return set
}

// isLocalhostOrigin reports whether origin is http(s)://localhost on
// any port.
func isLocalhostOrigin(origin string) bool {
	for _, scheme := range []string{"http://", "https://"} {
		rest, ok := strings.CutPrefix(origin, scheme)
		if !ok {
			continue
		}
		if rest == "localhost" || strings.HasPrefix(rest, "localhost:") {
			return true
		}
	}
	return false
}

func isOriginAllowed(origin string, allowed map[string]struct{}) bool {
	if origin == "" {
		return false
	}
	// Localhost is always trusted so local frontends work without
	// configuration.
	if isLocalhostOrigin(origin) {
		return true
	}
	_, ok := allowed[origin]
	return ok
}

// CORS returns middleware that answers cross-origin requests for
// whitelisted origins. The whitelist comes from WEB_ALLOWED_ORIGINS;
// localhost is always permitted. Preflight OPTIONS requests are
// answered without reaching the handler chain.
func CORS() func(http.Handler) http.Handler {
	allowed := allowedOrigins()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); isOriginAllowed(origin, allowed) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Requested-With")
			w.Header().Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
