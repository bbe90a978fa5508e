package server

import (
	"net/http"
	"strings"
)

// originPolicy decides which browser origins may call the API and open
// WebSockets. Localhost origins on any port are always allowed.
type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	p := originPolicy{allowed: make(map[string]struct{})}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch o {
		case "":
		case "*":
			p.any = true
		default:
			p.allowed[strings.TrimSuffix(o, "/")] = struct{}{}
		}
	}
	return p
}

// isLocalhostOrigin returns true if the origin is http(s)://localhost[:port]
// or the IPv4 loopback.
func isLocalhostOrigin(origin string) bool {
	for _, host := range []string{"localhost", "127.0.0.1"} {
		for _, scheme := range []string{"http://", "https://"} {
			prefix := scheme + host
			if origin == prefix || strings.HasPrefix(origin, prefix+":") {
				return true
			}
		}
	}
	return false
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any || isLocalhostOrigin(origin) {
		return true
	}
	_, ok := p.allowed[origin]
	return ok
}

// checkWebSocketOrigin accepts clients that send no Origin header, which
// browsers always send.
func (p originPolicy) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || p.allows(origin)
}

// middleware sets CORS headers for allowed origins and answers preflights.
func (p originPolicy) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if p.allows(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
