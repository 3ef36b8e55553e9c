package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Defaults cover the whole API surface: JSON endpoints authenticated with
// bearer tokens. No cookies are involved, so credentialed CORS is never
// emitted and a wildcard origin stays safe.
var (
	defaultCORSMethods = []string{
		http.MethodGet, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions,
	}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", "X-Request-Id"}
)

// CORSPolicy lists the origins allowed to call the API from a browser.
// Methods, headers and max-age fall back to the API-wide defaults when unset.
type CORSPolicy struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         time.Duration
}

func (p CORSPolicy) allows(origin string) (string, bool) {
	for _, candidate := range p.AllowedOrigins {
		if candidate == "*" {
			return "*", true
		}
		if strings.EqualFold(candidate, origin) {
			return origin, true
		}
	}
	return "", false
}

// WithCORS answers browser cross-origin requests for the configured origins,
// including preflights. With no origins configured it is a no-op.
func WithCORS(p CORSPolicy) Middleware {
	p.AllowedOrigins = trimList(p.AllowedOrigins)
	if len(p.AllowedOrigins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if len(p.AllowedMethods) == 0 {
		p.AllowedMethods = defaultCORSMethods
	}
	if len(p.AllowedHeaders) == 0 {
		p.AllowedHeaders = defaultCORSHeaders
	}
	if p.MaxAge <= 0 {
		p.MaxAge = 10 * time.Minute
	}

	methods := strings.Join(trimList(p.AllowedMethods), ", ")
	headers := strings.Join(trimList(p.AllowedHeaders), ", ")
	maxAge := strconv.Itoa(int(p.MaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Add("Vary", "Origin")

			allowOrigin, ok := p.allows(origin)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			h.Set("Access-Control-Allow-Origin", allowOrigin)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func trimList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
