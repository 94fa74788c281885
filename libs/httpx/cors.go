package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy configures WithCORS. An origin of "*" matches everything.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS answers preflight requests from allowed origins and decorates
// their actual requests. With no allowed origins it does nothing.
func WithCORS(p CORSPolicy) Middleware {
	origins := map[string]bool{}
	wildcard := false
	for _, o := range p.AllowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		switch o {
		case "":
		case "*":
			wildcard = true
		default:
			origins[o] = true
		}
	}
	if len(origins) == 0 && !wildcard {
		return func(next http.Handler) http.Handler { return next }
	}

	methods := joinHeader(p.AllowedMethods)
	allowHeaders := joinHeader(p.AllowedHeaders)
	exposeHeaders := joinHeader(p.ExposedHeaders)
	maxAge := ""
	if p.MaxAge > 0 {
		maxAge = strconv.Itoa(int(p.MaxAge.Seconds()))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin == "" || !(wildcard || origins[strings.ToLower(origin)]) {
				next.ServeHTTP(w, r)
				return
			}

			// Credentials forbid a literal "*" in the response.
			if wildcard && !p.AllowCredentials {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
			}
			if p.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if methods != "" {
					h.Set("Access-Control-Allow-Methods", methods)
				}
				if allowHeaders != "" {
					h.Set("Access-Control-Allow-Headers", allowHeaders)
				}
				if maxAge != "" {
					h.Set("Access-Control-Max-Age", maxAge)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			if exposeHeaders != "" {
				h.Set("Access-Control-Expose-Headers", exposeHeaders)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func joinHeader(values []string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
