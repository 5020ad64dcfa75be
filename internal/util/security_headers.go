package util

import (
	"net/http"
	"strings"
)

const apiCSP = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"

// pageCSP builds the policy for rendered pages. imgOrigins extend img-src,
// typically with the object store's public origin when it is served over
// plain http.
func pageCSP(imgOrigins []string) string {
	img := []string{"'self'", "https:", "data:"}
	for _, origin := range imgOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" || strings.ContainsAny(origin, ";,' ") {
			continue
		}
		img = append(img, origin)
	}
	return "default-src 'self'; img-src " + strings.Join(img, " ") + "; style-src 'self'; script-src 'self'; " +
		"connect-src 'self'; form-action 'self'; frame-ancestors 'none'; base-uri 'self'"
}

// WithSecurityHeaders adds security response headers. JSON routes under
// /api/ get a deny-all CSP; pages may load their own scripts and styles
// and images from https, data URIs and imgOrigins.
func WithSecurityHeaders(next http.Handler, imgOrigins ...string) http.Handler {
	pagePolicy := pageCSP(imgOrigins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")
		if strings.HasPrefix(r.URL.Path, "/api/") {
			h.Set("Content-Security-Policy", apiCSP)
		} else {
			h.Set("Content-Security-Policy", pagePolicy)
		}

		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}
