package middleware

import (
	"fmt"
	"net/http"
	"time"
)

// CacheControl marks successful GET responses as publicly cacheable for
// maxAge. Responses flagged with X-Search-Degraded are marked no-store.
func CacheControl(maxAge time.Duration) func(http.Handler) http.Handler {
	value := fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}
			rec := newStatusRecorder(w)
			rec.beforeWrite = func(h http.Header) {
				if h.Get("X-Search-Degraded") != "" || rec.status >= http.StatusBadRequest {
					h.Set("Cache-Control", "no-store")
					return
				}
				h.Set("Cache-Control", value)
			}
			next.ServeHTTP(rec, r)
		})
	}
}
