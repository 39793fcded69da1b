// Package requesttime pins one clock reading per HTTP request. Every
// timestamp a request produces (history entries, payment recordedAt, period
// bounds) derives from the same instant.
package requesttime

import (
	"net/http"
	"time"

	"contrava/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request and
// stores it in the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
