package server

import (
	"context"
	"net/http"
	"time"
)

// TimeoutMiddleware caps each request's context at timeout. Cancellation is
// cooperative: handlers observe it through ctx.Done(), nothing is forcibly
// terminated.
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
