package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/carbonledger/internal/api/response"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR and logs the stack
// under the request's ID. http.ErrAbortHandler is re-raised for net/http.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			attrs := append(requestAttrs(r), "panic", rvr, "stack", string(debug.Stack()))
			slog.Error("panic recovered", attrs...)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred")
		}()
		next.ServeHTTP(w, r)
	})
}
