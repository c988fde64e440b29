package middleware

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/kiranshivaraju/carbonledger/internal/api/response"
)

// RequireJSON rejects request bodies that are not application/json with a 415.
// Requests without a body pass through so handlers can report missing fields.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || !strings.EqualFold(mediaType, "application/json") {
			response.Error(w, http.StatusUnsupportedMediaType,
				"UNSUPPORTED_MEDIA_TYPE", "Content-Type must be application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Timeout cancels the request context after d. If the deadline has passed by the
// time the handler first writes, or the handler returns without writing, the
// client gets a 504 TIMEOUT instead of whatever the handler produced.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			tw := &timeoutWriter{ResponseWriter: w, ctx: ctx}
			next.ServeHTTP(tw, r.WithContext(ctx))

			if !tw.wroteHeader && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				tw.WriteHeader(http.StatusGatewayTimeout)
			}
		})
	}
}

type timeoutWriter struct {
	http.ResponseWriter
	ctx         context.Context
	wroteHeader bool
	timedOut    bool
}

func (tw *timeoutWriter) WriteHeader(code int) {
	if tw.wroteHeader {
		return
	}
	tw.wroteHeader = true
	if errors.Is(tw.ctx.Err(), context.DeadlineExceeded) {
		tw.timedOut = true
		response.Error(tw.ResponseWriter, http.StatusGatewayTimeout, "TIMEOUT", "Request timed out")
		return
	}
	tw.ResponseWriter.WriteHeader(code)
}

// Write drops the handler's body once the timeout response has been sent.
func (tw *timeoutWriter) Write(b []byte) (int, error) {
	if !tw.wroteHeader {
		tw.WriteHeader(http.StatusOK)
	}
	if tw.timedOut {
		return len(b), nil
	}
	return tw.ResponseWriter.Write(b)
}
