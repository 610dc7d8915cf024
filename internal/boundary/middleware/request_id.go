// Package middleware provides the REST boundary's cross-cutting HTTP
// middleware: request ID propagation, structured logging, CORS, the
// three-method auth chain, and token-bucket rate limiting.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/freezegate/freezegate/internal/logging"
)

// RequestIDHeader is the header read from and written to on every request.
const RequestIDHeader = "X-Request-ID"

// RequestID generates or propagates a request ID into context and the
// response header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		r = r.WithContext(logging.WithRequestID(r.Context(), id))
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}
