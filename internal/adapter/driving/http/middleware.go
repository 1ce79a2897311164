package httphandler

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// AdminSecretHeader carries the admin secret on API requests.
const AdminSecretHeader = "X-Admin-Secret"

type requestIDKey struct{}

// RequestID returns the correlation id assigned by requestIDMiddleware, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader captures the status code and delegates to the embedded writer.
func (sw *statusWriter) WriteHeader(status int) {
	sw.status = status
	sw.ResponseWriter.WriteHeader(status)
}

// requestIDMiddleware assigns every request a correlation id, reusing a
// well-formed incoming X-Request-Id.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// loggingMiddleware logs each HTTP request with method, path, status, and duration.
// The query string is omitted because it may carry the admin secret, and
// matched requests log their route pattern so license keys in the path stay out.
func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		logger.Info("http request",
			"method", r.Method,
			"path", routePath(r),
			"status", sw.status,
			"duration", time.Since(start).Round(time.Microsecond),
			"request_id", RequestID(r.Context()),
		)
	})
}

// routePath returns the path of the route pattern that served r, such as
// /api/v1/licenses/{key}, or the request path when no route matched.
func routePath(r *http.Request) string {
	if i := strings.Index(r.Pattern, "/"); i >= 0 {
		return r.Pattern[i:]
	}
	return r.URL.Path
}

// recoveryMiddleware recovers from panics in HTTP handlers, logs the error,
// and returns a 500 response.
func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				logger.Error("panic recovered",
					"panic", v,
					"path", r.URL.Path,
					"request_id", RequestID(r.Context()),
				)
				writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// AdminSecret extracts the admin secret from the X-Admin-Secret header,
// falling back to the "secret" query parameter.
func AdminSecret(r *http.Request) string {
	if s := r.Header.Get(AdminSecretHeader); s != "" {
		return s
	}
	return r.URL.Query().Get("secret")
}

// SecretMatches compares a presented secret in constant time. An empty
// expected secret never matches.
func SecretMatches(expected, presented string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// requireAdmin rejects requests that do not present the admin secret.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !SecretMatches(h.adminSecret, AdminSecret(r)) {
			h.logger.Warn("admin request rejected",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
				"request_id", RequestID(r.Context()),
			)
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}
