// Package middleware implements the request middleware (C8): a
// non-WebSocket HTTP gate that runs a bounded-size request body through
// the policy engine before letting a request reach its handler. It
// follows the teacher's NewMiddleware(validator) composition shape from
// core/pkg/auth/middleware.go, generalized from JWT presence to a policy
// engine verdict, and the allow/deny/error trichotomy from
// core/pkg/firewall/firewall.go.
package middleware

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/novelbytelabs/ArqonBus/internal/policy"
)

// DefaultMaxBodyBytes is the request body cap used when New is given a
// zero bodyCapBytes, matching spec.md §4.8/§5's fixed 2 MiB limit.
const DefaultMaxBodyBytes = 2 << 20

// New returns middleware that reads the request body (up to
// bodyCapBytes, or DefaultMaxBodyBytes if zero), evaluates it through
// engine, and either forwards the request unchanged (body rebuilt,
// since http.Request.Body is a single-read stream) or responds 403/500.
// A nil engine allows everything, matching policy.Engine's own
// no-module-loaded behavior.
func New(engine *policy.Engine, bodyCapBytes int64, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if bodyCapBytes <= 0 {
		bodyCapBytes = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := readBounded(r.Body, bodyCapBytes)
			if err != nil {
				logger.Error("middleware: body read failed", "component", "middleware", "path", r.URL.Path, "error", err)
				http.Error(w, "request body too large or unreadable", http.StatusInternalServerError)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := engine.Validate(r.Context(), body)
			if err != nil {
				logger.Error("middleware: policy evaluation errored", "component", "middleware", "path", r.URL.Path, "error", err)
				http.Error(w, "policy evaluation failed", http.StatusInternalServerError)
				return
			}
			if !allowed {
				logger.Warn("middleware: policy denied request", "component", "middleware", "path", r.URL.Path)
				http.Error(w, "forbidden by policy", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

var errBodyTooLarge = errors.New("middleware: request body exceeds limit")

// readBounded reads at most limit+1 bytes from r and fails if that many
// were available, so a body of exactly limit bytes succeeds but anything
// larger is rejected rather than silently truncated.
func readBounded(r io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(r, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}
