// Package proxy implements the local registry-rewriting intercept proxy:
// an HTTP server that package managers are pointed at directly (see
// SPEC_FULL.md §4.2, Option (a)), forwards every request upstream, and
// rewrites metadata documents in flight so no publication newer than a
// cutoff is visible.
package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/serving"
	"github.com/gorilla/mux"
	"github.com/pkgbisect/pkgbisect/pkg/timeline"
)

// Config controls one Server instance.
type Config struct {
	// Upstream is the real registry this proxy forwards to, e.g.
	// https://registry.npmjs.org.
	Upstream string
	// Cutoff is the time after which publications are hidden.
	Cutoff time.Time
	// Timeline accumulates every publication event this proxy observes.
	Timeline *timeline.Timeline
	// Client is the HTTP client used to reach Upstream. If nil, a client
	// with a 30s timeout is used.
	Client *http.Client
}

// Server is a wrapper around serving.Server, mirroring the teacher's
// handler.Server: a thin adapter that adds graceful start/stop around a
// plain http.Handler.
type Server struct {
	svr  *serving.Server
	port string
}

// New builds a Server listening on port. The probe runner needs to know
// this address ahead of time to configure the package manager's registry
// override, so callers are expected to pass a concrete port rather than
// "0" (serving.New binds the exact port string it is given).
func New(port string, cfg Config) (*Server, http.Handler, error) {
	svr, err := serving.New(port)
	if err != nil {
		return nil, nil, fmt.Errorf("create proxy listener: %w", err)
	}

	h, err := newHandler(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create proxy handler: %w", err)
	}

	return &Server{svr: svr, port: port}, withLogger(h.Mux()), nil
}

// Start blocks serving h until ctx is closed, then gracefully shuts down.
func (s *Server) Start(ctx context.Context, h http.Handler) error {
	if err := s.svr.StartHTTPHandler(ctx, h); err != nil {
		return fmt.Errorf("serve proxy: %w", err)
	}
	return nil
}

// Addr returns the address the package manager should be pointed at.
func (s *Server) Addr() string {
	return "127.0.0.1:" + s.port
}

// withLogger mirrors the teacher's Loggeer middleware, attaching a
// PKGBISECT_-scoped slog.Logger to every request's context.
func withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(logging.WithLogger(r.Context(), logging.NewFromEnv("PKGBISECT_")))
		next.ServeHTTP(w, r)
	})
}

// router builds the proxy's tiny route table: a health check and a
// catch-all that forwards and rewrites everything else.
func router(h *handler) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/-/ping", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	})
	r.PathPrefix("/").HandlerFunc(h.ServeHTTP)
	return r
}
