// Package app composes Shield's subsystems (C9): the bus bridge, policy
// engine, mirror config, and schema validator handles, wired into an
// http.ServeMux the way the teacher's console.Start assembles its own
// route table in core/pkg/console/server.go.
package app

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/novelbytelabs/ArqonBus/internal/auth"
	"github.com/novelbytelabs/ArqonBus/internal/bus"
	"github.com/novelbytelabs/ArqonBus/internal/connection"
	"github.com/novelbytelabs/ArqonBus/internal/httpx"
	"github.com/novelbytelabs/ArqonBus/internal/middleware"
	"github.com/novelbytelabs/ArqonBus/internal/mirror"
	"github.com/novelbytelabs/ArqonBus/internal/policy"
	"github.com/novelbytelabs/ArqonBus/internal/schema"
)

// State holds every handle the router needs to serve a request: the bus
// bridge, the policy engine, the mirror configuration, the schema
// validator, and the auth configuration used to authenticate an
// upgrade.
type State struct {
	Bridge    bus.Bridge
	Policy    *policy.Engine
	Mirror    mirror.Config
	Validator *schema.Validator
	Auth      auth.Config
	Logger    *slog.Logger

	// RequestBodyCapBytes bounds the /inspect middleware's body read. Zero
	// falls back to middleware.DefaultMaxBodyBytes.
	RequestBodyCapBytes int64
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRouter builds the http.ServeMux Shield serves: GET /ws for the
// WebSocket upgrade, and POST /inspect gated by the request middleware,
// matching spec.md §6's external surface.
func NewRouter(state *State) *http.ServeMux {
	logger := state.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", state.handleUpgrade)

	inspectHandler := middleware.New(state.Policy, state.RequestBodyCapBytes, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	mux.Handle("/inspect", inspectHandler)

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return mux
}

// handleUpgrade authenticates the request, then upgrades and hands the
// connection to a fresh connection.Actor. Per spec.md §8 invariant 1, any
// request lacking a valid bearer token is refused with 401 and no actor
// is ever created.
func (s *State) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	claims, err := auth.ClaimsFromHeaders(r.Header.Get("Authorization"), s.Auth)
	if err != nil {
		s.logger().Warn("app: upgrade refused", "component", "app", "path", r.URL.Path, "error", err)
		httpx.WriteUnauthorized(w, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("app: websocket upgrade failed", "component", "app", "error", err)
		return
	}

	actor := connection.New(conn, s.Bridge, s.Mirror, claims, s.Policy, s.Validator, s.logger())
	s.logger().Info("app: connection accepted", "component", "app", "trace_id", actor.TraceID(), "subject", actor.Subject())
	actor.Run(r.Context())
}

func (s *State) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
