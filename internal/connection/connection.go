// Package connection implements the connection actor (C7): the
// per-socket state machine that sequences schema validation, policy
// validation, publish, echo, and optional mirroring for every inbound
// binary frame. Each actor owns its socket, claims, and trace id
// exclusively — no other actor can reach into this state — following the
// gorilla/websocket per-connection-goroutine idiom the pack uses in
// _examples/Generativebots-ocx-backend-go-svc/internal/websocket/dag_streamer.go.
package connection

import (
	"context"
	"log/slog"
	"regexp"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/novelbytelabs/ArqonBus/internal/auth"
	"github.com/novelbytelabs/ArqonBus/internal/bus"
	"github.com/novelbytelabs/ArqonBus/internal/mirror"
	"github.com/novelbytelabs/ArqonBus/internal/policy"
	"github.com/novelbytelabs/ArqonBus/internal/schema"
)

// tenantTokenRe matches the characters allowed unescaped in the inbound
// subject's tenant token.
var tenantTokenRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// NormalizeTenant replaces every character outside [A-Za-z0-9_-] with '_'.
func NormalizeTenant(tenantID string) string {
	return tenantTokenRe.ReplaceAllString(tenantID, "_")
}

// InboundSubject returns the tenant-scoped publish subject, guaranteed to
// contain exactly four dot-separated tokens: in.t.<tenant>.raw.
func InboundSubject(tenantID string) string {
	return "in.t." + NormalizeTenant(tenantID) + ".raw"
}

// Actor owns one WebSocket connection for its entire lifetime: the
// socket, the shared handles it was constructed with, the frozen claims
// for this session, and a per-session trace id. Frames on this
// connection are processed strictly in arrival order.
type Actor struct {
	conn    *websocket.Conn
	bridge  bus.Bridge
	mirror  mirror.Config
	claims  auth.Claims
	policy  *policy.Engine
	schema  *schema.Validator
	traceID string
	subject string
	logger  *slog.Logger
}

// New constructs an actor for an already-upgraded socket. It generates a
// fresh 128-bit trace id for the session.
func New(conn *websocket.Conn, bridge bus.Bridge, mirrorCfg mirror.Config, claims auth.Claims, policyEngine *policy.Engine, validator *schema.Validator, logger *slog.Logger) *Actor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Actor{
		conn:    conn,
		bridge:  bridge,
		mirror:  mirrorCfg,
		claims:  claims,
		policy:  policyEngine,
		schema:  validator,
		traceID: uuid.NewString(),
		subject: InboundSubject(claims.TenantID),
		logger:  logger,
	}
}

// TraceID returns the session's trace identifier.
func (a *Actor) TraceID() string { return a.traceID }

// Subject returns the tenant-scoped inbound publish subject this actor
// will use for every accepted frame.
func (a *Actor) Subject() string { return a.subject }

// Run drives the actor's read loop until the socket closes or errors.
// Frames are handled strictly in arrival order, with no intra-connection
// parallelism.
func (a *Actor) Run(ctx context.Context) {
	for {
		kind, data, err := a.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warn("connection: socket error", "component", "connection", "trace_id", a.traceID, "error", err)
			}
			return
		}

		switch kind {
		case websocket.BinaryMessage:
			a.handleBinaryFrame(ctx, data)
		case websocket.TextMessage:
			a.handleTextFrame(data)
		case websocket.CloseMessage:
			return
		}
	}
}

// handleBinaryFrame implements the pipeline from spec.md §2/§4.7:
// schema validate → policy validate → publish inbound → echo → mirror.
// Any failure aborts the frame without echo or mirror; the connection
// stays open.
func (a *Actor) handleBinaryFrame(ctx context.Context, payload []byte) {
	if err := a.schema.Validate(payload); err != nil {
		a.logger.Warn("connection: schema validation failed, dropping frame",
			"component", "connection", "trace_id", a.traceID, "subject", a.subject, "error", err)
		return
	}

	allowed, err := a.policy.Validate(ctx, payload)
	if err != nil {
		a.logger.Warn("connection: policy evaluation errored, dropping frame",
			"component", "connection", "trace_id", a.traceID, "subject", a.subject, "error", err)
		return
	}
	if !allowed {
		a.logger.Warn("connection: policy denied frame",
			"component", "connection", "trace_id", a.traceID, "subject", a.subject)
		return
	}

	if err := a.bridge.Publish(ctx, a.subject, payload); err != nil {
		a.logger.Warn("connection: inbound publish failed, dropping frame",
			"component", "connection", "trace_id", a.traceID, "subject", a.subject, "error", err)
		return
	}

	if err := a.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
		a.logger.Warn("connection: echo write failed",
			"component", "connection", "trace_id", a.traceID, "error", err)
		return
	}

	if percent, ok := mirror.MatchPercent(a.mirror, a.subject); ok && mirror.ShouldMirror(a.traceID, percent) {
		if err := a.bridge.MirrorPublish(ctx, a.subject, payload); err != nil {
			a.logger.Warn("connection: mirror publish failed",
				"component", "connection", "trace_id", a.traceID, "subject", a.subject, "error", err)
		}
	}
}

// handleTextFrame is a diagnostic passthrough: echo back verbatim, no
// schema/policy/publish/mirror involvement.
func (a *Actor) handleTextFrame(payload []byte) {
	if err := a.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		a.logger.Warn("connection: text echo failed", "component", "connection", "trace_id", a.traceID, "error", err)
	}
}
