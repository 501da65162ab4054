// Package bus implements the bus bridge: the boundary between an accepted
// frame and the pub/sub backbone. Three construction modes exist — a live
// Redis-backed bridge, a disconnected bridge for fail-closed unit tests,
// and a recording bridge that captures publishes for assertions — so a
// publish is always observed, never silently dropped.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/novelbytelabs/ArqonBus/internal/mirror"
	"github.com/redis/go-redis/v9"
)

// ErrUnavailable is returned by every publish on a disconnected bridge.
var ErrUnavailable = errors.New("bus: connection unavailable")

// ShadowHeaderKey/Value mark a message as mirrored traffic.
const (
	ShadowHeaderKey   = "x-arqon-shadow"
	ShadowHeaderValue = "true"
)

// Headers is a simple key→value header set attached to a published message.
type Headers map[string]string

// Bridge publishes frames onto the bus. Implementations must never drop a
// publish silently: it reaches the client, is recorded, or returns an
// error.
type Bridge interface {
	Publish(ctx context.Context, subject string, payload []byte) error
	PublishWithHeaders(ctx context.Context, subject string, headers Headers, payload []byte) error
	MirrorPublish(ctx context.Context, originalSubject string, payload []byte) error
}

// envelope is the wire shape used over Redis pub/sub, which carries no
// native header channel of its own.
type envelope struct {
	Headers Headers `json:"headers,omitempty"`
	Payload []byte  `json:"payload"`
}

// ---- Connected (Redis) bridge -------------------------------------------

// RedisBridge publishes onto Redis pub/sub channels named after the bus
// subject, following the same client-construction idiom as the teacher's
// rate limiter (one shared *redis.Client, reused across calls).
type RedisBridge struct {
	client *redis.Client
}

// NewRedisBridge constructs a bridge backed by a live Redis client.
func NewRedisBridge(addr string) *RedisBridge {
	return &RedisBridge{client: redis.NewClient(&redis.Options{Addr: addr})}
}

// NewRedisBridgeFromClient wraps an already-configured client (used by
// tests against miniredis-style servers, or non-default auth/TLS setups).
func NewRedisBridgeFromClient(client *redis.Client) *RedisBridge {
	return &RedisBridge{client: client}
}

func (b *RedisBridge) Publish(ctx context.Context, subject string, payload []byte) error {
	return b.publish(ctx, subject, nil, payload)
}

func (b *RedisBridge) PublishWithHeaders(ctx context.Context, subject string, headers Headers, payload []byte) error {
	return b.publish(ctx, subject, headers, payload)
}

func (b *RedisBridge) MirrorPublish(ctx context.Context, originalSubject string, payload []byte) error {
	return b.publish(ctx, mirror.ShadowSubject(originalSubject), Headers{ShadowHeaderKey: ShadowHeaderValue}, payload)
}

func (b *RedisBridge) publish(ctx context.Context, subject string, headers Headers, payload []byte) error {
	data, err := json.Marshal(envelope{Headers: headers, Payload: payload})
	if err != nil {
		return fmt.Errorf("bus: encode envelope for %q: %w", subject, err)
	}
	if err := b.client.Publish(ctx, subject, data).Err(); err != nil {
		return fmt.Errorf("bus: publish to %q: %w", subject, err)
	}
	return nil
}

// ---- Disconnected bridge -------------------------------------------------

// DisconnectedBridge has no backing client; every publish fails. Required
// for proving fail-closed behavior in unit tests without standing up a
// Redis instance.
type DisconnectedBridge struct{}

func NewDisconnectedBridge() *DisconnectedBridge { return &DisconnectedBridge{} }

func (b *DisconnectedBridge) Publish(context.Context, string, []byte) error {
	return ErrUnavailable
}

func (b *DisconnectedBridge) PublishWithHeaders(context.Context, string, Headers, []byte) error {
	return ErrUnavailable
}

func (b *DisconnectedBridge) MirrorPublish(context.Context, string, []byte) error {
	return ErrUnavailable
}

// ---- Recording bridge -----------------------------------------------------

// PublishRecord is the tuple captured by RecordingBridge in place of an
// actual bus client.
type PublishRecord struct {
	Subject string
	Payload []byte
	Headers Headers
}

// RecordingBridge appends every publish to a mutex-guarded buffer,
// observable to tests via Records().
type RecordingBridge struct {
	mu      sync.Mutex
	records []PublishRecord
}

func NewRecordingBridge() *RecordingBridge {
	return &RecordingBridge{}
}

func (b *RecordingBridge) Publish(_ context.Context, subject string, payload []byte) error {
	return b.record(subject, nil, payload)
}

func (b *RecordingBridge) PublishWithHeaders(_ context.Context, subject string, headers Headers, payload []byte) error {
	return b.record(subject, headers, payload)
}

func (b *RecordingBridge) MirrorPublish(_ context.Context, originalSubject string, payload []byte) error {
	return b.record(mirror.ShadowSubject(originalSubject), Headers{ShadowHeaderKey: ShadowHeaderValue}, payload)
}

func (b *RecordingBridge) record(subject string, headers Headers, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.records = append(b.records, PublishRecord{Subject: subject, Payload: cp, Headers: headers})
	return nil
}

// Records returns a snapshot of everything published so far, in order.
func (b *RecordingBridge) Records() []PublishRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishRecord, len(b.records))
	copy(out, b.records)
	return out
}
