// Package policy implements the sandboxed policy engine (C5) and its host
// ABI (C4): untrusted WebAssembly guest modules are instantiated under
// bounded fuel and memory, and invoked through a stable host ABI
// (arqon_host_v1). The engine is built on wazero, the pure-Go WebAssembly
// runtime the teacher already uses for its own sandbox
// (core/pkg/runtime/sandbox/wasi_sandbox.go), generalized here from a
// WASI-stdio program to an ABI-exporting policy_check guest.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tetratelabs/wazero"
)

// PolicyCheckExport is the guest export the engine invokes per validate
// call: policy_check(ptr int32, len int32) -> int32, where 0 = allow.
const PolicyCheckExport = "policy_check"

// HostConfig bounds a single guest invocation.
type HostConfig struct {
	// FuelLimit is an instruction-budget unit. wazero has no native
	// instruction-fuel metering (unlike wasmtime, which the spec's
	// "fuel" vocabulary is drawn from); this engine converts FuelLimit
	// into a wall-clock budget via FuelUnitDuration, the same way the
	// teacher's own sandbox.go bounds CPU time with a context deadline
	// instead of an instruction counter. See DESIGN.md for the tradeoff.
	FuelLimit uint64
	// MemoryLimitBytes is the guest linear-memory ceiling.
	MemoryLimitBytes int64
}

// DefaultHostConfig matches spec.md §4.5's defaults: ~10,000 fuel units
// (~5ms on commodity hardware) and 4 MiB of guest memory.
var DefaultHostConfig = HostConfig{
	FuelLimit:        10_000,
	MemoryLimitBytes: 4 * 1024 * 1024,
}

// FuelUnitDuration is the wall-clock cost assigned to one fuel unit so
// that DefaultHostConfig.FuelLimit resolves to ~5ms, matching the spec's
// stated target.
const FuelUnitDuration = 500 * time.Nanosecond

// fuelToDuration converts a fuel budget into the deadline the engine
// enforces on a single guest invocation.
func fuelToDuration(fuel uint64) time.Duration {
	if fuel == 0 {
		return 0
	}
	return time.Duration(fuel) * FuelUnitDuration
}

var (
	// ErrPayloadTooLarge is returned when the payload exceeds the
	// configured memory ceiling.
	ErrPayloadTooLarge = errors.New("policy: payload exceeds memory_limit_bytes")
	// ErrExceedsModuleMemory is returned when the payload is larger than
	// the guest's current linear memory, independent of the ceiling.
	ErrExceedsModuleMemory = errors.New("policy: payload exceeds module's current memory")
)

// Engine holds the compiled wazero runtime configuration, an optional
// compiled module, and the host-config bounds. It is deliberately
// Clone-cheap: the runtime and compiled module are shared, reference-
// counted-by-GC handles, and the mutable guest store is created fresh per
// call (see Validate), so concurrent callers never share guest state.
type Engine struct {
	runtime wazero.Runtime
	module  atomic.Pointer[wazero.CompiledModule]
	cfg     HostConfig
	logger  *slog.Logger
}

// NewEngine constructs an Engine with fuel accounting (approximated via
// wall-clock budget, see HostConfig) and asynchronous instantiation
// enabled implicitly by wazero's default Call/Instantiate behavior, which
// already honors context cancellation.
func NewEngine(ctx context.Context, cfg HostConfig, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rtCfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cfg.MemoryLimitBytes > 0 {
		pages := uint32(cfg.MemoryLimitBytes / (64 * 1024))
		if pages == 0 {
			pages = 1
		}
		rtCfg = rtCfg.WithMemoryLimitPages(pages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtCfg)

	if _, err := buildHostModule(ctx, rt, logger, nil); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("policy: failed to instantiate host ABI %s: %w", ABIName, err)
	}

	return &Engine{runtime: rt, cfg: cfg, logger: logger}, nil
}

// Clone returns a cheap shared handle to the same engine: the runtime,
// host ABI, and currently-loaded compiled module are all shared. Cloning
// never duplicates the compiled artifact.
func (e *Engine) Clone() *Engine {
	clone := &Engine{runtime: e.runtime, cfg: e.cfg, logger: e.logger}
	clone.module.Store(e.module.Load())
	return clone
}

// LoadModule compiles the wasm bytes at path and atomically swaps them in
// as the module future Validate calls use. There is no hot-reload
// semantics beyond "the next Validate call sees the new module" — in
// flight calls keep using whatever module they already instantiated.
func (e *Engine) LoadModule(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("policy: read module %q: %w", path, err)
	}
	compiled, err := e.runtime.CompileModule(ctx, raw)
	if err != nil {
		return fmt.Errorf("policy: compile module %q: %w", path, err)
	}
	e.module.Store(&compiled)
	return nil
}

// Validate runs the loaded guest module's policy_check export against
// payload and reports whether it allows the frame. If no module is
// loaded, every payload is allowed. Any trap, fuel exhaustion (modeled as
// a deadline), missing export, or memory violation surfaces as an error;
// callers must treat a non-nil error the same as a deny (fail closed).
func (e *Engine) Validate(ctx context.Context, payload []byte) (bool, error) {
	compiledPtr := e.module.Load()
	if compiledPtr == nil {
		return true, nil
	}
	compiled := *compiledPtr

	callCtx := ctx
	if d := fuelToDuration(e.cfg.FuelLimit); d > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	modCfg := wazero.NewModuleConfig().WithName("policy-call-" + uuid.NewString())
	mod, err := e.runtime.InstantiateModule(callCtx, compiled, modCfg)
	if err != nil {
		if callCtx.Err() != nil {
			return false, fmt.Errorf("policy: fuel exhausted instantiating module: %w", callCtx.Err())
		}
		return false, fmt.Errorf("policy: instantiate module: %w", err)
	}
	defer func() { _ = mod.Close(callCtx) }()

	if len(payload) > 0 {
		if e.cfg.MemoryLimitBytes > 0 && int64(len(payload)) > e.cfg.MemoryLimitBytes {
			return false, ErrPayloadTooLarge
		}
		mem := mod.Memory()
		if mem == nil {
			return false, errMemoryNotExported
		}
		if uint64(len(payload)) > uint64(mem.Size()) {
			return false, ErrExceedsModuleMemory
		}
		if ok := mem.Write(0, payload); !ok {
			return false, errMemoryNotExported
		}
	}

	fn := mod.ExportedFunction(PolicyCheckExport)
	if fn == nil {
		return false, fmt.Errorf("policy: guest module missing export %q", PolicyCheckExport)
	}

	results, err := fn.Call(callCtx, 0, uint64(len(payload)))
	if err != nil {
		if callCtx.Err() != nil {
			return false, fmt.Errorf("policy: fuel exhausted during policy_check: %w", callCtx.Err())
		}
		return false, fmt.Errorf("policy: policy_check trapped: %w", err)
	}
	if len(results) != 1 {
		return false, fmt.Errorf("policy: policy_check returned %d results, want 1", len(results))
	}

	return results[0] == 0, nil
}

// Close shuts down the wazero runtime, freeing the host module, any
// compiled guest module, and all instances.
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
