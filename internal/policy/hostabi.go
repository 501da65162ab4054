package policy

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// ABIName is the stable host ABI version string exposed to guest modules.
const ABIName = "arqon_host_v1"

// hostModuleNamespace is the import namespace guests use for the ABI, per
// spec.md §4.4 / §6 ("Imports (from `env`)").
const hostModuleNamespace = "env"

// log severities understood by host_log; anything else maps to info.
const (
	levelError = 0
	levelWarn  = 1
	levelInfo  = 2
	levelDebug = 3
	levelTrace = 4
)

// errMemoryNotExported is returned when a guest call references a
// ptr/len range outside the instance's exported linear memory.
var errMemoryNotExported = fmt.Errorf("%s: guest memory access out of range", ABIName)

// buildHostModule registers host_log, host_get_header, and host_reject
// under the "env" namespace, following the deny-by-default posture of the
// teacher's WASI sandbox: nothing beyond these three calls is exposed to
// guest code, and every call bounds-checks before touching guest memory.
// headerLookup resolves a request header for host_get_header; a
// conformant implementation may always return not-found (see the Open
// Question in DESIGN.md) — the default passed by the engine does exactly
// that.
func buildHostModule(ctx context.Context, rt wazero.Runtime, logger *slog.Logger, headerLookup func(name string) (string, bool)) (api.Module, error) {
	if headerLookup == nil {
		headerLookup = func(string) (string, bool) { return "", false }
	}

	builder := rt.NewHostModuleBuilder(hostModuleNamespace)

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, level, ptr, length int32) int32 {
			data, ok := readMemory(mod, ptr, length)
			if !ok {
				logger.Warn("host_log: out-of-range guest memory access", "component", "policy")
				return 0
			}
			msg := strings.ToValidUTF8(string(data), "�")
			logger.Log(ctx, severityToSlogLevel(level), msg, "component", "policy", "source", "guest")
			return 0
		}).
		Export("host_log")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, namePtr, nameLen, _outPtr int32) int32 {
			name, ok := readMemory(mod, namePtr, nameLen)
			if !ok {
				return -1
			}
			val, found := headerLookup(string(name))
			if !found {
				return -1
			}
			// Header plumbing is reserved for a later extension (see
			// DESIGN.md Open Question); callers that do surface a value
			// are expected to write it via a guest-exported allocator in
			// a future ABI revision, not yet wired here.
			_ = val
			return -1
		}).
		Export("host_get_header")

	builder.NewFunctionBuilder().
		WithFunc(func(_ context.Context, mod api.Module, code, msgPtr, msgLen int32) {
			msg, ok := readMemory(mod, msgPtr, msgLen)
			if !ok {
				panic(errMemoryNotExported)
			}
			panic(fmt.Errorf("%s: guest policy reject (code=%d): %s", ABIName, code, string(msg)))
		}).
		Export("host_reject")

	return builder.Instantiate(ctx)
}

// readMemory bounds-checks ptr+len against the guest's exported memory and
// returns a copy — the host must never retain a slice into guest memory
// across a function boundary.
func readMemory(mod api.Module, ptr, length int32) ([]byte, bool) {
	if length < 0 || ptr < 0 {
		return nil, false
	}
	mem := mod.Memory()
	if mem == nil {
		return nil, false
	}
	data, ok := mem.Read(uint32(ptr), uint32(length))
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func severityToSlogLevel(level int32) slog.Level {
	switch level {
	case levelError:
		return slog.LevelError
	case levelWarn:
		return slog.LevelWarn
	case levelInfo:
		return slog.LevelInfo
	case levelDebug, levelTrace:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}
