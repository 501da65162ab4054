package policy_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/novelbytelabs/ArqonBus/internal/policy"
	"github.com/novelbytelabs/ArqonBus/internal/wasmtest"
	"github.com/stretchr/testify/require"
)

func writeWasm(t *testing.T, bytes []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, bytes, 0o600))
	return path
}

func newEngine(t *testing.T, cfg policy.HostConfig) *policy.Engine {
	t.Helper()
	ctx := context.Background()
	e, err := policy.NewEngine(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return e
}

func TestValidate_NoModuleLoaded_AllowsEverything(t *testing.T) {
	e := newEngine(t, policy.DefaultHostConfig)
	allowed, err := e.Validate(context.Background(), []byte{1, 2, 3})
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestValidate_DenyIfEmpty(t *testing.T) {
	e := newEngine(t, policy.DefaultHostConfig)
	require.NoError(t, e.LoadModule(context.Background(), writeWasm(t, wasmtest.DenyIfEmpty)))

	allowed, err := e.Validate(context.Background(), []byte{0x01, 0x02, 0x03})
	require.NoError(t, err)
	require.True(t, allowed, "non-empty payload must be allowed")

	allowed, err = e.Validate(context.Background(), []byte{})
	require.NoError(t, err)
	require.False(t, allowed, "empty payload must be denied")
}

func TestValidate_AlwaysAllow(t *testing.T) {
	e := newEngine(t, policy.DefaultHostConfig)
	require.NoError(t, e.LoadModule(context.Background(), writeWasm(t, wasmtest.AlwaysAllow)))

	allowed, err := e.Validate(context.Background(), []byte("anything"))
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestValidate_HostReject_SurfacesAsErrorAndDeny(t *testing.T) {
	e := newEngine(t, policy.DefaultHostConfig)
	require.NoError(t, e.LoadModule(context.Background(), writeWasm(t, wasmtest.HostReject)))

	allowed, err := e.Validate(context.Background(), []byte("abc"))
	require.Error(t, err, "guest host_reject call must surface as an error")
	require.False(t, allowed)
}

func TestValidate_PayloadExceedsMemoryLimitBytes(t *testing.T) {
	cfg := policy.HostConfig{FuelLimit: policy.DefaultHostConfig.FuelLimit, MemoryLimitBytes: 10}
	e := newEngine(t, cfg)
	require.NoError(t, e.LoadModule(context.Background(), writeWasm(t, wasmtest.AlwaysAllow)))

	_, err := e.Validate(context.Background(), make([]byte, 11))
	require.ErrorIs(t, err, policy.ErrPayloadTooLarge)
}

func TestValidate_PayloadExceedsModuleMemory(t *testing.T) {
	// 70000 bytes exceeds the guest's single declared page (65536 bytes)
	// but stays under a generous MemoryLimitBytes ceiling — this is
	// scenario S3 from spec.md §8.
	cfg := policy.HostConfig{FuelLimit: policy.DefaultHostConfig.FuelLimit, MemoryLimitBytes: 1 << 20}
	e := newEngine(t, cfg)
	require.NoError(t, e.LoadModule(context.Background(), writeWasm(t, wasmtest.DenyIfEmpty)))

	_, err := e.Validate(context.Background(), make([]byte, 70000))
	require.ErrorIs(t, err, policy.ErrExceedsModuleMemory)
}

func TestClone_SharesLoadedModule(t *testing.T) {
	e := newEngine(t, policy.DefaultHostConfig)
	require.NoError(t, e.LoadModule(context.Background(), writeWasm(t, wasmtest.DenyIfEmpty)))

	clone := e.Clone()
	allowed, err := clone.Validate(context.Background(), []byte{})
	require.NoError(t, err)
	require.False(t, allowed, "cloned engine must see the already-loaded module")
}

func TestFuelUnitDuration_MatchesDefaultBudget(t *testing.T) {
	// DefaultHostConfig targets ~5ms per spec.md §4.5/§5.
	got := time.Duration(policy.DefaultHostConfig.FuelLimit) * policy.FuelUnitDuration
	require.InDelta(t, 5*time.Millisecond, got, float64(time.Millisecond))
}
