package mirror_test

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/novelbytelabs/ArqonBus/internal/mirror"
)

func TestShadowSubject(t *testing.T) {
	got := mirror.ShadowSubject("in.t.tenant-b.raw")
	want := "shadow.in.t.tenant-b.raw"
	if got != want {
		t.Fatalf("ShadowSubject() = %q, want %q", got, want)
	}
}

func TestMatchSubject_OneTokenWildcard(t *testing.T) {
	cfg := mirror.Config{Enabled: true, Rules: []mirror.Rule{{Pattern: "in.t.*", Percent: 1}}}
	if _, ok := mirror.MatchPercent(cfg, "in.t.default.room1"); ok {
		t.Fatal("in.t.* must not match in.t.default.room1 (two tokens remain)")
	}
}

func TestMatchSubject_TwoTokenWildcard(t *testing.T) {
	cfg := mirror.Config{Enabled: true, Rules: []mirror.Rule{{Pattern: "in.t.default.*", Percent: 1}}}
	if _, ok := mirror.MatchPercent(cfg, "in.t.default.room1"); !ok {
		t.Fatal("in.t.default.* must match in.t.default.room1")
	}
}

func TestMatchSubject_GreaterThan(t *testing.T) {
	cfg := mirror.Config{Enabled: true, Rules: []mirror.Rule{{Pattern: "in.t.>", Percent: 1}}}
	for _, subj := range []string{"in.t.a", "in.t.a.b", "in.t.a.b.c"} {
		if _, ok := mirror.MatchPercent(cfg, subj); !ok {
			t.Fatalf("in.t.> must match %q", subj)
		}
	}
	if _, ok := mirror.MatchPercent(cfg, "in.t"); ok {
		t.Fatal("in.t.> must require at least one trailing token")
	}
}

func TestMatchPercent_FirstRuleWins(t *testing.T) {
	cfg := mirror.Config{Enabled: true, Rules: []mirror.Rule{
		{Pattern: "in.t.*.raw", Percent: 0.25},
		{Pattern: "in.t.>", Percent: 1},
	}}
	pct, ok := mirror.MatchPercent(cfg, "in.t.acme.raw")
	if !ok || pct != 0.25 {
		t.Fatalf("expected first matching rule (0.25), got %v ok=%v", pct, ok)
	}
}

func TestMatchPercent_Disabled(t *testing.T) {
	cfg := mirror.Config{Enabled: false, Rules: []mirror.Rule{{Pattern: "in.t.>", Percent: 1}}}
	if _, ok := mirror.MatchPercent(cfg, "in.t.a"); ok {
		t.Fatal("disabled mirror config must never match")
	}
}

func TestShouldMirror_Boundaries(t *testing.T) {
	if mirror.ShouldMirror("any-trace", 0) {
		t.Fatal("percent <= 0 must never mirror")
	}
	if !mirror.ShouldMirror("any-trace", 1) {
		t.Fatal("percent >= 1 must always mirror")
	}
}

func TestShouldMirror_Deterministic(t *testing.T) {
	traceID := uuid.NewString()
	first := mirror.ShouldMirror(traceID, 0.5)
	for i := 0; i < 100; i++ {
		if mirror.ShouldMirror(traceID, 0.5) != first {
			t.Fatalf("ShouldMirror(%q, 0.5) is not deterministic across calls", traceID)
		}
	}
}

func TestShouldMirror_Distribution(t *testing.T) {
	const n = 10000
	const percent = 0.5
	mirrored := 0
	for i := 0; i < n; i++ {
		traceID := fmt.Sprintf("trace-%d-%s", i, uuid.NewString())
		if mirror.ShouldMirror(traceID, percent) {
			mirrored++
		}
	}
	ratio := float64(mirrored) / float64(n)
	if ratio < 0.45 || ratio > 0.55 {
		t.Fatalf("mirror ratio %v outside [0.45, 0.55] for percent=%v", ratio, percent)
	}
}
