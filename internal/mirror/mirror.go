// Package mirror implements the coherent traffic mirror: consistent-hash
// sampling over a trace id and subject-pattern matching with `*`/`>`
// wildcards, following the NATS-style subject grammar.
package mirror

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Rule is a single mirror rule: subjects matching Pattern are mirrored at
// Percent (clamped to [0,1] by the caller at config-load time).
type Rule struct {
	Pattern string
	Percent float64
}

// Config is the mirror configuration: an enable flag plus an ordered list
// of rules. The first matching rule wins.
type Config struct {
	Enabled bool
	Rules   []Rule
}

// ShadowPrefix is the literal prefix prepended to a subject to produce its
// shadow subject.
const ShadowPrefix = "shadow."

// ShadowSubject returns the shadow subject for an original subject.
func ShadowSubject(subject string) string {
	return ShadowPrefix + subject
}

// MatchPercent returns the percent of the first rule whose pattern matches
// subject, and true. If the mirror is disabled or no rule matches, it
// returns (0, false).
func MatchPercent(cfg Config, subject string) (float64, bool) {
	if !cfg.Enabled {
		return 0, false
	}
	for _, r := range cfg.Rules {
		if matchSubject(r.Pattern, subject) {
			return r.Percent, true
		}
	}
	return 0, false
}

// matchSubject tokenizes pattern and subject on '.' and walks them in
// lockstep: '*' consumes exactly one subject token, '>' consumes the
// remainder of the subject and matches immediately, any other token must
// be byte-equal to the corresponding subject token. Both streams must be
// exhausted simultaneously unless '>' short-circuits.
func matchSubject(pattern, subject string) bool {
	pTok := strings.Split(pattern, ".")
	sTok := strings.Split(subject, ".")

	i := 0
	for i < len(pTok) {
		tok := pTok[i]
		if tok == ">" {
			return i < len(sTok) // '>' requires at least one remaining token
		}
		if i >= len(sTok) {
			return false
		}
		if tok != "*" && tok != sTok[i] {
			return false
		}
		i++
	}
	return i == len(sTok)
}

// ShouldMirror makes the sampling decision for a fixed (traceID, percent)
// pair. The decision is deterministic: the same inputs always produce the
// same result, across calls and processes, which lets a shadow and primary
// trace be compared pairwise.
func ShouldMirror(traceID string, percent float64) bool {
	if percent <= 0 {
		return false
	}
	if percent >= 1 {
		return true
	}
	h := xxhash.Sum64String(traceID)
	normalized := float64(h) / float64(1<<64)
	return normalized < percent
}
