// Package config loads Shield's environment-driven configuration,
// following the teacher's getenv-with-default idiom from
// core/pkg/config/config.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/novelbytelabs/ArqonBus/internal/mirror"
	"github.com/novelbytelabs/ArqonBus/internal/policy"
)

// Config holds every environment-derived setting Shield needs to boot.
type Config struct {
	ListenAddr string

	AuthSecret     string
	SkipAuth       bool
	StrictSchema   bool
	DescriptorPath string
	MessageName    string

	PolicyModulePath string
	FuelLimit        uint64
	MemoryLimitBytes int64

	BusAddr string

	Mirror mirror.Config

	RequestBodyCapBytes int64
}

// Load reads Config from the environment, applying the same defaults a
// developer running Shield locally would expect.
func Load() *Config {
	return &Config{
		ListenAddr: getenvDefault("SHIELD_LISTEN_ADDR", ":8443"),

		AuthSecret:     os.Getenv("SHIELD_AUTH_SECRET"),
		SkipAuth:       os.Getenv("SHIELD_SKIP_AUTH_VALIDATION") == "true",
		StrictSchema:   os.Getenv("SHIELD_STRICT_SCHEMA") != "false",
		DescriptorPath: getenvDefault("SHIELD_DESCRIPTOR_SET_PATH", "config/frame.descriptorset"),
		MessageName:    getenvDefault("SHIELD_MESSAGE_NAME", "shield.Frame"),

		PolicyModulePath: os.Getenv("SHIELD_POLICY_MODULE_PATH"),
		FuelLimit:        getenvUint64Default("SHIELD_FUEL_LIMIT", policy.DefaultHostConfig.FuelLimit),
		MemoryLimitBytes: getenvInt64Default("SHIELD_MEMORY_LIMIT_BYTES", policy.DefaultHostConfig.MemoryLimitBytes),

		BusAddr: getenvDefault("SHIELD_BUS_ADDR", "localhost:6379"),

		Mirror: parseMirrorConfig(os.Getenv("SHIELD_MIRROR_RULES")),

		RequestBodyCapBytes: getenvInt64Default("SHIELD_REQUEST_BODY_CAP_BYTES", 2<<20),
	}
}

// HostConfig adapts Config's policy bounds into policy.HostConfig.
func (c *Config) HostConfig() policy.HostConfig {
	return policy.HostConfig{FuelLimit: c.FuelLimit, MemoryLimitBytes: c.MemoryLimitBytes}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvUint64Default(key string, fallback uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64Default(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

// parseMirrorConfig parses SHIELD_MIRROR_RULES, a semicolon-separated
// list of "pattern=percent" pairs (e.g. "in.t.>=0.1;in.t.default.*=1.0").
// An empty or unparseable value disables mirroring rather than failing
// boot, since mirroring is a sampling aid, not a required subsystem.
func parseMirrorConfig(raw string) mirror.Config {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return mirror.Config{}
	}

	var rules []mirror.Rule
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		pattern, pctStr, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(pctStr), 64)
		if err != nil {
			continue
		}
		if pct < 0 {
			pct = 0
		}
		if pct > 1 {
			pct = 1
		}
		rules = append(rules, mirror.Rule{Pattern: strings.TrimSpace(pattern), Percent: pct})
	}

	return mirror.Config{Enabled: len(rules) > 0, Rules: rules}
}

// Validate runs the startup preflight described in spec.md §4.9: refuse
// to boot with an empty/whitespace signing secret, skip-validation
// enabled, or strict mode requested without a usable schema validator
// (the caller checks validator readiness separately, since Config alone
// can't construct one).
func (c *Config) Validate() error {
	if c.SkipAuth {
		return fmt.Errorf("config: SHIELD_SKIP_AUTH_VALIDATION is not permitted at runtime")
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("config: SHIELD_AUTH_SECRET must be set")
	}
	return nil
}

// FuelBudget reports the wall-clock budget a single policy_check
// invocation is allowed, for diagnostic logging at startup.
func (c *Config) FuelBudget() time.Duration {
	return time.Duration(c.FuelLimit) * policy.FuelUnitDuration
}
