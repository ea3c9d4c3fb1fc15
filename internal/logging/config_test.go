package logging

import (
	"bytes"
	"strings"
	"testing"

	logs "github.com/danmuck/smplog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logs.Level{
		"trace":   logs.TraceLevel,
		" DEBUG ": logs.DebugLevel,
		"warning": logs.WarnLevel,
		"off":     logs.Disabled,
	}
	for raw, want := range cases {
		got, ok := parseLevel(raw)
		if !ok || got != want {
			t.Fatalf("parseLevel(%q) = %v,%v want %v", raw, got, ok, want)
		}
	}
	if _, ok := parseLevel("loud"); ok {
		t.Fatalf("unknown level must not parse")
	}
}

func TestEnvOverridesApply(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "true")
	t.Setenv(EnvLogBypass, "1")
	cfg := defaultConfig(ProfileTest)
	applyEnvOverrides(&cfg)
	if cfg.Level != logs.ErrorLevel || !cfg.Timestamp || !cfg.Bypass {
		t.Fatalf("unexpected config after overrides: level=%v timestamp=%t bypass=%t", cfg.Level, cfg.Timestamp, cfg.Bypass)
	}
	if cfg.NoColor {
		t.Fatalf("unset env must keep default")
	}
}

func TestComponentTagsConfiguredLogger(t *testing.T) {
	prev := logs.Configured()
	defer logs.Configure(prev)

	var buf bytes.Buffer
	cfg := defaultConfig(ProfileTest)
	cfg.Writer = &buf
	cfg.Bypass = true
	logs.Configure(cfg)

	l := Component("rank")
	l.Info().Msg("ready")
	logs.Debugf("rank.New ready rank_id=%q", "r0")

	out := buf.String()
	if !strings.Contains(out, `"component":"rank"`) {
		t.Fatalf("component field missing from %q", out)
	}
	if !strings.Contains(out, `rank_id=\"r0\"`) {
		t.Fatalf("printf helper did not reach the configured writer: %q", out)
	}
}
