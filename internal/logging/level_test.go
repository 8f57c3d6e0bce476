// Copyright 2019 Lanikai Labs. All rights reserved.

package logging

import (
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseEnvDefaultAndTagOverrides(t *testing.T) {
	cfg := parseEnv("warn,discovery=debug,transport=error")

	assert.Equal(t, LevelWarn, cfg.fallback)
	assert.Equal(t, LevelDebug, cfg.levelFor("discovery"))
	assert.Equal(t, LevelError, cfg.levelFor("transport"))
	assert.Equal(t, LevelWarn, cfg.levelFor("codec"))
}

func TestParseEnvEmptyFallsBackToInfo(t *testing.T) {
	cfg := parseEnv("")
	assert.Equal(t, LevelInfo, cfg.fallback)
	assert.Equal(t, LevelInfo, cfg.levelFor("anything"))
}

func TestParseEnvSkipsBadDirectives(t *testing.T) {
	cfg := parseEnv("bogus,rtp=debug")
	assert.Equal(t, LevelInfo, cfg.fallback)
	assert.Equal(t, LevelDebug, cfg.levelFor("rtp"))
}

func TestParseLevelAbbreviations(t *testing.T) {
	for name, want := range map[string]Level{
		"e": LevelError, "ERROR": LevelError,
		"w": LevelWarn, "warn": LevelWarn,
		"i": LevelInfo, "Info": LevelInfo,
		"d": LevelDebug, "trace": LevelDebug,
	} {
		got, ok := parseLevel(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
}

func TestLoggerDiscardsAboveConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{Tag: "test", level: LevelWarn, out: &buf, mu: new(sync.Mutex)}

	l.Debug("hidden %d", 1)
	l.Info("hidden too")
	l.Warn("visible %s", "warning")
	l.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible warning")
	assert.Contains(t, out, "visible error")
	assert.Contains(t, out, "[test]")
	assert.Equal(t, 2, strings.Count(out, "\n"))
}
