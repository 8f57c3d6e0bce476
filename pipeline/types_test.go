// Copyright 2019 Lanikai Labs. All rights reserved.

package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, 15, cfg.FPS)
	assert.Equal(t, 28, cfg.Quality)
	assert.Equal(t, Broadcast, cfg.NetworkMode)
}

func TestNetworkModeString(t *testing.T) {
	assert.Equal(t, "broadcast", Broadcast.String())
	assert.Equal(t, "multicast", Multicast.String())
}

// S6: 1920x1080@30, quality=28 => bitrate ~= 2600 kbps.
func TestTargetBitrateKbpsFromConfig(t *testing.T) {
	cfg := StreamConfig{Width: 1920, Height: 1080, FPS: 30, Quality: 28}
	assert.InDelta(t, 2600, TargetBitrateKbps(cfg), 10)
}

func TestErrorWithCausePreservesUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := newError(KindNetwork, "send packet", cause)

	assert.Contains(t, err.Error(), "network")
	assert.Contains(t, err.Error(), "send packet")
	assert.Contains(t, err.Error(), "boom")
	assert.Same(t, cause, errors.Unwrap(err))
}

func TestErrorWithoutCauseStillReportsContext(t *testing.T) {
	err := newError(KindConfig, "port out of range", nil)

	assert.Equal(t, "config: port out of range", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{
		KindCapture: "capture",
		KindEncoder: "encoder",
		KindDecoder: "decoder",
		KindNetwork: "network",
		KindConfig:  "config",
	}
	for k, want := range cases {
		assert.Equal(t, want, k.String())
	}
}
