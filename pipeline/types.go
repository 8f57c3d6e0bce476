// Copyright 2019 Lanikai Labs. All rights reserved.

// Package pipeline assembles the leaf packages (capture, codec, rtpcodec,
// transport, render, discovery) into the two end-to-end roles described by
// the broadcast protocol: a Teacher that captures/encodes/sends, and a
// Student that receives/decodes/renders.
package pipeline

import (
	"fmt"

	pkgerrors "github.com/pkg/errors"

	"github.com/lanikai/scrshare/internal/codec"
)

// NetworkMode selects the destination address family for the media plane.
type NetworkMode int

const (
	Broadcast NetworkMode = iota
	Multicast
)

func (m NetworkMode) String() string {
	if m == Multicast {
		return "multicast"
	}
	return "broadcast"
}

// StreamConfig holds the knobs shared by both the Teacher and Student
// roles. Width/Height describe the capture/decode geometry, needed to
// construct a Capture or Encoder instance ahead of time. Name is the
// identity a Teacher advertises over discovery, and SSRC lets a caller pin
// the session's RTP SSRC (0 means auto-seed from wall-clock nanoseconds).
type StreamConfig struct {
	Port        int
	FPS         int
	Quality     int
	NetworkMode NetworkMode
	Width       int
	Height      int
	Name        string
	SSRC        uint32
}

// DefaultConfig returns the StreamConfig a fresh session starts from.
func DefaultConfig() StreamConfig {
	return StreamConfig{
		Port:        5000,
		FPS:         15,
		Quality:     28,
		NetworkMode: Broadcast,
		Width:       1280,
		Height:      720,
	}
}

// TargetBitrateKbps derives the encoder's target bitrate from a
// StreamConfig.
func TargetBitrateKbps(cfg StreamConfig) float64 {
	return codec.TargetBitrateKbps(cfg.Width, cfg.Height, cfg.FPS, cfg.Quality)
}

// Kind enumerates the error taxonomy used across both pipelines.
type Kind int

const (
	KindCapture Kind = iota
	KindEncoder
	KindDecoder
	KindNetwork
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindCapture:
		return "capture"
	case KindEncoder:
		return "encoder"
	case KindDecoder:
		return "decoder"
	case KindNetwork:
		return "network"
	case KindConfig:
		return "config"
	default:
		return "unknown"
	}
}

// Error is a taxonomy-tagged pipeline error with a context string, matching
// the Capture/Encoder/Decoder/Network/Config classification the control
// surface reports back to callers.
type Error struct {
	Kind    Kind
	Context string
	Err     error // nil for a bare context error (no wrapped cause)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Context, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Context)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError constructs a taxonomy-tagged Error. When cause is nil (a config
// or state error raised directly by this package, not wrapping an
// underlying failure), context is additionally run through
// pkg/errors.New purely to attach a stack trace to the log line it feeds;
// the stack-carrying error is logged, not returned, so Error()'s message
// stays undoubled.
func newError(kind Kind, context string, cause error) *Error {
	if cause == nil {
		log.Debug("%+v", pkgerrors.New(context))
	}
	return &Error{Kind: kind, Context: context, Err: cause}
}
