// Copyright 2019 Lanikai Labs. All rights reserved.

package pipeline

import (
	"sync/atomic"
	"time"

	"github.com/lanikai/scrshare/internal/capture"
	"github.com/lanikai/scrshare/internal/codec"
	"github.com/lanikai/scrshare/internal/logging"
	"github.com/lanikai/scrshare/internal/rtpcodec"
	"github.com/lanikai/scrshare/internal/transport"
)

var log = logging.DefaultLogger.WithTag("pipeline")

// Handle owns one running pipeline's goroutine and cancellation state. A
// Handle is returned from StartTeacher or StartStudent, and the caller
// stops it directly rather than reaching through a global running flag.
type Handle struct {
	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}

	stats chan StatsEvent
	errs  chan error
}

func newHandle() *Handle {
	h := &Handle{
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		stats: make(chan StatsEvent, 4),
		errs:  make(chan error, 1),
	}
	h.running.Store(true)
	return h
}

// Running reports whether the pipeline's goroutine is still active.
func (h *Handle) Running() bool {
	return h.running.Load()
}

// Stop signals the pipeline to shut down and blocks until its goroutine has
// exited. The 100ms socket read timeout bounds how long this takes.
func (h *Handle) Stop() {
	select {
	case <-h.stop:
	default:
		close(h.stop)
	}
	<-h.done
}

// Stats returns the channel on which this pipeline emits one StatsEvent per
// second. Callers that don't drain it simply miss updates; the channel is
// buffered but never blocks pipeline progress.
func (h *Handle) Stats() <-chan StatsEvent {
	return h.stats
}

// Err returns the channel on which a terminal pipeline error, if any, is
// delivered exactly once before the pipeline stops.
func (h *Handle) Err() <-chan error {
	return h.errs
}

func (h *Handle) publishStats(ev StatsEvent) {
	select {
	case <-h.stats:
		// Drop the stale event in favor of the new one; stats are a
		// latest-value signal, not a log.
	default:
	}
	select {
	case h.stats <- ev:
	default:
	}
}

func (h *Handle) fail(err error) {
	select {
	case h.errs <- err:
	default:
	}
}

func (h *Handle) finish() {
	h.running.Store(false)
	close(h.done)
}

// StartTeacher launches the capture, color-convert, encode, packetize, and
// send loop as a single serial goroutine, since screen capture is a
// platform-bound handle that is not safely shared across threads.
func StartTeacher(cfg StreamConfig) (*Handle, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, newError(KindConfig, "port out of range", nil)
	}
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultConfig().FPS
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = DefaultConfig().Width, DefaultConfig().Height
	}

	capt, err := capture.New(cfg.Width, cfg.Height, cfg.FPS)
	if err != nil {
		return nil, newError(KindCapture, "start capture", err)
	}

	bitrateKbps := int(TargetBitrateKbps(cfg))
	enc, err := codec.NewEncoder(cfg.Width, cfg.Height, cfg.FPS, bitrateKbps)
	if err != nil {
		capt.Close()
		return nil, newError(KindEncoder, "start encoder", err)
	}

	mode := transportMode(cfg.NetworkMode)
	sender, err := transport.NewSender(mode, cfg.Port)
	if err != nil {
		capt.Close()
		enc.Close()
		return nil, newError(KindNetwork, "open sender", err)
	}

	packetizer := rtpcodec.NewPacketizer(cfg.SSRC)

	h := newHandle()
	go runTeacher(h, capt, enc, sender, packetizer, cfg)
	return h, nil
}

func runTeacher(h *Handle, capt *capture.Capture, enc *codec.Encoder, sender *transport.Sender, packetizer *rtpcodec.Packetizer, cfg StreamConfig) {
	defer h.finish()
	defer capt.Close()
	defer enc.Close()
	defer sender.Close()

	stats := newStatsTracker()
	start := time.Now()

	for {
		select {
		case <-h.stop:
			return
		default:
		}

		rgb, err := capt.Frame()
		if err != nil {
			h.fail(newError(KindCapture, "capture frame", err))
			return
		}
		if rgb == nil {
			time.Sleep(time.Millisecond)
			continue
		}
		captureTime := time.Now()

		bitstream, _, err := enc.Encode(rgb)
		if err != nil {
			h.fail(newError(KindEncoder, "encode frame", err))
			return
		}
		if len(bitstream) == 0 {
			continue
		}

		tsMs := uint32(captureTime.Sub(start).Milliseconds())
		packets := packetizer.Packetize(bitstream, tsMs)
		for _, pkt := range packets {
			if err := sender.Send(pkt); err != nil {
				h.fail(newError(KindNetwork, "send rtp packet", err))
				return
			}
		}

		stats.recordFrame(len(bitstream), float64(time.Since(captureTime).Milliseconds()))
		if ev, ok := stats.tick(time.Now()); ok {
			h.publishStats(ev)
		}
	}
}

func transportMode(m NetworkMode) transport.Mode {
	if m == Multicast {
		return transport.ModeMulticast
	}
	return transport.ModeBroadcast
}
