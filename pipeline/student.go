// Copyright 2019 Lanikai Labs. All rights reserved.

package pipeline

import (
	"io"
	"time"

	"github.com/lanikai/scrshare/internal/codec"
	"github.com/lanikai/scrshare/internal/render"
	"github.com/lanikai/scrshare/internal/rtpcodec"
	"github.com/lanikai/scrshare/internal/transport"
)

// receiverState tracks the Student's decode state machine: waiting for a
// keyframe, then decoding until a decode error flips it back to waiting.
type receiverState int

const (
	stateWaitingKeyframe receiverState = iota
	stateDecoding
)

// StartStudent launches the receive, depacketize, and decode thread, wired
// to a bounded render hand-off queue.
//
// The returned Queue lets a caller attach its own render.Surface (a native
// window, or render.NewMemorySurface for headless use); StartStudent does
// not itself drive a render.Loop, since the window's event loop belongs to
// whatever shell embeds this pipeline.
func StartStudent(cfg StreamConfig) (*Handle, *render.Queue, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, nil, newError(KindConfig, "port out of range", nil)
	}

	mode := transportMode(cfg.NetworkMode)
	receiver, err := transport.NewReceiver(mode, cfg.Port)
	if err != nil {
		return nil, nil, newError(KindNetwork, "open receiver", err)
	}

	dec, err := codec.NewDecoder()
	if err != nil {
		receiver.Close()
		return nil, nil, newError(KindDecoder, "start decoder", err)
	}

	queue := render.NewQueue()

	h := newHandle()
	go runStudent(h, receiver, dec, queue)
	return h, queue, nil
}

func runStudent(h *Handle, receiver *transport.Receiver, dec *codec.Decoder, queue *render.Queue) {
	defer h.finish()
	defer receiver.Close()
	defer dec.Close()
	defer queue.Close()

	depacketizer := rtpcodec.NewDepacketizer()
	depacketizer.OnSequenceGap(func(expected, got uint16) {
		log.Debug("student: sequence gap, expected %d got %d", expected, got)
	})

	state := stateWaitingKeyframe
	stats := newStatsTracker()

	decodedFrames := make(chan struct {
		rgb           []byte
		width, height int
	}, 1)
	decodeErrs := make(chan error, 1)
	go runDecodeReader(h.stop, dec, decodedFrames, decodeErrs)

	buf := make([]byte, 65536)

	for {
		select {
		case <-h.stop:
			return
		case err := <-decodeErrs:
			log.Warn("student: decode error, waiting for keyframe: %v", err)
			state = stateWaitingKeyframe
			continue
		case frame := <-decodedFrames:
			queue.Push(frame.rgb, frame.width, frame.height)
			stats.recordFrame(len(frame.rgb), 0)
			if ev, ok := stats.tick(time.Now()); ok {
				h.publishStats(ev)
			}
			continue
		default:
		}

		n, ok, err := receiver.Receive(buf)
		if err != nil {
			h.fail(newError(KindNetwork, "receive packet", err))
			return
		}
		if !ok {
			continue
		}

		accessUnit, complete := depacketizer.Depacketize(buf[:n])
		if !complete {
			continue
		}

		if state == stateWaitingKeyframe {
			if !rtpcodec.IsKeyframe(accessUnit) {
				continue
			}
			state = stateDecoding
		}

		if err := dec.Feed(accessUnit); err != nil {
			h.fail(newError(KindDecoder, "feed access unit", err))
			return
		}
	}
}

// runDecodeReader drains decoded frames off the decoder in its own
// goroutine, since Decode blocks on the subprocess pipe and must not stall
// the receive loop's socket polling.
func runDecodeReader(stop <-chan struct{}, dec *codec.Decoder, out chan<- struct {
	rgb           []byte
	width, height int
}, errs chan<- error) {
	for {
		rgb, width, height, err := dec.Decode()
		if err == io.EOF {
			// Decoder subprocess exited; nothing further will ever arrive.
			return
		}
		if err != nil {
			select {
			case errs <- err:
			case <-stop:
				return
			}
			continue
		}
		select {
		case out <- struct {
			rgb           []byte
			width, height int
		}{rgb, width, height}:
		case <-stop:
			return
		}
	}
}
