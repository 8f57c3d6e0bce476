// Copyright 2019 Lanikai Labs. All rights reserved.

// Package capture grabs the primary display via an FFmpeg subprocess and
// converts each frame from BGRA to packed RGB, ready for the H.264 encoder.
package capture

import (
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/lanikai/scrshare/internal/color"
	"github.com/lanikai/scrshare/internal/logging"
)

var log = logging.DefaultLogger.WithTag("capture")

// Capture reads BGRA frames off a screen-grab subprocess, rate-limited to
// the configured frame rate. Not safe for concurrent use: the Teacher owns
// exactly one capture+encode+send thread.
type Capture struct {
	proc   *ffmpegProcess
	width  int
	height int
	stride int

	minInterval atomic.Int64 // nanoseconds, per SetFPS
	lastCapture time.Time

	frameBuf []byte

	frames chan []byte
	errs   chan error
	done   chan struct{}
}

// New starts the screen-grab subprocess for a display of the given size,
// rate-limited to fps. Width and height must be positive; they describe
// the raw BGRA frame geometry the subprocess is asked to emit.
func New(width, height, fps int) (*Capture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("capture: width and height must be positive (got %dx%d)", width, height)
	}
	if fps <= 0 {
		fps = 15
	}

	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		ffmpegPath = "ffmpeg"
	}
	if p := os.Getenv("FFMPEG_PATH"); p != "" {
		ffmpegPath = p
	}

	proc, err := startFFmpeg(ffmpegPath, buildCaptureArgs(width, height, fps))
	if err != nil {
		return nil, fmt.Errorf("capture: start screen grab: %w", err)
	}

	c := &Capture{
		proc:     proc,
		width:    width,
		height:   height,
		stride:   width * 4,
		frameBuf: make([]byte, width*height*4),
		frames:   make(chan []byte, 1),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	c.minInterval.Store(int64(time.Second / time.Duration(fps)))

	go c.readLoop()

	return c, nil
}

func (c *Capture) readLoop() {
	for {
		if _, err := readFull(c.proc, c.frameBuf); err != nil {
			select {
			case c.errs <- fmt.Errorf("capture: read frame: %w\nstderr: %s", err, c.proc.LastStderr()):
			default:
			}
			close(c.frames)
			return
		}

		frame := make([]byte, len(c.frameBuf))
		copy(frame, c.frameBuf)

		select {
		case <-c.frames:
			// Drop the stale pending frame to keep only the most recent.
		default:
		}
		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}

		select {
		case <-c.done:
			return
		default:
		}
	}
}

// Frame captures one packed RGB frame, honoring the configured frame rate:
// it returns (nil, nil) if fewer than 1000/fps ms have elapsed since the
// last successful capture, or if no new frame has arrived from the grabber
// yet. Neither case is an error; callers poll again.
func (c *Capture) Frame() ([]byte, error) {
	select {
	case err := <-c.errs:
		return nil, err
	default:
	}

	if !c.lastCapture.IsZero() && time.Since(c.lastCapture) < time.Duration(c.minInterval.Load()) {
		return nil, nil
	}

	select {
	case bgra, ok := <-c.frames:
		if !ok {
			select {
			case err := <-c.errs:
				return nil, err
			default:
				return nil, fmt.Errorf("capture: screen grab subprocess exited")
			}
		}
		c.lastCapture = time.Now()
		return color.BGRAToRGB(bgra, c.width, c.height, c.stride), nil

	default:
		return nil, nil
	}
}

// Width and Height report the captured frame geometry.
func (c *Capture) Width() int  { return c.width }
func (c *Capture) Height() int { return c.height }

// SetFPS adjusts the soft rate limit applied to Frame, taking effect on
// the very next call without restarting the underlying grab subprocess.
// Safe to call concurrently with Frame.
func (c *Capture) SetFPS(fps int) {
	if fps <= 0 {
		return
	}
	c.minInterval.Store(int64(time.Second / time.Duration(fps)))
}

// Close stops the underlying subprocess.
func (c *Capture) Close() error {
	close(c.done)
	return c.proc.Stop()
}

// readFull reads exactly len(buf) bytes, matching io.ReadFull's semantics
// without importing io here to keep the ffmpegProcess.Read signature local.
func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
