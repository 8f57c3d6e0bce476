// Copyright 2019 Lanikai Labs. All rights reserved.

// Package render implements the hand-off between the Student's decode
// thread and a native display surface: a bounded, drop-oldest frame queue
// feeding a single-writer, single-reader window loop.
package render

import (
	"sync"

	"github.com/lanikai/scrshare/internal/color"
)

// Frame is one decoded picture ready for display, already packed as ARGB.
type Frame struct {
	ARGB   []uint32
	Width  int
	Height int
}

// Surface is anything that can display a sequence of ARGB frames: a native
// window, or (for tests and headless operation) an in-memory sink.
type Surface interface {
	// Present draws one frame, upscaling with nearest-neighbor if the
	// surface's own dimensions differ from the frame's.
	Present(f Frame) error

	// Close releases any resources held by the surface.
	Close() error
}

// Queue is the bounded, drop-oldest hand-off between the decode thread and
// a render thread driving a Surface. The render thread drains everything
// pending on each redraw and keeps only the most recent frame, so the
// queue never holds more than one frame and never blocks the decoder.
type Queue struct {
	mu      sync.Mutex
	pending *Frame
	closed  bool
	signal  chan struct{}
}

// NewQueue creates an empty render queue.
func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push enqueues a decoded RGB frame, converting it to ARGB. If a frame is
// already pending, it is dropped in favor of the new one: the queue only
// ever holds the most recent frame (capacity one, drop-oldest).
func (q *Queue) Push(rgb []byte, width, height int) {
	argb := color.RGBToARGB(rgb, width, height)
	f := Frame{ARGB: argb, Width: width, Height: height}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = &f
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Pop returns the most recently pushed frame, if any, clearing it from the
// queue. It never blocks.
func (q *Queue) Pop() (Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pending == nil {
		return Frame{}, false
	}
	f := *q.pending
	q.pending = nil
	return f, true
}

// Signal returns a channel that receives a value whenever a new frame is
// pushed, so a render loop can wait instead of polling.
func (q *Queue) Signal() <-chan struct{} {
	return q.signal
}

// Close marks the queue closed; subsequent Push calls are no-ops.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

// Loop runs the window thread: it waits for Signal, drains the queue
// (always exactly zero or one pending frame by construction, since Push
// overwrites), and presents the most recent frame on surface. It returns
// when done is closed.
func Loop(q *Queue, surface Surface, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-q.Signal():
			if f, ok := q.Pop(); ok {
				_ = surface.Present(f)
			}
		}
	}
}

// scale resizes an ARGB buffer from (srcW, srcH) to (dstW, dstH) using
// nearest-neighbor sampling. It returns src unchanged if the dimensions
// already match.
func scale(src []uint32, srcW, srcH, dstW, dstH int) []uint32 {
	if srcW == dstW && srcH == dstH {
		return src
	}

	dst := make([]uint32, dstW*dstH)
	for y := 0; y < dstH; y++ {
		sy := y * srcH / dstH
		for x := 0; x < dstW; x++ {
			sx := x * srcW / dstW
			dst[y*dstW+x] = src[sy*srcW+sx]
		}
	}
	return dst
}
