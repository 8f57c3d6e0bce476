// Copyright 2019 Lanikai Labs. All rights reserved.

package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReader feeds a fixed sequence of BGRA frames, blocking after the last
// one so readLoop doesn't spin and report a spurious EOF.
type fakeReader struct {
	frames [][]byte
	pos    int
	offset int
	block  chan struct{}
}

func newFakeReader(frames [][]byte) *fakeReader {
	return &fakeReader{frames: frames, block: make(chan struct{})}
}

func (f *fakeReader) Read(buf []byte) (int, error) {
	if f.pos >= len(f.frames) {
		<-f.block // never closed: simulates a subprocess that's still running
		return 0, nil
	}
	frame := f.frames[f.pos]
	n := copy(buf, frame[f.offset:])
	f.offset += n
	if f.offset >= len(frame) {
		f.pos++
		f.offset = 0
	}
	return n, nil
}

func solidBGRA(width, height int, b, g, r, a byte) []byte {
	buf := make([]byte, width*height*4)
	for i := 0; i < width*height; i++ {
		buf[4*i] = b
		buf[4*i+1] = g
		buf[4*i+2] = r
		buf[4*i+3] = a
	}
	return buf
}

func newTestCapture(t *testing.T, width, height, fps int, frames [][]byte) *Capture {
	t.Helper()
	c := &Capture{
		width:    width,
		height:   height,
		stride:   width * 4,
		frameBuf: make([]byte, width*height*4),
		frames:   make(chan []byte, 1),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	c.minInterval.Store(int64(time.Second / time.Duration(fps)))
	c.proc = nil // readLoop below reads from the fake reader, not proc

	r := newFakeReader(frames)
	go func() {
		for {
			if _, err := readFull(r, c.frameBuf); err != nil {
				return
			}
			frame := make([]byte, len(c.frameBuf))
			copy(frame, c.frameBuf)
			select {
			case <-c.frames:
			default:
			}
			select {
			case c.frames <- frame:
			case <-c.done:
				return
			}
		}
	}()

	return c
}

func TestFrameConvertsBGRAToRGB(t *testing.T) {
	bgra := solidBGRA(2, 2, 10, 20, 30, 255)
	c := newTestCapture(t, 2, 2, 1000, [][]byte{bgra})

	var rgb []byte
	require.Eventually(t, func() bool {
		var err error
		rgb, err = c.Frame()
		require.NoError(t, err)
		return rgb != nil
	}, time.Second, time.Millisecond)

	require.Len(t, rgb, 2*2*3)
	assert.Equal(t, byte(30), rgb[0]) // R
	assert.Equal(t, byte(20), rgb[1]) // G
	assert.Equal(t, byte(10), rgb[2]) // B
}

func TestFrameRateLimitsReturnsNilUntilIntervalElapses(t *testing.T) {
	bgra1 := solidBGRA(1, 1, 1, 1, 1, 255)
	bgra2 := solidBGRA(1, 1, 2, 2, 2, 255)
	c := newTestCapture(t, 1, 1, 10, [][]byte{bgra1, bgra2}) // 100ms interval

	var first []byte
	require.Eventually(t, func() bool {
		var err error
		first, err = c.Frame()
		require.NoError(t, err)
		return first != nil
	}, time.Second, time.Millisecond)
	require.NotNil(t, first)

	// Immediately polling again should be rate-limited, not block or error.
	again, err := c.Frame()
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestFrameReturnsNilWhenNoNewFrameYet(t *testing.T) {
	c := newTestCapture(t, 4, 4, 30, nil)

	frame, err := c.Frame()
	require.NoError(t, err)
	assert.Nil(t, frame)
}

func TestFrameSurfacesReadError(t *testing.T) {
	c := &Capture{
		width:    1,
		height:   1,
		stride:   4,
		frameBuf: make([]byte, 4),
		frames:   make(chan []byte, 1),
		errs:     make(chan error, 1),
		done:     make(chan struct{}),
	}
	c.minInterval.Store(int64(time.Millisecond))
	close(c.frames)

	frame, err := c.Frame()
	assert.Nil(t, frame)
	assert.Error(t, err)
}

func TestSetFPSTakesEffectWithoutReconstruction(t *testing.T) {
	c := newTestCapture(t, 1, 1, 1, nil) // 1 second interval initially
	c.SetFPS(1000)                       // 1ms interval

	assert.Equal(t, int64(time.Millisecond), c.minInterval.Load())
}
