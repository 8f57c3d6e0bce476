// Copyright 2019 Lanikai Labs. All rights reserved.

package codec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/scrshare/internal/color"
)

// fakeStdin captures whatever Encode writes to the subprocess, standing in
// for the real pipe without launching FFmpeg.
type fakeStdin struct {
	bytes.Buffer
}

func (f *fakeStdin) Close() error { return nil }

func newTestEncoder(width, height int) (*Encoder, *fakeStdin) {
	stdin := &fakeStdin{}
	p := &process{
		stdin:  stdin,
		chunks: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
	close(p.done)

	e := &Encoder{
		width:            width,
		height:           height,
		fps:              30,
		bitrateKbps:      1000,
		keyframeInterval: KeyframeInterval(30),
		proc:             p,
	}
	return e, stdin
}

// S4: at fps=15 the keyframe interval is 30 frames, so over 90 frames the
// encoder is rebuilt (forcing SPS+PPS+IDR) before frames 30 and 60, with
// frame 0 covered by the initial construction.
func TestForceKeyframeCadence(t *testing.T) {
	interval := KeyframeInterval(15)
	require.Equal(t, 30, interval)

	var forced []int
	for frame := 0; frame < 90; frame++ {
		if forceKeyframe(frame, interval) {
			forced = append(forced, frame)
		}
	}
	assert.Equal(t, []int{30, 60}, forced)
}

func TestEncodeConvertsRGBToYUV420BeforeWritingToEncoder(t *testing.T) {
	width, height := 4, 4
	e, stdin := newTestEncoder(width, height)

	rgb := make([]byte, width*height*3)
	for i := range rgb {
		rgb[i] = byte(i % 251)
	}

	close(e.proc.chunks) // readAvailable sees EOF immediately; output is irrelevant here
	_, _, err := e.Encode(rgb)
	require.Error(t, err) // EOF from the closed chunks channel surfaces as an error

	want := color.RGBToYUV420(rgb, width, height)
	assert.Equal(t, want, stdin.Bytes())
	assert.NotEqual(t, len(rgb), stdin.Len())
	assert.Equal(t, width*height*3/2, stdin.Len())
}
