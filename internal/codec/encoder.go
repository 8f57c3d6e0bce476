// Copyright 2019 Lanikai Labs. All rights reserved.

package codec

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lanikai/scrshare/internal/color"
	"github.com/lanikai/scrshare/internal/logging"
	"github.com/lanikai/scrshare/internal/rtpcodec"
)

var log = logging.DefaultLogger.WithTag("codec")

// encodeReadTimeout bounds how long Encode waits for the first byte of
// output for a given input frame. The encoder is allowed to buffer a frame
// and emit nothing; this is not an error.
const encodeReadTimeout = 200 * time.Millisecond

// Encoder wraps an FFmpeg subprocess configured for low-latency H.264
// encoding of planar YUV 4:2:0 frames. Encode takes packed RGB input and
// runs it through color.RGBToYUV420 before handing it to FFmpeg's stdin, so
// the conversion stage stays under this module's control rather than
// swscale's. Not safe for concurrent use from multiple goroutines without
// external synchronization, matching the Teacher's single
// capture+encode+send thread.
type Encoder struct {
	mu sync.Mutex

	width, height int
	fps           int
	bitrateKbps   int

	keyframeInterval int
	frameCount       int

	proc *process
}

// NewEncoder starts the underlying FFmpeg subprocess for a given capture
// resolution, frame rate, and target bitrate.
func NewEncoder(width, height, fps, bitrateKbps int) (*Encoder, error) {
	e := &Encoder{
		width:            width,
		height:           height,
		fps:              fps,
		bitrateKbps:      bitrateKbps,
		keyframeInterval: KeyframeInterval(fps),
	}
	if err := e.reconstruct(); err != nil {
		return nil, err
	}
	return e, nil
}

// KeyframeInterval returns the encoder-reconstruction cadence, in frames,
// used to force a keyframe since the chosen encoder exposes no force-IDR
// primitive: max(2*fps, 30).
func KeyframeInterval(fps int) int {
	if v := 2 * fps; v > 30 {
		return v
	}
	return 30
}

// forceKeyframe reports whether the encoder must be reconstructed before
// submitting frame number frameCount, so an IDR appears every interval
// frames. Frame 0 needs no reconstruction: a fresh encoder's first output
// already carries SPS+PPS+IDR.
func forceKeyframe(frameCount, interval int) bool {
	return frameCount > 0 && frameCount%interval == 0
}

func (e *Encoder) reconstruct() error {
	if e.proc != nil {
		_ = e.proc.stop()
	}

	args := []string{
		"-f", "rawvideo",
		"-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", e.width, e.height),
		"-r", strconv.Itoa(e.fps),
		"-i", "pipe:0",
		"-an",
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-x264-params", "nal-hrd=cbr",
		"-b:v", fmt.Sprintf("%dk", e.bitrateKbps),
		"-maxrate", fmt.Sprintf("%dk", e.bitrateKbps),
		"-bufsize", fmt.Sprintf("%dk", e.bitrateKbps/2),
		"-g", strconv.Itoa(e.keyframeInterval),
		"-flush_packets", "1",
		"-f", "h264",
		"pipe:1",
	}

	proc, err := startProcess(ffmpegPath(), args, true, true)
	if err != nil {
		return fmt.Errorf("codec: start encoder: %w", err)
	}

	e.proc = proc
	e.frameCount = 0
	return nil
}

// Encode submits one packed RGB24 frame (width*height*3 bytes, row-major,
// no padding), converts it to planar YUV 4:2:0 via color.RGBToYUV420, and
// returns whatever Annex-B bitstream bytes the encoder has produced in
// response. The returned slice may be empty if the encoder is still
// buffering; that is not an error. isKeyframe reports whether the
// returned bytes contain a type-5 or type-7 NAL.
func (e *Encoder) Encode(rgb []byte) (data []byte, isKeyframe bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if forceKeyframe(e.frameCount, e.keyframeInterval) {
		if err := e.reconstruct(); err != nil {
			return nil, false, err
		}
	}
	e.frameCount++

	yuv := color.RGBToYUV420(rgb, e.width, e.height)

	if _, err := e.proc.stdin.Write(yuv); err != nil {
		return nil, false, fmt.Errorf("codec: write frame to encoder: %w\nstderr: %s", err, e.proc.LastStderr())
	}

	out, err := e.proc.readAvailable(encodeReadTimeout)
	if err != nil {
		return nil, false, fmt.Errorf("codec: read encoded frame: %w\nstderr: %s", err, e.proc.LastStderr())
	}

	return out, rtpcodec.IsKeyframe(out), nil
}

// Close stops the underlying FFmpeg subprocess.
func (e *Encoder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.proc == nil {
		return nil
	}
	return e.proc.stop()
}
