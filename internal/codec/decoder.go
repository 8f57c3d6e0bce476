// Copyright 2019 Lanikai Labs. All rights reserved.

package codec

import (
	"bufio"
	"fmt"
	"io"
)

// Decoder wraps an FFmpeg subprocess decoding an H.264 Annex-B elementary
// stream into RGB24 frames. Output is requested as a PPM (P6) image
// sequence rather than raw planar video, since each PPM frame carries its
// own width/height header — letting the decoder self-frame its output
// without the caller needing to know the stream's resolution in advance
// (it's carried in the SPS the encoder emits on every keyframe).
type Decoder struct {
	proc   *process
	reader *bufio.Reader
}

// NewDecoder starts the underlying FFmpeg subprocess. Frames are written to
// it via Feed and retrieved via Decode.
func NewDecoder() (*Decoder, error) {
	args := []string{
		"-f", "h264",
		"-i", "pipe:0",
		"-pix_fmt", "rgb24",
		"-f", "image2pipe",
		"-vcodec", "ppm",
		"pipe:1",
	}

	proc, err := startProcess(ffmpegPath(), args, true, false)
	if err != nil {
		return nil, fmt.Errorf("codec: start decoder: %w", err)
	}

	return &Decoder{
		proc:   proc,
		reader: bufio.NewReaderSize(proc.Stdout, 1<<20),
	}, nil
}

// Feed submits one Annex-B access unit to the decoder. It does not block
// waiting for output; call Decode separately to retrieve decoded frames as
// they become available.
func (d *Decoder) Feed(accessUnit []byte) error {
	if _, err := d.proc.stdin.Write(accessUnit); err != nil {
		return fmt.Errorf("codec: write access unit to decoder: %w\nstderr: %s", err, d.proc.LastStderr())
	}
	return nil
}

// Decode blocks until one complete RGB24 frame has been read from the
// decoder's output, returning the frame and its dimensions. It returns
// io.EOF if the decoder process has exited.
func (d *Decoder) Decode() (rgb []byte, width, height int, err error) {
	width, height, err = readPPMHeader(d.reader)
	if err != nil {
		if err == io.EOF {
			return nil, 0, 0, io.EOF
		}
		return nil, 0, 0, fmt.Errorf("codec: read ppm header: %w\nstderr: %s", err, d.proc.LastStderr())
	}

	frame := make([]byte, width*height*3)
	if _, err := io.ReadFull(d.reader, frame); err != nil {
		return nil, 0, 0, fmt.Errorf("codec: read ppm data: %w\nstderr: %s", err, d.proc.LastStderr())
	}

	return frame, width, height, nil
}

// readPPMHeader parses a binary PPM (P6) header: a "P6" magic, whitespace-
// separated width and height, a maxval token, then a single whitespace byte
// before the pixel data begins. Each of the three header fields may be
// preceded by '#' comment lines, which are skipped.
func readPPMHeader(r *bufio.Reader) (width, height int, err error) {
	magic, err := readToken(r)
	if err != nil {
		return 0, 0, err
	}
	if magic != "P6" {
		return 0, 0, fmt.Errorf("codec: unexpected ppm magic %q", magic)
	}

	w, err := readToken(r)
	if err != nil {
		return 0, 0, err
	}
	h, err := readToken(r)
	if err != nil {
		return 0, 0, err
	}
	if _, err := readToken(r); err != nil { // maxval
		return 0, 0, err
	}

	width, err = atoiStrict(w)
	if err != nil {
		return 0, 0, fmt.Errorf("codec: bad ppm width %q: %w", w, err)
	}
	height, err = atoiStrict(h)
	if err != nil {
		return 0, 0, fmt.Errorf("codec: bad ppm height %q: %w", h, err)
	}

	return width, height, nil
}

// readToken reads one whitespace-delimited token, skipping '#' comment
// lines and leading whitespace, per the plain PPM header grammar (NetPBM
// format description).
func readToken(r *bufio.Reader) (string, error) {
	var tok []byte

	skipWhitespace := func() error {
		for {
			b, err := r.ReadByte()
			if err != nil {
				return err
			}
			if b == '#' {
				if _, err := r.ReadString('\n'); err != nil {
					return err
				}
				continue
			}
			if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
				continue
			}
			return r.UnreadByte()
		}
	}

	if err := skipWhitespace(); err != nil {
		return "", err
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			if len(tok) > 0 {
				return string(tok), nil
			}
			return "", err
		}
		if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
			return string(tok), nil
		}
		tok = append(tok, b)
	}
}

func atoiStrict(s string) (int, error) {
	n := 0
	if s == "" {
		return 0, fmt.Errorf("empty integer")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit %q", c)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}

// Close stops the underlying FFmpeg subprocess.
func (d *Decoder) Close() error {
	return d.proc.stop()
}
