// Copyright 2019 Lanikai Labs. All rights reserved.

package render

import "sync"

// MemorySurface is a headless Surface that keeps only the last presented
// frame, resized to its own fixed dimensions. Useful for tests, and for
// any deployment without a native window (e.g. a JS-side renderer fed over
// the video-frame event instead).
type MemorySurface struct {
	width, height int

	mu    sync.Mutex
	last  Frame
	count int
}

// NewMemorySurface creates a surface with a fixed output size. If width or
// height is 0, Present never rescales and stores frames at their native
// size.
func NewMemorySurface(width, height int) *MemorySurface {
	return &MemorySurface{width: width, height: height}
}

func (s *MemorySurface) Present(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.width > 0 && s.height > 0 && (f.Width != s.width || f.Height != s.height) {
		f = Frame{
			ARGB:   scale(f.ARGB, f.Width, f.Height, s.width, s.height),
			Width:  s.width,
			Height: s.height,
		}
	}

	s.last = f
	s.count++
	return nil
}

func (s *MemorySurface) Close() error {
	return nil
}

// Last returns the most recently presented frame and how many frames have
// been presented in total.
func (s *MemorySurface) Last() (Frame, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.count
}
