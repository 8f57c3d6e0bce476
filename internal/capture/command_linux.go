//go:build linux

// Copyright 2019 Lanikai Labs. All rights reserved.

package capture

import (
	"fmt"
	"os"
)

// buildCaptureArgs builds FFmpeg arguments for grabbing the primary display
// via X11 (x11grab).
func buildCaptureArgs(width, height, fps int) []string {
	display := os.Getenv("DISPLAY")
	if display == "" {
		display = ":0.0"
	}

	return []string{
		"-y",
		"-f", "x11grab",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", display,
		"-pix_fmt", "bgra",
		"-f", "rawvideo",
		"pipe:1",
	}
}
