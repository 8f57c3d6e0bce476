//go:build windows

// Copyright 2019 Lanikai Labs. All rights reserved.

package capture

import "fmt"

// buildCaptureArgs builds FFmpeg arguments for grabbing the primary display
// via gdigrab.
func buildCaptureArgs(width, height, fps int) []string {
	return []string{
		"-y",
		"-f", "gdigrab",
		"-video_size", fmt.Sprintf("%dx%d", width, height),
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", "desktop",
		"-pix_fmt", "bgra",
		"-f", "rawvideo",
		"pipe:1",
	}
}
