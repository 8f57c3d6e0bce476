// Copyright 2019 Lanikai Labs. All rights reserved.

package codec

import (
	"os"
	"os/exec"
)

// ffmpegPath resolves the ffmpeg binary: FFMPEG_PATH if set, otherwise
// whatever "ffmpeg" resolves to on PATH.
func ffmpegPath() string {
	if p := os.Getenv("FFMPEG_PATH"); p != "" {
		return p
	}
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p
	}
	return "ffmpeg"
}
