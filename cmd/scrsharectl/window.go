// Copyright 2019 Lanikai Labs. All rights reserved.

package main

import "github.com/lanikai/scrshare/internal/render"

// newWindowSurface returns the native window surface for this build. The
// default build carries no windowing library and falls back to a headless
// surface; a real window is build-tag-gated plumbing a host application can
// supply.
func newWindowSurface() render.Surface {
	log.Warn("no native window in this build; rendering headless (use a windowed build or --headless to silence this)")
	return render.NewMemorySurface(0, 0)
}
