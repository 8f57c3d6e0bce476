// Copyright 2019 Lanikai Labs. All rights reserved.

package codec

// TargetBitrateKbps translates a capture resolution, frame rate, and
// QP-like quality knob into a target encoder bitrate, in kbps.
func TargetBitrateKbps(width, height, fps, quality int) float64 {
	pixels := width * height

	var base float64
	switch {
	case pixels <= 1280*720:
		base = 1500
	case pixels <= 1920*1080:
		base = 3000
	default:
		base = 5000
	}

	fpsFactor := float64(fps) / 30.0

	qualityFactor := 1 - float64(quality-20)/60.0
	if qualityFactor < 0.3 {
		qualityFactor = 0.3
	}

	return base * fpsFactor * qualityFactor
}
