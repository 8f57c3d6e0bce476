// Copyright 2019 Lanikai Labs. All rights reserved.

package pipeline

import "time"

// statsInterval is how often a running Teacher or Student pipeline emits a
// StatsEvent.
const statsInterval = time.Second

// StatsEvent is the periodic status update exposed to the control surface.
type StatsEvent struct {
	FPS         float64
	BitrateKbps float64
	FrameCount  uint64
	LatencyMs   float64
}

// statsTracker accumulates per-second counters and derives a StatsEvent on
// each tick. Not safe for concurrent use; owned by a single pipeline
// goroutine.
type statsTracker struct {
	windowStart   time.Time
	framesInTick  uint64
	bytesInTick   uint64
	totalFrames   uint64
	lastLatencyMs float64
}

func newStatsTracker() *statsTracker {
	return &statsTracker{windowStart: time.Now()}
}

// recordFrame registers one frame of the given encoded/decoded size having
// completed, with the glass-to-glass (or capture-to-send) latency observed
// for it.
func (t *statsTracker) recordFrame(bytes int, latencyMs float64) {
	t.framesInTick++
	t.totalFrames++
	t.bytesInTick += uint64(bytes)
	t.lastLatencyMs = latencyMs
}

// tick returns a StatsEvent for the elapsed window and resets the
// per-window counters, if at least statsInterval has elapsed since the last
// tick; otherwise it returns (StatsEvent{}, false).
func (t *statsTracker) tick(now time.Time) (StatsEvent, bool) {
	elapsed := now.Sub(t.windowStart)
	if elapsed < statsInterval {
		return StatsEvent{}, false
	}

	seconds := elapsed.Seconds()
	ev := StatsEvent{
		FPS:         float64(t.framesInTick) / seconds,
		BitrateKbps: float64(t.bytesInTick*8) / 1000 / seconds,
		FrameCount:  t.totalFrames,
		LatencyMs:   t.lastLatencyMs,
	}

	t.windowStart = now
	t.framesInTick = 0
	t.bytesInTick = 0

	return ev, true
}
