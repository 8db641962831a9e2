package emu

import (
	"github.com/murkland/tango/internal/core"
)

// clockRate is the GBA's fixed master clock, used as the resampler's native
// input rate.
const clockRate = 16777216.0

// Resampler pulls audio from a core.Core at the GBA's native rate and
// presents it at outputRate. Each Pull computes the ratio from the
// fpsTarget it is given; no measured frame rate is used (the actual-fps
// argument to calculateRatio is fixed at 1.0).
type Resampler struct {
	core       core.Core
	outputRate float64
}

// NewResampler creates a Resampler reading from c at outputRate Hz (e.g. 48000).
func NewResampler(c core.Core, outputRate float64) *Resampler {
	return &Resampler{core: c, outputRate: outputRate}
}

// ratio converts the "1 video frame of audio" baseline into a
// per-output-sample pull count:
// clockRate/outputRate * calculateRatio(1.0, fpsTarget, 1.0).
func (r *Resampler) ratio(fpsTarget float64) float64 {
	return (clockRate / r.outputRate) * calculateRatio(1.0, fpsTarget, 1.0)
}

// calculateRatio scales a baseline ratio by how far the actual frame rate
// has drifted from the target, so the resampler compensates for emulator
// speed changes (fast-forward, frame skip) without needing to know about
// them directly.
func calculateRatio(baseline, fpsTarget, fpsActual float64) float64 {
	if fpsActual == 0 {
		return baseline
	}
	return baseline * (fpsTarget / fpsActual)
}

// Pull fills left and right with up to len(left) resampled stereo samples,
// returning the number of samples written. The clock-to-output ratio is
// computed here and handed to the core, which only consumes it. When the
// emulator is paused or running below real time, the unfilled tail is
// zeroed rather than left stale or blocked on.
func (r *Resampler) Pull(left, right []int16, fpsTarget float64) int {
	n := r.core.AudioSamples(left, right, r.ratio(fpsTarget))
	for i := n; i < len(left); i++ {
		left[i] = 0
	}
	for i := n; i < len(right); i++ {
		right[i] = 0
	}
	return n
}
