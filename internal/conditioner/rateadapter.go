package conditioner

import (
	"github.com/oov/audio/resampler"
	"github.com/wavetap/wavetap/pkg/frame"
)

const resampleQuality = 10

// RateAdapter resamples conditioned mono frames from the negotiated capture
// rate to the rate the visualizer expects, re-chunking the output into exact
// frame-size blocks. The wire contract (fixed-size mono frames) is preserved;
// only the frame cadence changes.
//
// When the rates already match the adapter is a pass-through.
type RateAdapter struct {
	frameSize int
	r         *resampler.Resampler

	// Resampled samples accumulated so far. The first `emitted` of them were
	// returned by the previous Push and are reclaimed on the next call, so
	// the unconsumed tail stays strictly shorter than one frame.
	pending frame.PCMFrame
	emitted int

	resampleBuf frame.PCMFrame
	passthrough [1]frame.PCMFrame
}

func NewRateAdapter(frameSize, fromRate, toRate int) *RateAdapter {
	a := &RateAdapter{frameSize: frameSize}
	if fromRate == toRate {
		return a
	}
	a.r = resampler.New(1, fromRate, toRate, resampleQuality)
	a.pending = make(frame.PCMFrame, 0, 2*frameSize)
	a.resampleBuf = make(frame.PCMFrame, 4*frameSize)
	return a
}

// Active reports whether the adapter actually resamples.
func (a *RateAdapter) Active() bool {
	return a.r != nil
}

// Push feeds one conditioned frame in and returns zero or more full frames
// out. Returned frames alias internal buffers and are valid until the next
// Push.
func (a *RateAdapter) Push(in frame.PCMFrame) []frame.PCMFrame {
	if a.r == nil {
		a.passthrough[0] = in
		return a.passthrough[:]
	}

	// Reclaim the samples handed out by the previous call before appending
	// new ones; the returned frames from that call are no longer live.
	if a.emitted > 0 {
		remainder := copy(a.pending, a.pending[a.emitted:])
		a.pending = a.pending[:remainder]
		a.emitted = 0
	}

	_, written := a.r.ProcessFloat32(0, in, a.resampleBuf)
	a.pending = append(a.pending, a.resampleBuf[:written]...)

	var out []frame.PCMFrame
	for len(a.pending)-a.emitted >= a.frameSize {
		out = append(out, a.pending[a.emitted:a.emitted+a.frameSize])
		a.emitted += a.frameSize
	}
	return out
}
