package conditioner

import (
	"github.com/wavetap/wavetap/pkg/frame"
)

// SilenceThreshold is the fixed peak-magnitude policy constant below which a
// frame is classified silent. Not adaptive.
const SilenceThreshold float32 = 0.001

// DefaultGain is the amplification applied to every conditioned sample.
// A single run uses one gain constant for its whole lifetime.
const DefaultGain float32 = 2.5

// Conditioner transforms raw captured buffers into fixed-size, mono,
// gain-adjusted frames. The steps run in fixed order: stereo downmix, length
// normalization, activity measurement, gain. Activity is measured before gain
// so the silence classification is independent of the gain constant.
type Conditioner struct {
	frameSize int
	gain      float32

	// Scratch buffers, reused across calls. Frames are consumed within one
	// loop iteration, so reuse is safe.
	downmixBuf frame.PCMFrame
	outBuf     frame.PCMFrame
}

func New(frameSize int, gain float32) *Conditioner {
	return &Conditioner{
		frameSize:  frameSize,
		gain:       gain,
		downmixBuf: make(frame.PCMFrame, 0, 2*frameSize),
		outBuf:     make(frame.PCMFrame, frameSize),
	}
}

// Condition produces a frame of exactly frameSize mono samples from the raw
// interleaved buffer, plus the pre-gain activity level (peak |sample|).
//
// The returned frame is owned by the Conditioner and valid until the next
// call.
func (c *Conditioner) Condition(raw frame.PCMFrame, channels int) (frame.PCMFrame, float32) {
	mono := raw
	if channels == 2 {
		mono = c.downmix(raw)
	}

	// Length normalization: right-pad a short read with zeros, truncate a
	// long one, so the wire contract holds even under partial reads.
	n := copy(c.outBuf, mono)
	for i := n; i < c.frameSize; i++ {
		c.outBuf[i] = 0
	}

	var activityLevel float32
	for _, v := range c.outBuf {
		if v < 0 {
			v = -v
		}
		if v > activityLevel {
			activityLevel = v
		}
	}

	// Gain applies unconditionally: amplifying the noise floor by a constant
	// cannot change the silence classification computed above.
	for i := range c.outBuf {
		c.outBuf[i] *= c.gain
	}

	return c.outBuf, activityLevel
}

// Silent reports whether an activity level classifies as silence.
func Silent(activityLevel float32) bool {
	return activityLevel <= SilenceThreshold
}

// downmix averages the two interleaved channels per sample position. An odd
// trailing sample has no pair and is dropped.
func (c *Conditioner) downmix(raw frame.PCMFrame) frame.PCMFrame {
	pairs := len(raw) / 2
	if pairs > cap(c.downmixBuf) {
		c.downmixBuf = make(frame.PCMFrame, pairs)
	}
	buf := c.downmixBuf[:pairs]
	for i := 0; i < pairs; i++ {
		buf[i] = (raw[2*i] + raw[2*i+1]) / 2
	}
	return buf
}
