package conditioner

import (
	"testing"

	"github.com/wavetap/wavetap/pkg/frame"
)

func TestStereoDownmixIsPairwiseMean(t *testing.T) {
	c := New(4, 1.0)

	raw := frame.PCMFrame{0.2, 0.4, -1.0, 1.0, 0.5, 0.5, 0.0, -0.8}
	conditioned, _ := c.Condition(raw, 2)

	want := frame.PCMFrame{0.3, 0.0, 0.5, -0.4}
	if len(conditioned) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(conditioned))
	}
	for i := range want {
		if diff := conditioned[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, conditioned[i], want[i])
		}
	}
}

func TestShortReadIsZeroPaddedAtTail(t *testing.T) {
	c := New(8, 1.0)

	raw := frame.PCMFrame{0.1, 0.2, 0.3}
	conditioned, _ := c.Condition(raw, 1)

	if len(conditioned) != 8 {
		t.Fatalf("expected 8 samples, got %d", len(conditioned))
	}
	for i, v := range conditioned[3:] {
		if v != 0 {
			t.Errorf("pad sample %d: got %f, want 0", i+3, v)
		}
	}
	if conditioned[0] != 0.1 || conditioned[2] != 0.3 {
		t.Errorf("leading samples not preserved: %v", conditioned[:3])
	}
}

func TestLongReadIsTruncated(t *testing.T) {
	c := New(4, 1.0)

	raw := make(frame.PCMFrame, 10)
	for i := range raw {
		raw[i] = float32(i + 1)
	}
	conditioned, _ := c.Condition(raw, 1)

	if len(conditioned) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(conditioned))
	}
	for i := 0; i < 4; i++ {
		if conditioned[i] != float32(i+1) {
			t.Errorf("sample %d: got %f, want %d", i, conditioned[i], i+1)
		}
	}
}

func TestSilenceClassifiedPreGain(t *testing.T) {
	// An all-zero frame is silent regardless of the gain constant.
	for _, gain := range []float32{1.0, 2.0, 3.0, 100.0} {
		c := New(4, gain)
		_, activityLevel := c.Condition(make(frame.PCMFrame, 4), 1)
		if activityLevel != 0 {
			t.Errorf("gain %f: expected zero activity, got %f", gain, activityLevel)
		}
		if !Silent(activityLevel) {
			t.Errorf("gain %f: all-zero frame not classified silent", gain)
		}
	}
}

func TestActivityLevelIsPeakMagnitudeBeforeGain(t *testing.T) {
	c := New(4, 3.0)

	raw := frame.PCMFrame{0.1, -0.4, 0.2, 0.0}
	conditioned, activityLevel := c.Condition(raw, 1)

	if activityLevel != 0.4 {
		t.Errorf("expected pre-gain activity 0.4, got %f", activityLevel)
	}
	// Gain was still applied to the samples themselves.
	if diff := conditioned[1] - (-1.2); diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected amplified sample -1.2, got %f", conditioned[1])
	}
}

func TestSilenceThresholdBoundary(t *testing.T) {
	if !Silent(SilenceThreshold) {
		t.Error("activity at exactly the threshold must classify silent")
	}
	if Silent(SilenceThreshold + 1e-6) {
		t.Error("activity just above the threshold must classify active")
	}
}

func TestConditionEndToEnd(t *testing.T) {
	// Stereo pairs [0.5 0.5] [-0.2 -0.2] into a 4-sample frame: downmix to
	// [0.5 -0.2], pad to [0.5 -0.2 0 0], activity 0.5 pre-gain.
	c := New(4, 1.0)

	raw := frame.PCMFrame{0.5, 0.5, -0.2, -0.2}
	conditioned, activityLevel := c.Condition(raw, 2)

	want := frame.PCMFrame{0.5, -0.2, 0, 0}
	for i := range want {
		if diff := conditioned[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, conditioned[i], want[i])
		}
	}
	if activityLevel != 0.5 {
		t.Errorf("expected activity 0.5, got %f", activityLevel)
	}
	if Silent(activityLevel) {
		t.Error("frame should classify active")
	}
}

func TestConditionFullFrameSize(t *testing.T) {
	c := New(frame.Size, DefaultGain)

	raw := make(frame.PCMFrame, frame.Size*2)
	for i := range raw {
		raw[i] = 0.25
	}
	conditioned, activityLevel := c.Condition(raw, 2)

	if len(conditioned) != frame.Size {
		t.Fatalf("expected %d samples, got %d", frame.Size, len(conditioned))
	}
	if activityLevel != 0.25 {
		t.Errorf("expected activity 0.25, got %f", activityLevel)
	}
	if diff := conditioned[0] - 0.25*DefaultGain; diff > 1e-6 || diff < -1e-6 {
		t.Errorf("expected amplified sample %f, got %f", 0.25*DefaultGain, conditioned[0])
	}
}
