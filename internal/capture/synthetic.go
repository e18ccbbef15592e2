package capture

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wavetap/wavetap/internal/devicecatalog"
	"github.com/wavetap/wavetap/pkg/frame"
)

const (
	syntheticDeviceName = "Synthetic Tone (Loopback)"
	syntheticToneHz     = 440.0
	syntheticAmplitude  = 0.5
)

// SyntheticBackend is a Backend that exposes a single fake loopback device
// producing a 440Hz sine tone, paced at the real frame rate.
//
// It is the fallback variant when the capability probe finds no usable host
// audio library, and the workhorse for tests: the whole pipeline runs against
// it without any hardware.
type SyntheticBackend struct {
	logger *slog.Logger
}

func NewSyntheticBackend(logger *slog.Logger) *SyntheticBackend {
	return &SyntheticBackend{
		logger: logger.With("capture backend", "synthetic"),
	}
}

func (b *SyntheticBackend) Name() string {
	return "synthetic"
}

func (b *SyntheticBackend) Devices() ([]devicecatalog.Descriptor, error) {
	return []devicecatalog.Descriptor{
		{
			Index:             0,
			Name:              syntheticDeviceName,
			MaxInputChannels:  2,
			MaxOutputChannels: 0,
		},
	}, nil
}

// OpenStream accepts any requested format and produces interleaved sine
// frames at the corresponding real-time pace.
func (b *SyntheticBackend) OpenStream(device devicecatalog.Descriptor, config StreamConfig) (Stream, error) {
	if device.Index != 0 {
		return nil, errNoSuchSyntheticDevice
	}

	s := &syntheticStream{
		config: config,
		period: time.Duration(config.FrameSize) * time.Second / time.Duration(config.SampleRate),
	}
	b.logger.Debug(
		"opened synthetic tone stream",
		"sampleRate", config.SampleRate,
		"channels", config.Channels,
		"frameSize", config.FrameSize,
	)
	return s, nil
}

func (b *SyntheticBackend) Close() error {
	return nil
}

type syntheticStream struct {
	config      StreamConfig
	period      time.Duration
	sampleIndex uint64

	closeMu sync.Mutex
	closed  bool
}

func (s *syntheticStream) Read(ctx context.Context) (frame.PCMFrame, error) {
	s.closeMu.Lock()
	closed := s.closed
	s.closeMu.Unlock()
	if closed {
		return nil, ErrStreamClosed
	}

	// Pace the tone like a real device: one frame per frame period.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.period):
	}

	pcmFrame := make(frame.PCMFrame, s.config.FrameSize*s.config.Channels)
	for i := range s.config.FrameSize {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.config.SampleRate)
		sample := float32(syntheticAmplitude * math.Sin(2*math.Pi*syntheticToneHz*t))
		for ch := range s.config.Channels {
			pcmFrame[i*s.config.Channels+ch] = sample
		}
	}
	s.sampleIndex += uint64(s.config.FrameSize)

	return pcmFrame, nil
}

func (s *syntheticStream) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	s.closed = true
	return nil
}
