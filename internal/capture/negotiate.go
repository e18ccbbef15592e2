package capture

import (
	"fmt"
	"log/slog"

	"github.com/wavetap/wavetap/internal/devicecatalog"
	"github.com/wavetap/wavetap/pkg/frame"
)

// NegotiationRates is the descending-preference list of sample rates tried
// when opening a capture stream. The first rate the device accepts wins.
var NegotiationRates = []int{44100, 48000, 22050, 16000}

// Negotiate opens a capture stream on the device, trying each candidate rate
// in preference order at min(preferredChannels, device.MaxInputChannels)
// channels. A failed attempt is torn down by the backend before the next rate
// is tried, so exhaustion leaks no handles.
//
// Exhaustion is fatal for this device: the caller must pick another device or
// give up. The returned error names the device and every attempted rate.
func Negotiate(
	backend Backend,
	device devicecatalog.Descriptor,
	preferredChannels int,
	logger *slog.Logger,
) (StreamConfig, Stream, error) {
	channels := preferredChannels
	if device.MaxInputChannels < channels {
		channels = device.MaxInputChannels
	}
	// A device reporting zero input channels still gets one attempt at mono;
	// some hosts under-report loopback endpoints.
	if channels < 1 {
		channels = 1
	}

	for _, rate := range NegotiationRates {
		config := StreamConfig{
			SampleRate: rate,
			Channels:   channels,
			FrameSize:  frame.Size,
		}

		stream, err := backend.OpenStream(device, config)
		if err != nil {
			logger.Debug(
				"candidate stream config rejected",
				"device", device.Name,
				"sampleRate", rate,
				"channels", channels,
				"err", err,
			)
			continue
		}

		logger.Info(
			"negotiated capture stream",
			"device", device.Name,
			"sampleRate", rate,
			"channels", channels,
		)
		return config, stream, nil
	}

	return StreamConfig{}, nil, fmt.Errorf(
		"no usable configuration for device %q (index %d): tried rates %v at %d channel(s)",
		device.Name, device.Index, NegotiationRates, channels,
	)
}
