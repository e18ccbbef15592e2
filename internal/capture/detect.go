package capture

import (
	"errors"
	"log/slog"
)

var errNoSuchSyntheticDevice = errors.New("synthetic backend has exactly one device, index 0")

// Detect probes the host for a usable capture library and returns the backend
// to use for this run. The choice is made exactly once, at startup; nothing
// downstream ever re-probes.
//
// The probe requires PortAudio both to initialize and to report at least one
// input-capable device. Anything less falls back to the synthetic tone
// backend, which keeps the rest of the pipeline exercisable on hosts with no
// audio subsystem at all.
func Detect(logger *slog.Logger) Backend {
	backend, err := NewPortAudioBackend(logger)
	if err != nil {
		logger.Warn("portaudio unavailable, falling back to synthetic backend", "err", err)
		return NewSyntheticBackend(logger)
	}

	devices, err := backend.Devices()
	if err == nil {
		for _, d := range devices {
			if d.MaxInputChannels > 0 {
				logger.Info("capture backend selected", "backend", backend.Name())
				return backend
			}
		}
	}

	if closeErr := backend.Close(); closeErr != nil {
		logger.Warn("error closing probed portaudio backend", "err", closeErr)
	}
	logger.Warn("portaudio reports no input devices, falling back to synthetic backend", "err", err)
	return NewSyntheticBackend(logger)
}
