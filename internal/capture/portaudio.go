package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gordonklaus/portaudio"
	"github.com/wavetap/wavetap/internal/devicecatalog"
	"github.com/wavetap/wavetap/pkg/frame"
)

// Depth of the buffered frame channel between the PortAudio callback and the
// capture loop. When the loop stalls, the oldest audio is dropped rather than
// queued: stale frames are worthless to a live visualizer.
const portAudioChannelDepth = 8

// PortAudioBackend captures audio through the host PortAudio library.
// It implements the Backend interface.
type PortAudioBackend struct {
	logger       *slog.Logger
	shutdownOnce sync.Once
}

// NewPortAudioBackend initializes the PortAudio host library. The returned
// backend owns the library handle; Close terminates it.
func NewPortAudioBackend(logger *slog.Logger) (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	return &PortAudioBackend{
		logger: logger.With("capture backend", "portaudio"),
	}, nil
}

func (b *PortAudioBackend) Name() string {
	return "portaudio"
}

// Devices snapshots the host device table in host index order.
func (b *PortAudioBackend) Devices() ([]devicecatalog.Descriptor, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate portaudio devices: %w", err)
	}

	devices := make([]devicecatalog.Descriptor, 0, len(infos))
	for i, info := range infos {
		if info == nil {
			// An unqueryable device is skipped, keeping host index order
			// intact for the rest.
			b.logger.Warn("skipping unqueryable device", "index", i)
			continue
		}
		devices = append(devices, devicecatalog.Descriptor{
			Index:             i,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			MaxOutputChannels: info.MaxOutputChannels,
		})
	}
	return devices, nil
}

// OpenStream opens a capture stream on the given device at exactly the given
// format. On any failure the partially opened stream is torn down before
// returning, so a failed negotiation attempt leaks nothing.
func (b *PortAudioBackend) OpenStream(device devicecatalog.Descriptor, config StreamConfig) (Stream, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate portaudio devices: %w", err)
	}
	if device.Index < 0 || device.Index >= len(infos) {
		return nil, fmt.Errorf("device index %d out of range", device.Index)
	}
	info := infos[device.Index]

	streamUUID := uuid.New()
	logger := b.logger.With(
		"stream uuid", streamUUID,
		"device", device.Name,
	)

	dataChannel := make(chan frame.PCMFrame, portAudioChannelDepth)
	done := make(chan struct{})

	s := &portAudioStream{
		logger:      logger,
		config:      config,
		dataChannel: dataChannel,
		done:        done,
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: config.Channels,
			Latency:  info.DefaultHighInputLatency,
		},
		SampleRate:      float64(config.SampleRate),
		FramesPerBuffer: config.FrameSize,
	}

	// Callback that hands raw buffers to the capture loop.
	cb := func(in []float32, timeInfo portaudio.StreamCallbackTimeInfo, flags portaudio.StreamCallbackFlags) {
		select {
		case <-done:
			return
		default:
		}

		if flags&portaudio.InputOverflow != 0 {
			// The device overran its buffer; the data is stale. Discard it
			// and carry on with the next callback.
			logger.Warn("input overflow, discarding stale buffer")
			return
		}

		pcmFrame := make(frame.PCMFrame, len(in))
		copy(pcmFrame, in)

		select {
		case dataChannel <- pcmFrame:
		default:
			logger.Warn("capture buffer full, dropping frame", "samples", len(in))
		}
	}

	paStream, err := portaudio.OpenStream(params, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream on %q at %dHz/%dch: %w",
			device.Name, config.SampleRate, config.Channels, err)
	}
	s.paStream = paStream

	if err := paStream.Start(); err != nil {
		paStream.Close()
		return nil, fmt.Errorf("failed to start stream on %q at %dHz/%dch: %w",
			device.Name, config.SampleRate, config.Channels, err)
	}

	logger.Info(
		"opened portaudio capture stream",
		"sampleRate", config.SampleRate,
		"channels", config.Channels,
		"frameSize", config.FrameSize,
	)
	return s, nil
}

// Close terminates the PortAudio host library.
func (b *PortAudioBackend) Close() error {
	var err error
	b.shutdownOnce.Do(func() {
		err = portaudio.Terminate()
	})
	return err
}

type portAudioStream struct {
	logger *slog.Logger
	config StreamConfig

	paStream    *portaudio.Stream
	dataChannel chan frame.PCMFrame
	done        chan struct{}

	shutdownOnce sync.Once
}

func (s *portAudioStream) Read(ctx context.Context) (frame.PCMFrame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case pcmFrame, ok := <-s.dataChannel:
		if !ok {
			return nil, ErrStreamClosed
		}
		return pcmFrame, nil
	}
}

func (s *portAudioStream) Close() error {
	var err error
	s.shutdownOnce.Do(func() {
		close(s.done)

		if stopErr := s.paStream.Stop(); stopErr != nil {
			s.logger.Error("error stopping capture stream", "err", stopErr)
			err = stopErr
		}
		if closeErr := s.paStream.Close(); closeErr != nil {
			s.logger.Error("error closing capture stream", "err", closeErr)
			if err == nil {
				err = closeErr
			}
		}

		close(s.dataChannel)
		s.logger.Info("portaudio capture stream closed")
	})
	return err
}
