package capture

import (
	"context"
	"errors"

	"github.com/wavetap/wavetap/internal/devicecatalog"
	"github.com/wavetap/wavetap/pkg/frame"
)

var (
	// ErrStreamClosed is returned by Read once a stream has been closed and
	// its buffered frames drained.
	ErrStreamClosed = errors.New("capture stream closed")

	// ErrOverflow marks a device overflow. The stale buffer has already been
	// discarded; the caller should simply continue with the next read.
	ErrOverflow = errors.New("capture device overflow")
)

// StreamConfig is the negotiated capture format. Chosen once by Negotiate and
// immutable for the stream's lifetime.
type StreamConfig struct {
	SampleRate int
	Channels   int
	FrameSize  int
}

// Stream is one open capture stream.
type Stream interface {
	// Read blocks until one raw frame of FrameSize*Channels interleaved
	// samples is available, the context is cancelled, or the stream is
	// closed.
	Read(ctx context.Context) (frame.PCMFrame, error)

	// Close stops the stream and releases the device handle. Safe to call
	// more than once.
	Close() error
}

// Backend abstracts a host audio capture API.
//
// Exactly one backend is chosen per run, by Detect, based on a runtime
// capability probe. All variants present the same surface: enumerate devices,
// open a stream at an explicit format.
type Backend interface {
	// Name identifies the backend in logs and device listings.
	Name() string

	// Devices returns a snapshot of all host devices in host index order.
	// A device that cannot be queried is skipped, not an error.
	Devices() ([]devicecatalog.Descriptor, error)

	// OpenStream opens a capture stream on the given device at exactly the
	// given format, or fails. A failed open leaves no handle behind.
	OpenStream(device devicecatalog.Descriptor, config StreamConfig) (Stream, error)

	// Close releases the backend itself. No streams may be opened afterward.
	Close() error
}
