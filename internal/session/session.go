package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/wavetap/wavetap/internal/archive"
	"github.com/wavetap/wavetap/internal/capture"
	"github.com/wavetap/wavetap/internal/conditioner"
	"github.com/wavetap/wavetap/pkg/frame"
)

// Status is the per-iteration snapshot the surrounding UI reads. The core
// only produces the values; presentation is someone else's problem.
type Status struct {
	ActivityLevel float32
	Silent        bool
	LastError     string
}

// Sender is the transport slice the session drives.
type Sender interface {
	Send(f frame.PCMFrame) error
	Close() error
}

// Session owns the open capture stream and the transport socket for the
// lifetime of one run. There is no module-level state: every resource has an
// explicit create point here and an explicit release point in Close, on every
// exit path.
type Session struct {
	logger *slog.Logger
	uuid   uuid.UUID

	config  capture.StreamConfig
	stream  capture.Stream
	sender  Sender
	cond    *conditioner.Conditioner
	adapter *conditioner.RateAdapter
	tap     *archive.WAVArchive // nil when archiving is off

	statusMu sync.RWMutex
	status   Status

	shutdownOnce sync.Once
}

// New assembles a session around an already negotiated stream. The session
// takes ownership of stream, sender, and tap; all three are released by
// Close.
func New(
	config capture.StreamConfig,
	stream capture.Stream,
	sender Sender,
	cond *conditioner.Conditioner,
	adapter *conditioner.RateAdapter,
	tap *archive.WAVArchive,
	logger *slog.Logger,
) *Session {
	sessionUUID := uuid.New()
	return &Session{
		logger:  logger.With("session uuid", sessionUUID),
		uuid:    sessionUUID,
		config:  config,
		stream:  stream,
		sender:  sender,
		cond:    cond,
		adapter: adapter,
		tap:     tap,
	}
}

// Run drives the capture loop until the context is cancelled or the stream
// dies. Per-iteration faults never stop the loop; they are logged, recorded
// in the status snapshot, and the loop continues at the next iteration. The
// loop free-runs at the device's natural buffer-availability rate; the
// blocking read is the sole suspension point.
//
// All owned resources are released before Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.Close()

	s.logger.Info(
		"capture loop running",
		"sampleRate", s.config.SampleRate,
		"channels", s.config.Channels,
		"frameSize", s.config.FrameSize,
	)

	for {
		// Cancellation is cooperative, observed between iterations and
		// inside the blocking read.
		select {
		case <-ctx.Done():
			s.logger.Info("capture loop stopped", "reason", "cancelled")
			return nil
		default:
		}

		raw, err := s.stream.Read(ctx)
		if err != nil {
			kind := classifyReadError(err)
			if policy[kind] == actionStop {
				s.logger.Info("capture loop stopped", "reason", kind.String())
				return nil
			}
			s.recordError(kind, err)
			continue
		}

		conditioned, activityLevel := s.cond.Condition(raw, s.config.Channels)

		for _, out := range s.adapter.Push(conditioned) {
			if s.tap != nil {
				if err := s.tap.Append(out); err != nil {
					s.recordError(KindArchive, err)
				}
			}

			if err := s.sender.Send(out); err != nil {
				s.recordError(KindTransport, err)
				continue
			}
		}

		// LastError stays until the next fault overwrites it; a clean
		// iteration only refreshes the level.
		s.statusMu.Lock()
		s.status.ActivityLevel = activityLevel
		s.status.Silent = conditioner.Silent(activityLevel)
		s.statusMu.Unlock()
	}
}

// Status returns the latest per-iteration snapshot.
func (s *Session) Status() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

// Close releases the stream, the socket, and the archive tap. Safe to call
// more than once, and called automatically when Run returns.
func (s *Session) Close() {
	s.shutdownOnce.Do(func() {
		if err := s.stream.Close(); err != nil {
			s.logger.Error("error closing capture stream", "err", err)
		}
		if err := s.sender.Close(); err != nil {
			s.logger.Error("error closing transport", "err", err)
		}
		if s.tap != nil {
			if err := s.tap.Close(); err != nil {
				s.logger.Error("error closing archive tap", "err", err)
			}
		}
		s.logger.Info("session closed")
	})
}

func (s *Session) recordError(kind ErrorKind, err error) {
	s.logger.Warn("recovered per-iteration fault", "kind", kind.String(), "err", err)

	s.statusMu.Lock()
	s.status.LastError = err.Error()
	s.statusMu.Unlock()
}
