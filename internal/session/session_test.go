package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wavetap/wavetap/internal/capture"
	"github.com/wavetap/wavetap/internal/conditioner"
	"github.com/wavetap/wavetap/pkg/frame"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedStream replays a fixed sequence of read results, then blocks until
// cancelled.
type scriptedStream struct {
	mu      sync.Mutex
	results []readResult
	closed  bool
}

type readResult struct {
	f   frame.PCMFrame
	err error
}

func (s *scriptedStream) Read(ctx context.Context) (frame.PCMFrame, error) {
	s.mu.Lock()
	if len(s.results) > 0 {
		r := s.results[0]
		s.results = s.results[1:]
		s.mu.Unlock()
		return r.f, r.err
	}
	s.mu.Unlock()

	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *scriptedStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type recordingSender struct {
	mu       sync.Mutex
	sent     []frame.PCMFrame
	failures int
	closed   bool
}

func (r *recordingSender) Send(f frame.PCMFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("destination unreachable")
	}
	copied := make(frame.PCMFrame, len(f))
	copy(copied, f)
	r.sent = append(r.sent, copied)
	return nil
}

func (r *recordingSender) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSender) sentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func newTestSession(stream capture.Stream, sender Sender, frameSize int) *Session {
	config := capture.StreamConfig{SampleRate: 44100, Channels: 2, FrameSize: frameSize}
	return New(
		config,
		stream,
		sender,
		conditioner.New(frameSize, 1.0),
		conditioner.NewRateAdapter(frameSize, 44100, 44100),
		nil,
		discardLogger(),
	)
}

func runUntilDone(t *testing.T, s *Session, cancel context.CancelFunc, done chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("session did not stop in time")
	}
}

func TestRunConditionsAndSendsEveryFrame(t *testing.T) {
	const frameSize = 4

	// Stereo pairs [0.5 0.5] [-0.2 -0.2]: conditions to [0.5 -0.2 0 0].
	stream := &scriptedStream{results: []readResult{
		{f: frame.PCMFrame{0.5, 0.5, -0.2, -0.2}},
		{f: frame.PCMFrame{0.5, 0.5, -0.2, -0.2}},
	}}
	sender := &recordingSender{}
	s := newTestSession(stream, sender, frameSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for sender.sentCount() < 2 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	runUntilDone(t, s, cancel, done)

	want := frame.PCMFrame{0.5, -0.2, 0, 0}
	got := sender.sent[0]
	for i := range want {
		if diff := got[i] - want[i]; diff > 1e-6 || diff < -1e-6 {
			t.Errorf("sample %d: got %f, want %f", i, got[i], want[i])
		}
	}

	status := s.Status()
	if status.ActivityLevel != 0.5 {
		t.Errorf("expected activity 0.5, got %f", status.ActivityLevel)
	}
	if status.Silent {
		t.Error("expected active status")
	}
	if !stream.closed {
		t.Error("stream not released on stop")
	}
	if !sender.closed {
		t.Error("socket not released on stop")
	}
}

func TestReadErrorContinuesLoop(t *testing.T) {
	const frameSize = 4

	stream := &scriptedStream{results: []readResult{
		{err: errors.New("device hiccup")},
		{f: frame.PCMFrame{0.5, 0.5, 0.5, 0.5}},
	}}
	sender := &recordingSender{}
	s := newTestSession(stream, sender, frameSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for sender.sentCount() < 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	runUntilDone(t, s, cancel, done)

	if s.Status().LastError == "" {
		t.Error("read fault not surfaced in status")
	}
}

func TestOverflowIsDiscardedNotFatal(t *testing.T) {
	const frameSize = 4

	stream := &scriptedStream{results: []readResult{
		{err: capture.ErrOverflow},
		{f: frame.PCMFrame{0.1, 0.1, 0.1, 0.1}},
	}}
	sender := &recordingSender{}
	s := newTestSession(stream, sender, frameSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for sender.sentCount() < 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	runUntilDone(t, s, cancel, done)

	if got := sender.sentCount(); got != 1 {
		t.Errorf("expected 1 sent frame after discarded overflow, got %d", got)
	}
}

func TestTransportErrorContinuesLoop(t *testing.T) {
	const frameSize = 4

	stream := &scriptedStream{results: []readResult{
		{f: frame.PCMFrame{0.5, 0.5, 0.5, 0.5}},
		{f: frame.PCMFrame{0.5, 0.5, 0.5, 0.5}},
	}}
	sender := &recordingSender{failures: 1}
	s := newTestSession(stream, sender, frameSize)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for sender.sentCount() < 1 {
		time.Sleep(time.Millisecond)
	}
	cancel()
	runUntilDone(t, s, cancel, done)

	if s.Status().LastError == "" {
		t.Error("transport fault not surfaced in status")
	}
}

func TestStreamClosedStopsLoop(t *testing.T) {
	stream := &scriptedStream{results: []readResult{
		{err: capture.ErrStreamClosed},
	}}
	sender := &recordingSender{}
	s := newTestSession(stream, sender, 4)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("session did not stop on closed stream")
	}

	if !sender.closed {
		t.Error("socket not released on stop")
	}
}

func TestErrorPolicyTable(t *testing.T) {
	continues := []ErrorKind{KindRead, KindOverflow, KindTransport, KindArchive}
	for _, kind := range continues {
		if policy[kind] != actionContinue {
			t.Errorf("kind %s must continue the loop", kind)
		}
	}
	stops := []ErrorKind{KindCancelled, KindStreamClosed}
	for _, kind := range stops {
		if policy[kind] != actionStop {
			t.Errorf("kind %s must stop the loop", kind)
		}
	}
}

func TestClassifyReadError(t *testing.T) {
	cases := []struct {
		err  error
		kind ErrorKind
	}{
		{context.Canceled, KindCancelled},
		{context.DeadlineExceeded, KindCancelled},
		{capture.ErrStreamClosed, KindStreamClosed},
		{capture.ErrOverflow, KindOverflow},
		{errors.New("anything else"), KindRead},
	}
	for _, c := range cases {
		if got := classifyReadError(c.err); got != c.kind {
			t.Errorf("classifyReadError(%v) = %s, want %s", c.err, got, c.kind)
		}
	}
}
