package session

import (
	"context"
	"errors"

	"github.com/wavetap/wavetap/internal/capture"
)

// ErrorKind classifies a per-iteration fault so the loop's continue-vs-stop
// decision is an explicit table lookup, not a blanket catch-all.
type ErrorKind int

const (
	KindRead ErrorKind = iota
	KindOverflow
	KindTransport
	KindArchive
	KindCancelled
	KindStreamClosed
)

func (k ErrorKind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindOverflow:
		return "overflow"
	case KindTransport:
		return "transport"
	case KindArchive:
		return "archive"
	case KindCancelled:
		return "cancelled"
	case KindStreamClosed:
		return "stream closed"
	}
	return "unknown"
}

type action int

const (
	actionContinue action = iota
	actionStop
)

// The loop policy: transient I/O faults are recovered locally and surfaced
// only as status; only cancellation or a dead stream stops the loop.
var policy = map[ErrorKind]action{
	KindRead:         actionContinue,
	KindOverflow:     actionContinue,
	KindTransport:    actionContinue,
	KindArchive:      actionContinue,
	KindCancelled:    actionStop,
	KindStreamClosed: actionStop,
}

func classifyReadError(err error) ErrorKind {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, capture.ErrStreamClosed):
		return KindStreamClosed
	case errors.Is(err, capture.ErrOverflow):
		return KindOverflow
	}
	return KindRead
}
