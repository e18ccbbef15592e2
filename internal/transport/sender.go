package transport

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"net"
	"sync"

	"github.com/wavetap/wavetap/internal/endpoint"
	"github.com/wavetap/wavetap/pkg/frame"
)

// UDPSender emits conditioned frames as datagrams: one frame, one send, one
// datagram. Frames are never fragmented, batched, or buffered across
// iterations, and no acknowledgement is expected; the underlying transport
// may drop or reorder and the sender does not compensate.
type UDPSender struct {
	logger *slog.Logger
	conn   *net.UDPConn
	dst    endpoint.Endpoint

	// Wire scratch buffer, reused per send.
	wireBuf []byte

	shutdownOnce sync.Once
}

// NewUDPSender opens the transport socket toward the resolved endpoint.
// The socket is owned by the caller for its lifetime and released by Close.
func NewUDPSender(dst endpoint.Endpoint, logger *slog.Logger) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp4", dst.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve endpoint %s: %w", dst, err)
	}

	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open transport socket toward %s: %w", dst, err)
	}

	logger.Info("transport socket open", "endpoint", dst.String())
	return &UDPSender{
		logger:  logger,
		conn:    conn,
		dst:     dst,
		wireBuf: make([]byte, 4*frame.Size),
	}, nil
}

// Send serializes the frame and emits it as a single datagram. Errors
// (unreachable destination, local socket failure) are returned for status
// reporting; they are not fatal to the capture loop.
func (s *UDPSender) Send(f frame.PCMFrame) error {
	payload := AppendWire(s.wireBuf[:0], f)
	if _, err := s.conn.Write(payload); err != nil {
		return fmt.Errorf("datagram send to %s failed: %w", s.dst, err)
	}
	return nil
}

// Endpoint returns the destination every datagram goes to.
func (s *UDPSender) Endpoint() endpoint.Endpoint {
	return s.dst
}

// Close releases the transport socket. Safe to call more than once.
func (s *UDPSender) Close() error {
	var err error
	s.shutdownOnce.Do(func() {
		err = s.conn.Close()
		s.logger.Info("transport socket closed")
	})
	return err
}

// AppendWire appends the wire encoding of a frame to dst: a flat sequence of
// little-endian IEEE-754 32-bit floats, no header, no length prefix, no
// sequence number.
func AppendWire(dst []byte, f frame.PCMFrame) []byte {
	for _, v := range f {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
	}
	return dst
}
