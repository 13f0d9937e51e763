package netio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"
)

// SenderOption configures optional UDPSender parameters.
type SenderOption func(*UDPSender)

// WithSenderMetrics attaches a Metrics reporter. nil keeps the no-op one.
func WithSenderMetrics(m Metrics) SenderOption {
	return func(s *UDPSender) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithSenderTap attaches a Tap that observes every outbound PDU.
func WithSenderTap(t Tap) SenderOption {
	return func(s *UDPSender) {
		if t != nil {
			s.tap = t
		}
	}
}

// UDPSender writes each payload through its own ephemeral UDP socket: the
// socket is opened, used for exactly one datagram, and closed before Send
// returns.
type UDPSender struct {
	maxPDU  int
	logger  *slog.Logger
	metrics Metrics
	tap     Tap
}

// NewUDPSender creates a sender whose datagrams never exceed maxPDU bytes.
// Zero means DefaultMaxPDUSize.
func NewUDPSender(maxPDU int, logger *slog.Logger, opts ...SenderOption) *UDPSender {
	if maxPDU <= 0 {
		maxPDU = DefaultMaxPDUSize
	}

	s := &UDPSender{
		maxPDU:  maxPDU,
		logger:  logger.With(slog.String("component", "netio.sender")),
		metrics: noopMetrics{},
		tap:     Taps(nil),
	}
	for _, o := range opts {
		o(s)
	}

	return s
}

// Send writes payload to dst. A payload longer than the maximum PDU size is
// cut to that size; the dropped tail is intentional and only counted.
func (s *UDPSender) Send(ctx context.Context, payload []byte, dst netip.AddrPort) error {
	if len(payload) > s.maxPDU {
		s.logger.Debug("payload truncated",
			slog.Int("size", len(payload)),
			slog.Int("max_pdu_size", s.maxPDU),
		)
		payload = payload[:s.maxPDU]
		s.metrics.IncPacketsTruncated()
	}

	lc := net.ListenConfig{Control: senderControl(s.maxPDU)}

	pc, err := lc.ListenPacket(ctx, "udp4", "0.0.0.0:0")
	if err != nil {
		return fmt.Errorf("open send socket: %w", err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		return errors.Join(
			fmt.Errorf("open send socket: %w", ErrUnexpectedConnType),
			pc.Close(),
		)
	}

	local := conn.LocalAddr().(*net.UDPAddr).AddrPort()

	_, werr := conn.WriteToUDPAddrPort(payload, dst)
	cerr := conn.Close()
	if werr != nil {
		return fmt.Errorf("send %d bytes to %s: %w", len(payload), dst, errors.Join(werr, cerr))
	}
	if cerr != nil {
		return fmt.Errorf("close send socket: %w", cerr)
	}

	s.metrics.IncPacketsSent()
	s.tap.Packet(Outbound, local, dst, payload, time.Now())

	return nil
}
