package netio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"
)

// -------------------------------------------------------------------------
// Listener Configuration
// -------------------------------------------------------------------------

// ListenerConfig holds configuration for the run's shared UDP socket.
type ListenerConfig struct {
	// Addr is the local IPv4 address to bind to. The zero value binds all
	// interfaces.
	Addr netip.Addr

	// Port is the local UDP port. Zero requests an ephemeral port.
	Port uint16

	// MaxPDUSize sizes both SO_RCVBUF and the read buffer. Zero means
	// DefaultMaxPDUSize.
	MaxPDUSize int
}

// -------------------------------------------------------------------------
// Shared Receive Socket
// -------------------------------------------------------------------------

// Listener owns the UDP socket responses arrive on. It is created once per
// run and closed exactly once; further Close calls are no-ops.
type Listener struct {
	conn  *net.UDPConn
	local netip.AddrPort
	buf   []byte

	closeOnce sync.Once
	closeErr  error
}

// Listen binds the shared receive socket described by cfg.
func Listen(ctx context.Context, cfg ListenerConfig) (*Listener, error) {
	size := cfg.MaxPDUSize
	if size <= 0 {
		size = DefaultMaxPDUSize
	}

	addr := cfg.Addr
	if !addr.IsValid() {
		addr = netip.IPv4Unspecified()
	}
	laddr := netip.AddrPortFrom(addr, cfg.Port)

	lc := net.ListenConfig{Control: listenerControl(size)}

	pc, err := lc.ListenPacket(ctx, "udp4", laddr.String())
	if err != nil {
		return nil, fmt.Errorf("listen UDP %s: %w", laddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, errors.Join(
			fmt.Errorf("listen UDP %s: %w", laddr, ErrUnexpectedConnType),
			closeErr,
		)
	}

	return &Listener{
		conn:  conn,
		local: conn.LocalAddr().(*net.UDPAddr).AddrPort(),
		buf:   make([]byte, size),
	}, nil
}

// Recv blocks until one datagram arrives. The returned Data is a copy the
// caller owns. Recv must not be called concurrently.
func (l *Listener) Recv() (Datagram, error) {
	n, src, err := l.conn.ReadFromUDPAddrPort(l.buf)
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return Datagram{}, fmt.Errorf("listener recv: %w", ErrSocketClosed)
		}
		return Datagram{}, fmt.Errorf("listener recv: %w", err)
	}

	data := make([]byte, n)
	copy(data, l.buf[:n])

	return Datagram{
		Data: data,
		Src:  netip.AddrPortFrom(src.Addr().Unmap(), src.Port()),
		Dst:  l.local,
		At:   time.Now(),
	}, nil
}

// LocalAddr returns the bound address, including the actual port when an
// ephemeral one was requested.
func (l *Listener) LocalAddr() netip.AddrPort {
	return l.local
}

// interrupt unblocks a pending Recv without closing the socket.
func (l *Listener) interrupt() {
	_ = l.conn.SetReadDeadline(time.Now())
}

// Close closes the socket. Only the first call has an effect.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		if err := l.conn.Close(); err != nil {
			l.closeErr = fmt.Errorf("close listener: %w", err)
		}
	})
	return l.closeErr
}
