package netio

import (
	"errors"
	"net/netip"
	"time"
)

// -------------------------------------------------------------------------
// Transport Constants
// -------------------------------------------------------------------------

const (
	// DefaultMaxPDUSize is the largest UDP payload over IPv4
	// (65535 - 8 byte UDP header - 20 byte IP header).
	DefaultMaxPDUSize = 65507

	// subscriptionBuffer is the number of datagrams a Subscription holds
	// before further ones for the same Call-ID are dropped.
	subscriptionBuffer = 16
)

// -------------------------------------------------------------------------
// Datagram
// -------------------------------------------------------------------------

// Datagram is one UDP payload received on the shared socket.
type Datagram struct {
	// Data is owned by the receiver of the Datagram.
	Data []byte

	// Src is the sender of the datagram.
	Src netip.AddrPort

	// Dst is the local address the datagram arrived on.
	Dst netip.AddrPort

	// At is the receive timestamp.
	At time.Time
}

// -------------------------------------------------------------------------
// Sentinel Errors
// -------------------------------------------------------------------------

var (
	// ErrSocketClosed indicates an operation on a closed socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrUnexpectedConnType indicates ListenPacket returned something other
	// than *net.UDPConn.
	ErrUnexpectedConnType = errors.New("unexpected connection type from ListenPacket")

	// ErrAlreadySubscribed indicates a live subscription already exists for
	// the Call-ID.
	ErrAlreadySubscribed = errors.New("call-id already subscribed")

	// ErrEmptyCallID indicates a subscription for an empty Call-ID.
	ErrEmptyCallID = errors.New("empty call-id")
)
