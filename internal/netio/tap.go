package netio

import (
	"fmt"
	"io"
	"net/netip"
	"sync"
	"time"
)

// Direction tells a Tap which way a PDU travelled.
type Direction uint8

const (
	// Outbound is a PDU written to the target.
	Outbound Direction = iota + 1
	// Inbound is a PDU read from the shared socket.
	Inbound
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case Outbound:
		return "sent"
	case Inbound:
		return "received"
	default:
		return fmt.Sprintf("Direction(%d)", d)
	}
}

// Tap observes every PDU on the wire. Implementations must be safe for
// concurrent use and must not retain payload.
type Tap interface {
	Packet(dir Direction, src, dst netip.AddrPort, payload []byte, at time.Time)
}

// Taps fans a packet out to several taps.
type Taps []Tap

// Packet implements Tap.
func (ts Taps) Packet(dir Direction, src, dst netip.AddrPort, payload []byte, at time.Time) {
	for _, t := range ts {
		t.Packet(dir, src, dst, payload, at)
	}
}

// -------------------------------------------------------------------------
// PDU Dumps
// -------------------------------------------------------------------------

// DumpTap writes selected PDUs verbatim to an io.Writer, each preceded by a
// one-line header.
type DumpTap struct {
	mu       sync.Mutex
	w        io.Writer
	sent     bool
	received bool
}

// NewDumpTap returns a tap writing outbound PDUs when sent is set and
// inbound ones when received is set.
func NewDumpTap(w io.Writer, sent, received bool) *DumpTap {
	return &DumpTap{w: w, sent: sent, received: received}
}

// Packet implements Tap.
func (d *DumpTap) Packet(dir Direction, src, dst netip.AddrPort, payload []byte, _ time.Time) {
	if (dir == Outbound && !d.sent) || (dir == Inbound && !d.received) {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Dump output is best effort.
	_, _ = fmt.Fprintf(d.w, "--- %s %s -> %s (%d bytes)\n", dir, src, dst, len(payload))
	_, _ = d.w.Write(payload)
	_, _ = io.WriteString(d.w, "\n")
}
