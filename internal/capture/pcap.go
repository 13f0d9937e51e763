// Package capture writes sent and received PDUs to a pcap file so a run can
// be inspected in Wireshark.
package capture

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/dantte-lp/goprotos/internal/netio"
)

// snapLen covers the largest UDP payload plus Ethernet, IPv4 and UDP headers.
const snapLen = 65536 + 64

var (
	localMAC  = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}
	remoteMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02}
)

// Writer is a netio.Tap that frames every PDU as Ethernet/IPv4/UDP and
// appends it to a pcap stream. It is safe for concurrent use.
type Writer struct {
	mu     sync.Mutex
	w      *pcapgo.Writer
	closer io.Closer
	logger *slog.Logger
	err    error
}

var _ netio.Tap = (*Writer)(nil)

// NewWriter writes the pcap file header to w.
func NewWriter(w io.Writer, logger *slog.Logger) (*Writer, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("write pcap header: %w", err)
	}

	return &Writer{
		w:      pw,
		logger: logger.With(slog.String("component", "capture")),
	}, nil
}

// Create creates (or truncates) the pcap file at path.
func Create(path string, logger *slog.Logger) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create pcap %s: %w", path, err)
	}

	w, err := NewWriter(f, logger)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.closer = f

	return w, nil
}

// Packet records one PDU. The first write error is kept and reported by
// Close; later packets are skipped.
func (w *Writer) Packet(dir netio.Direction, src, dst netip.AddrPort, payload []byte, at time.Time) {
	frame, err := encode(dir, src, dst, payload)
	if err != nil {
		w.logger.Warn("pcap encode failed", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.err != nil {
		return
	}

	ci := gopacket.CaptureInfo{
		Timestamp:     at,
		CaptureLength: len(frame),
		Length:        len(frame),
	}
	if err := w.w.WritePacket(ci, frame); err != nil {
		w.err = fmt.Errorf("write pcap packet: %w", err)
		w.logger.Warn("pcap write failed, capture stopped", slog.String("error", err.Error()))
	}
}

// Close closes the underlying file, if Create opened it, and returns the
// first write error.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var closeErr error
	if w.closer != nil {
		closeErr = w.closer.Close()
		w.closer = nil
	}
	if w.err != nil {
		return w.err
	}
	return closeErr
}

func encode(dir netio.Direction, src, dst netip.AddrPort, payload []byte) ([]byte, error) {
	srcMAC, dstMAC := localMAC, remoteMAC
	if dir == netio.Inbound {
		srcMAC, dstMAC = remoteMAC, localMAC
	}

	eth := &layers.Ethernet{
		SrcMAC:       srcMAC,
		DstMAC:       dstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src.Addr()),
		DstIP:    ipv4(dst.Addr()),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(src.Port()),
		DstPort: layers.UDPPort(dst.Port()),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, fmt.Errorf("udp checksum layer: %w", err)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize frame: %w", err)
	}

	return buf.Bytes(), nil
}

// ipv4 returns the 4-byte form of a; invalid or IPv6 addresses become
// 0.0.0.0.
func ipv4(a netip.Addr) net.IP {
	a = a.Unmap()
	if !a.Is4() {
		return net.IPv4zero.To4()
	}
	b := a.As4()
	return net.IP(b[:])
}
