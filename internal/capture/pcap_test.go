package capture_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/dantte-lp/goprotos/internal/capture"
	"github.com/dantte-lp/goprotos/internal/netio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type record struct {
	src, dst netip.AddrPort
	payload  string
	at       time.Time
}

// readAll decodes every frame of a pcap stream down to UDP.
func readAll(t *testing.T, r io.Reader) []record {
	t.Helper()

	pr, err := pcapgo.NewReader(r)
	if err != nil {
		t.Fatalf("pcapgo.NewReader: %v", err)
	}
	if pr.LinkType() != layers.LinkTypeEthernet {
		t.Fatalf("LinkType = %v, want Ethernet", pr.LinkType())
	}

	var out []record
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("ReadPacketData: %v", err)
		}

		pkt := gopacket.NewPacket(data, layers.LayerTypeEthernet, gopacket.Default)
		ip, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		udp, _ := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if ip == nil || udp == nil {
			t.Fatalf("frame is not IPv4/UDP: %v", pkt)
		}

		src, _ := netip.AddrFromSlice(ip.SrcIP.To4())
		dst, _ := netip.AddrFromSlice(ip.DstIP.To4())
		out = append(out, record{
			src:     netip.AddrPortFrom(src, uint16(udp.SrcPort)),
			dst:     netip.AddrPortFrom(dst, uint16(udp.DstPort)),
			payload: string(udp.Payload),
			at:      ci.Timestamp,
		})
	}
}

func TestWriterRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf, discardLogger())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	local := netip.MustParseAddrPort("192.0.2.2:40000")
	target := netip.MustParseAddrPort("192.0.2.1:5060")
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	w.Packet(netio.Outbound, local, target, []byte("INVITE sip:bob@192.0.2.1 SIP/2.0\r\n\r\n"), at)
	w.Packet(netio.Inbound, target, local, []byte("SIP/2.0 200 OK\r\n\r\n"), at.Add(time.Millisecond))

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := readAll(t, &buf)
	if len(got) != 2 {
		t.Fatalf("read %d packets, want 2", len(got))
	}

	if got[0].src != local || got[0].dst != target || got[0].payload != "INVITE sip:bob@192.0.2.1 SIP/2.0\r\n\r\n" {
		t.Errorf("packet 0 = %+v", got[0])
	}
	if got[1].src != target || got[1].dst != local || got[1].payload != "SIP/2.0 200 OK\r\n\r\n" {
		t.Errorf("packet 1 = %+v", got[1])
	}
	if !got[0].at.Equal(at) {
		t.Errorf("timestamp = %v, want %v", got[0].at, at)
	}
}

func TestWriterMaxPDU(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w, err := capture.NewWriter(&buf, discardLogger())
	if err != nil {
		t.Fatal(err)
	}

	payload := bytes.Repeat([]byte("X"), netio.DefaultMaxPDUSize)
	w.Packet(netio.Outbound,
		netip.MustParseAddrPort("0.0.0.0:40000"),
		netip.MustParseAddrPort("192.0.2.1:5060"),
		payload, time.Now())

	got := readAll(t, &buf)
	if len(got) != 1 {
		t.Fatalf("read %d packets, want 1", len(got))
	}
	if len(got[0].payload) != netio.DefaultMaxPDUSize {
		t.Errorf("payload = %d bytes, want %d", len(got[0].payload), netio.DefaultMaxPDUSize)
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "run.pcap")
	w, err := capture.Create(path, discardLogger())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	w.Packet(netio.Outbound,
		netip.MustParseAddrPort("127.0.0.1:40000"),
		netip.MustParseAddrPort("127.0.0.1:5060"),
		[]byte("OPTIONS sip:x SIP/2.0\r\n\r\n"), time.Now())

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got := readAll(t, f); len(got) != 1 {
		t.Errorf("read %d packets, want 1", len(got))
	}
}

func TestCreateBadPath(t *testing.T) {
	t.Parallel()

	if _, err := capture.Create(filepath.Join(t.TempDir(), "missing", "run.pcap"), discardLogger()); err == nil {
		t.Error("Create in a missing directory returned nil error")
	}
}
