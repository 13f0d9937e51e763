package resolver_test

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/miekg/dns"

	"github.com/dantte-lp/goprotos/internal/resolver"
)

// startDNS serves a fixed zone on an ephemeral loopback UDP port and returns
// its address.
func startDNS(t *testing.T, zone map[string][]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(req)

		records, ok := zone[req.Question[0].Name]
		if !ok {
			m.SetRcode(req, dns.RcodeNameError)
		}
		for _, rec := range records {
			rr, err := dns.NewRR(rec)
			if err != nil {
				t.Errorf("bad test record %q: %v", rec, err)
				continue
			}
			m.Answer = append(m.Answer, rr)
		}

		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		Handler:           handler,
		NotifyStartedFunc: func() { close(started) },
	}

	go func() { _ = srv.ActivateAndServe() }()
	<-started

	t.Cleanup(func() { _ = srv.Shutdown() })

	return pc.LocalAddr().String()
}

func TestLookupIPv4NameServer(t *testing.T) {
	t.Parallel()

	ns := startDNS(t, map[string][]string{
		"sip.example.test.": {
			"sip.example.test. 60 IN A 192.0.2.10",
			"sip.example.test. 60 IN A 192.0.2.11",
		},
		"v6only.example.test.": {
			"v6only.example.test. 60 IN AAAA 2001:db8::1",
		},
	})
	r := resolver.New(ns, time.Second)

	tests := []struct {
		name    string
		host    string
		want    []netip.Addr
		wantErr error
	}{
		{
			name: "two A records",
			host: "sip.example.test",
			want: []netip.Addr{netip.MustParseAddr("192.0.2.10"), netip.MustParseAddr("192.0.2.11")},
		},
		{
			name: "literal skips the query",
			host: "198.51.100.7",
			want: []netip.Addr{netip.MustParseAddr("198.51.100.7")},
		},
		{
			name:    "no IPv4 records",
			host:    "v6only.example.test",
			wantErr: resolver.ErrNoRecords,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := r.LookupIPv4(context.Background(), tt.host)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("LookupIPv4(%q) error = %v, want %v", tt.host, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LookupIPv4(%q): %v", tt.host, err)
			}
			if diff := cmp.Diff(tt.want, got, cmp.Comparer(func(a, b netip.Addr) bool { return a == b })); diff != "" {
				t.Errorf("LookupIPv4 mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLookupIPv4NXDomain(t *testing.T) {
	t.Parallel()

	r := resolver.New(startDNS(t, nil), time.Second)

	_, err := r.LookupIPv4(context.Background(), "missing.example.test")
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) {
		t.Fatalf("LookupIPv4 error = %v, want *net.DNSError", err)
	}
	if !dnsErr.IsNotFound {
		t.Errorf("DNSError.IsNotFound = false, want true")
	}
}

func TestLocalIPv4(t *testing.T) {
	t.Parallel()

	addrs := func(cidrs ...string) func() ([]net.Addr, error) {
		return func() ([]net.Addr, error) {
			out := make([]net.Addr, 0, len(cidrs))
			for _, c := range cidrs {
				ip, ipnet, err := net.ParseCIDR(c)
				if err != nil {
					return nil, err
				}
				ipnet.IP = ip
				out = append(out, ipnet)
			}
			return out, nil
		}
	}

	tests := []struct {
		name    string
		list    func() ([]net.Addr, error)
		want    string
		wantErr error
	}{
		{
			name: "skips loopback, link-local and IPv6",
			list: addrs("127.0.0.1/8", "::1/128", "169.254.3.4/16", "fe80::1/64", "10.1.2.3/24"),
			want: "10.1.2.3",
		},
		{
			name: "loopback only",
			list: addrs("127.0.0.1/8", "::1/128"),
			want: "127.0.0.1",
		},
		{
			name:    "nothing usable",
			list:    addrs("::1/128"),
			wantErr: resolver.ErrNoLocalAddr,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := &resolver.Resolver{InterfaceAddrs: tt.list}
			got, err := r.LocalIPv4()
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("LocalIPv4 error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LocalIPv4: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("LocalIPv4 = %s, want %s", got, tt.want)
			}
		})
	}
}
