// Package resolver looks up IPv4 addresses for SIP hosts and the local
// interface address used when no initiator URI is configured.
//
// With a NameServer set, A records are queried directly via miekg/dns;
// otherwise the system resolver is used.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

// defaultTimeout bounds a single DNS exchange when Timeout is unset.
const defaultTimeout = 5 * time.Second

var (
	// ErrNoRecords indicates the lookup succeeded but returned no IPv4 address.
	ErrNoRecords = errors.New("no IPv4 address records")

	// ErrNoLocalAddr indicates no usable IPv4 address is configured on any
	// interface of the host.
	ErrNoLocalAddr = errors.New("no local IPv4 address")
)

// Resolver resolves host names to IPv4 addresses.
type Resolver struct {
	// NameServer is the DNS server address (e.g. "192.0.2.53:53"). A bare
	// host gets port 53. Empty selects the system resolver.
	NameServer string

	// Timeout bounds each DNS query. Zero means 5 seconds.
	Timeout time.Duration

	// InterfaceAddrs lists local addresses. nil means net.InterfaceAddrs.
	InterfaceAddrs func() ([]net.Addr, error)
}

// New creates a Resolver querying nameServer, or the system resolver when
// nameServer is empty.
func New(nameServer string, timeout time.Duration) *Resolver {
	return &Resolver{NameServer: nameServer, Timeout: timeout}
}

// LookupIPv4 returns the IPv4 addresses of host. An IPv4 literal is returned
// as-is without a query.
func (r *Resolver) LookupIPv4(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil && addr.Unmap().Is4() {
		return []netip.Addr{addr.Unmap()}, nil
	}

	var (
		addrs []netip.Addr
		err   error
	)
	if r.NameServer != "" {
		addrs, err = r.queryA(ctx, host)
	} else {
		addrs, err = r.lookupSystem(ctx, host)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("lookup %s: %w", host, ErrNoRecords)
	}

	return addrs, nil
}

func (r *Resolver) lookupSystem(ctx context.Context, host string) ([]netip.Addr, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip4", host)
	if err != nil {
		return nil, fmt.Errorf("system resolver: %w", err)
	}

	addrs := make([]netip.Addr, 0, len(ips))
	for _, ip := range ips {
		if ip = ip.Unmap(); ip.Is4() {
			addrs = append(addrs, ip)
		}
	}
	return addrs, nil
}

// queryA sends one recursive A query to the configured name server.
func (r *Resolver) queryA(ctx context.Context, host string) ([]netip.Addr, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)
	m.RecursionDesired = true

	client := &dns.Client{Net: "udp", Timeout: r.timeout()}
	resp, _, err := client.ExchangeContext(ctx, m, r.nameServer())
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", r.nameServer(), err)
	}

	if resp.Rcode != dns.RcodeSuccess {
		return nil, &net.DNSError{
			Err:        dns.RcodeToString[resp.Rcode],
			Name:       host,
			Server:     r.nameServer(),
			IsNotFound: resp.Rcode == dns.RcodeNameError,
		}
	}

	addrs := make([]netip.Addr, 0, len(resp.Answer))
	for _, ans := range resp.Answer {
		rr, ok := ans.(*dns.A)
		if !ok {
			continue
		}
		if addr, ok := netip.AddrFromSlice(rr.A); ok && addr.Unmap().Is4() {
			addrs = append(addrs, addr.Unmap())
		}
	}
	return addrs, nil
}

// LocalIPv4 returns the first non-loopback IPv4 address configured on the
// host, falling back to a loopback address when that is all there is.
func (r *Resolver) LocalIPv4() (netip.Addr, error) {
	list := r.InterfaceAddrs
	if list == nil {
		list = net.InterfaceAddrs
	}

	ifAddrs, err := list()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("list interface addresses: %w", err)
	}

	var loopback netip.Addr
	for _, a := range ifAddrs {
		prefix, err := netip.ParsePrefix(a.String())
		if err != nil {
			continue
		}
		addr := prefix.Addr().Unmap()
		switch {
		case !addr.Is4(), addr.IsLinkLocalUnicast():
			continue
		case addr.IsLoopback():
			if !loopback.IsValid() {
				loopback = addr
			}
		default:
			return addr, nil
		}
	}

	if loopback.IsValid() {
		return loopback, nil
	}
	return netip.Addr{}, ErrNoLocalAddr
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return defaultTimeout
}

func (r *Resolver) nameServer() string {
	if _, _, err := net.SplitHostPort(r.NameServer); err != nil {
		return net.JoinHostPort(r.NameServer, "53")
	}
	return r.NameServer
}
