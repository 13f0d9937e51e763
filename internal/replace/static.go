package replace

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/netip"
	"strconv"
)

// -------------------------------------------------------------------------
// Errors
// -------------------------------------------------------------------------

var (
	// ErrConfig indicates a missing or malformed target option. It is fatal
	// and reported before any packet is sent.
	ErrConfig = errors.New("invalid target configuration")

	// ErrResolution indicates a host could not be resolved to a usable
	// IPv4 address.
	ErrResolution = errors.New("address resolution failed")
)

// -------------------------------------------------------------------------
// Token names
// -------------------------------------------------------------------------

// Static token names, substituted as "<Name>".
const (
	TokenTo             = "To"
	TokenToUser         = "To-User"
	TokenToPass         = "To-Pass"
	TokenToHost         = "To-Host"
	TokenToPort         = "To-Port"
	TokenFrom           = "From"
	TokenFromUser       = "From-User"
	TokenFromPass       = "From-Pass"
	TokenFromHost       = "From-Host"
	TokenFromPort       = "From-Port"
	TokenFromAddress    = "From-Address"
	TokenFromIP         = "From-IP"
	TokenTeardownMethod = "Teardown-Method"
	TokenLocalPort      = "Local-Port"
)

// Dynamic token names, regenerated for every test case.
const (
	TokenCallID        = "Call-ID"
	TokenBranchID      = "Branch-ID"
	TokenCSeq          = "CSeq"
	TokenContentLength = "Content-Length"
)

// TeardownMethod is the method sent to tear down an initial request.
const TeardownMethod = "CANCEL"

// -------------------------------------------------------------------------
// Static replacement set
// -------------------------------------------------------------------------

// Resolver supplies the address lookups the static set depends on.
type Resolver interface {
	// LookupIPv4 returns the IPv4 addresses of host.
	LookupIPv4(ctx context.Context, host string) ([]netip.Addr, error)

	// LocalIPv4 returns the address of the local network interface.
	LocalIPv4() (netip.Addr, error)
}

// Options are the target options the static set is derived from. Zero
// ports mean "not given".
type Options struct {
	ToURI     string
	FromURI   string
	SendTo    string
	DstPort   uint16
	LocalPort uint16
}

// Static is the run-wide replacement set plus the addressing derived
// alongside it. It is built once and never modified afterwards except for
// the bound local port.
type Static struct {
	To   URI
	From URI

	// FromIP is the resolved IPv4 address of the initiator host.
	FromIP netip.Addr

	// Dest is the resolved destination every payload is sent to.
	Dest netip.AddrPort

	// LocalPort is the port the shared socket should bind, before binding.
	LocalPort uint16

	tokens map[string]string
}

// NewStatic builds the static replacement set from opts. Missing or
// malformed URIs fail with ErrConfig; unresolvable hosts with ErrResolution.
func NewStatic(ctx context.Context, opts Options, res Resolver) (*Static, error) {
	if opts.ToURI == "" {
		return nil, fmt.Errorf("%w: touri is required", ErrConfig)
	}
	to, err := ParseURI(opts.ToURI)
	if err != nil {
		return nil, fmt.Errorf("%w: touri: %w", ErrConfig, err)
	}

	s := &Static{To: to}

	if opts.FromURI != "" {
		if s.From, err = ParseURI(opts.FromURI); err != nil {
			return nil, fmt.Errorf("%w: fromuri: %w", ErrConfig, err)
		}
	} else {
		local, err := res.LocalIPv4()
		if err != nil {
			return nil, fmt.Errorf("%w: local address: %w", ErrResolution, err)
		}
		s.From = URI{Raw: local.String(), Host: local.String()}
	}

	if s.FromIP, err = resolveIPv4(ctx, res, s.From.Host); err != nil {
		return nil, err
	}

	dstHost := to.Host
	if opts.SendTo != "" {
		dstHost = opts.SendTo
	}
	dstPort := opts.DstPort
	if dstPort == 0 {
		dstPort = to.PortNumber(DefaultPort)
	}
	dstIP, err := resolveIPv4(ctx, res, dstHost)
	if err != nil {
		return nil, err
	}
	s.Dest = netip.AddrPortFrom(dstIP, dstPort)

	s.LocalPort = opts.LocalPort
	if s.LocalPort == 0 {
		s.LocalPort = s.From.PortNumber(DefaultPort)
	}

	s.tokens = s.buildTokens()
	return s, nil
}

// resolveIPv4 returns host itself when it is an IPv4 literal, else the first
// A record.
func resolveIPv4(ctx context.Context, res Resolver, host string) (netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil && addr.Is4() {
		return addr, nil
	}

	addrs, err := res.LookupIPv4(ctx, host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %s: %w", ErrResolution, host, err)
	}
	if len(addrs) == 0 || !addrs[0].Unmap().Is4() {
		return netip.Addr{}, fmt.Errorf("%w: %s: no IPv4 address", ErrResolution, host)
	}

	return addrs[0].Unmap(), nil
}

func (s *Static) buildTokens() map[string]string {
	toPort := s.To.Port
	if toPort == "" {
		toPort = strconv.Itoa(int(DefaultPort))
	}
	fromPort := s.From.Port
	if fromPort == "" {
		fromPort = strconv.Itoa(int(s.LocalPort))
	}
	localPort := strconv.Itoa(int(s.LocalPort))

	return map[string]string{
		TokenTo:             s.To.Raw,
		TokenToUser:         s.To.User,
		TokenToPass:         s.To.Pass,
		TokenToHost:         s.To.Host,
		TokenToPort:         toPort,
		TokenFrom:           s.From.Raw,
		TokenFromUser:       s.From.User,
		TokenFromPass:       s.From.Pass,
		TokenFromHost:       s.From.Host,
		TokenFromPort:       fromPort,
		TokenFromAddress:    s.FromIP.String() + ":" + localPort,
		TokenFromIP:         s.FromIP.String(),
		TokenTeardownMethod: TeardownMethod,
		TokenLocalPort:      localPort,
	}
}

// BindPort records the port the shared socket actually bound, which may
// differ from LocalPort when an ephemeral port was requested.
func (s *Static) BindPort(port uint16) {
	s.LocalPort = port
	s.tokens = s.buildTokens()
}

// Tokens returns a copy of the static token table.
func (s *Static) Tokens() map[string]string {
	return maps.Clone(s.tokens)
}
