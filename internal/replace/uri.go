package replace

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DefaultPort is the SIP UDP port used when neither URI nor flag names one.
const DefaultPort uint16 = 5060

// ErrInvalidURI indicates a URI that does not match [user[:pass]@]host[:port].
var ErrInvalidURI = errors.New("invalid URI")

// URI is a parsed "[user[:pass]@]host[:port]" address. Empty fields were
// absent in the input.
type URI struct {
	// Raw is the input with any "sip:" scheme removed.
	Raw  string
	User string
	Pass string
	Host string
	// Port is the decimal port as written, "" if absent.
	Port string
}

// ParseURI parses s. A leading "sip:" scheme is tolerated and dropped.
func ParseURI(s string) (URI, error) {
	raw := strings.TrimSpace(s)
	if len(raw) >= 4 && strings.EqualFold(raw[:4], "sip:") {
		raw = raw[4:]
	}
	if raw == "" || strings.ContainsAny(raw, " \t\r\n<>") {
		return URI{}, fmt.Errorf("%w: %q", ErrInvalidURI, s)
	}

	u := URI{Raw: raw}
	hostport := raw

	if at := strings.LastIndexByte(raw, '@'); at >= 0 {
		userinfo := raw[:at]
		hostport = raw[at+1:]
		u.User, u.Pass, _ = strings.Cut(userinfo, ":")
		if u.User == "" {
			return URI{}, fmt.Errorf("%w: empty user in %q", ErrInvalidURI, s)
		}
	}

	host, port, hasPort := strings.Cut(hostport, ":")
	if host == "" {
		return URI{}, fmt.Errorf("%w: empty host in %q", ErrInvalidURI, s)
	}
	u.Host = host

	if hasPort {
		if _, err := parsePort(port); err != nil {
			return URI{}, fmt.Errorf("%w: %q: %w", ErrInvalidURI, s, err)
		}
		u.Port = port
	}

	return u, nil
}

// PortNumber returns the numeric port, or def when the URI has none.
func (u URI) PortNumber(def uint16) uint16 {
	if u.Port == "" {
		return def
	}
	p, err := parsePort(u.Port)
	if err != nil {
		return def
	}
	return p
}

// parsePort accepts a decimal port in 1..65535.
func parsePort(s string) (uint16, error) {
	if s == "" {
		return 0, errors.New("empty port")
	}
	for i := range len(s) {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("port %q is not decimal", s)
		}
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("port %q out of range 1-65535", s)
	}
	return uint16(n), nil
}
