// Package sipmsg extracts the handful of SIP fields the test engine needs
// from raw, possibly malformed messages.
//
// Parsing is line-oriented and lenient on purpose: responses from a target
// under fuzz are not guaranteed to be well-formed, so only the request line,
// status line, Call-ID and CSeq headers are interpreted.
package sipmsg

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Request methods the transaction engine reacts to.
const (
	MethodInvite = "INVITE"
	MethodCancel = "CANCEL"
	MethodAck    = "ACK"
)

// Header names used for correlation.
const (
	HeaderCallID = "Call-ID"
	HeaderCSeq   = "CSeq"
)

var (
	// ErrNoStatusLine indicates the first line is not a SIP status line.
	ErrNoStatusLine = errors.New("not a SIP status line")

	// ErrNoHeader indicates the requested header is absent.
	ErrNoHeader = errors.New("header not found")
)

// statusLineRe matches "SIP/<version> <3-digit code> <reason>".
var statusLineRe = regexp.MustCompile(`^SIP/(\S+) (\d{3}) (.*)$`)

// StatusResponse is the parsed status line of a SIP response.
type StatusResponse struct {
	Version string
	Code    int
	Reason  string
}

// Class returns the status class (code / 100), e.g. 2 for 200 OK.
func (s StatusResponse) Class() int { return s.Code / 100 }

// String renders the status line without the line terminator.
func (s StatusResponse) String() string {
	return fmt.Sprintf("SIP/%s %03d %s", s.Version, s.Code, s.Reason)
}

// FirstLine returns the first line of msg without its terminator.
func FirstLine(msg string) string {
	line, _, _ := strings.Cut(msg, "\n")
	return strings.TrimSuffix(line, "\r")
}

// RequestMethod returns the method token of the request line, or "" when the
// first line is empty.
func RequestMethod(msg string) string {
	method, _, _ := strings.Cut(FirstLine(msg), " ")
	return method
}

// ParseStatusLine parses the first line of msg as a SIP status line.
func ParseStatusLine(msg string) (StatusResponse, error) {
	line := FirstLine(msg)
	m := statusLineRe.FindStringSubmatch(line)
	if m == nil {
		return StatusResponse{}, fmt.Errorf("%w: %q", ErrNoStatusLine, line)
	}

	code, err := strconv.Atoi(m[2])
	if err != nil {
		return StatusResponse{}, fmt.Errorf("%w: %w", ErrNoStatusLine, err)
	}

	return StatusResponse{Version: m[1], Code: code, Reason: m[3]}, nil
}

// HeaderValue returns the trimmed value of the first header line whose name
// matches name case-insensitively. Only the full header name is recognized.
func HeaderValue(msg, name string) (string, error) {
	for line := range strings.Lines(msg) {
		hname, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if strings.EqualFold(strings.TrimSpace(hname), name) {
			return strings.TrimSpace(value), nil
		}
	}
	return "", fmt.Errorf("%s: %w", name, ErrNoHeader)
}

// CallID returns the Call-ID header value of msg.
func CallID(msg string) (string, error) {
	v, err := HeaderValue(msg, HeaderCallID)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", fmt.Errorf("%s is empty: %w", HeaderCallID, ErrNoHeader)
	}
	return v, nil
}

// CSeqMethod returns the method part of the CSeq header ("1 INVITE" -> "INVITE").
func CSeqMethod(msg string) (string, error) {
	v, err := HeaderValue(msg, HeaderCSeq)
	if err != nil {
		return "", err
	}
	fields := strings.Fields(v)
	if len(fields) < 2 {
		return "", fmt.Errorf("%s %q has no method: %w", HeaderCSeq, v, ErrNoHeader)
	}
	return fields[1], nil
}

// RewriteMethod replaces the method token from with to on the request line
// and in the CSeq header. Every other byte of msg is preserved.
func RewriteMethod(msg, from, to string) string {
	var b strings.Builder
	b.Grow(len(msg))

	first := true
	for line := range strings.Lines(msg) {
		switch {
		case first && strings.HasPrefix(line, from):
			line = to + strings.TrimPrefix(line, from)
		case isHeader(line, HeaderCSeq):
			line = rewriteCSeq(line, from, to)
		}
		first = false
		b.WriteString(line)
	}

	return b.String()
}

func isHeader(line, name string) bool {
	hname, _, ok := strings.Cut(line, ":")
	return ok && strings.EqualFold(strings.TrimSpace(hname), name)
}

// rewriteCSeq swaps the method word of a CSeq header line, keeping the
// sequence number and line terminator.
func rewriteCSeq(line, from, to string) string {
	name, value, _ := strings.Cut(line, ":")
	idx := strings.Index(value, from)
	if idx < 0 {
		return line
	}
	return name + ":" + value[:idx] + to + value[idx+len(from):]
}
