package replace

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Dynamic holds the per-test-case identifiers. Init and teardown payloads of
// one test case share them so the CANCEL matches the request it cancels.
type Dynamic struct {
	CallID   string
	BranchID string
}

// NewDynamic returns fresh identifiers derived from a random UUID.
func NewDynamic() Dynamic {
	id := uuid.New().String()
	return Dynamic{
		CallID:   id,
		BranchID: strings.ReplaceAll(id, "-", ""),
	}
}

// CSeq numbers of the two payloads of a test case.
const (
	CSeqInit     = 1
	CSeqTeardown = 2
)

const (
	crlf        = "\r\n"
	blankLine   = "\r\n\r\n"
	magicCookie = "branch=z9hG4bK"
)

var (
	// branchRe matches the magic cookie up to the first Branch-ID marker on
	// the same line.
	branchRe = regexp.MustCompile(`branch=z9hG4bK[^\r\n]*?<` + TokenBranchID + `>`)

	tokenRe = regexp.MustCompile(`<([A-Za-z][A-Za-z-]*)>`)
)

// Apply substitutes every known "<Token>" in template, fills in
// Content-Length and ensures the blank-line terminator. Unknown tokens are
// left untouched.
func Apply(template string, static *Static, dyn Dynamic, cseq int) string {
	table := static.Tokens()
	table[TokenCallID] = dyn.CallID
	table[TokenBranchID] = dyn.BranchID
	table[TokenCSeq] = strconv.Itoa(cseq)

	out := branchRe.ReplaceAllLiteralString(template, magicCookie+dyn.BranchID)

	out = tokenRe.ReplaceAllStringFunc(out, func(m string) string {
		if v, ok := table[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})

	// The terminator goes on first: it may extend the body, and the
	// substituted digits only change the header section.
	out = EnsureTerminator(out)

	if marker := "<" + TokenContentLength + ">"; strings.Contains(out, marker) {
		out = strings.ReplaceAll(out, marker, strconv.Itoa(ContentLength(out)))
	}

	return out
}

// ContentLength returns the byte length of everything after the first blank
// line, or 0 when msg has no blank line.
func ContentLength(msg string) int {
	_, body, ok := strings.Cut(msg, blankLine)
	if !ok {
		return 0
	}
	return len(body)
}

// EnsureTerminator makes msg end with exactly one blank line, appending only
// what is missing.
func EnsureTerminator(msg string) string {
	switch {
	case strings.HasSuffix(msg, blankLine):
		return msg
	case strings.HasSuffix(msg, crlf):
		return msg + crlf
	default:
		return msg + blankLine
	}
}
