package testcase

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// -------------------------------------------------------------------------
// Format Errors
// -------------------------------------------------------------------------

var (
	// ErrFormat is the umbrella error for any malformed or unreadable
	// test-case file. Every decode and load error wraps it.
	ErrFormat = errors.New("malformed test case")

	// ErrLengthNotNumeric indicates a non-digit byte before the length terminator.
	ErrLengthNotNumeric = errors.New("section length is not numeric")

	// ErrLengthUnterminated indicates the buffer ended before the space terminator.
	ErrLengthUnterminated = errors.New("section length terminator not found")

	// ErrLengthExceedsData indicates the declared length runs past the buffer end.
	ErrLengthExceedsData = errors.New("section length exceeds remaining data")
)

// lengthTerminator ends the ASCII length prefix of a section.
const lengthTerminator byte = ' '

// sectionCount is the number of framed sections in a test case.
const sectionCount = 2

// -------------------------------------------------------------------------
// TestCase
// -------------------------------------------------------------------------

// TestCase holds the two payload templates of one test case.
// It is immutable after Decode.
type TestCase struct {
	// Name identifies the case: the 7-digit filename or the explicit path.
	Name string

	// Init is the initial request template.
	Init string

	// Teardown is the teardown (CANCEL) template.
	Teardown string
}

// Decode parses exactly two consecutive framed sections from data.
// Payloads are trimmed of surrounding whitespace. Trailing bytes after the
// second section are ignored.
func Decode(data []byte) (TestCase, error) {
	var sections [sectionCount]string

	offset := 0
	for i := range sectionCount {
		payload, next, err := readSection(data, offset)
		if err != nil {
			return TestCase{}, fmt.Errorf("section %d: %w", i+1, err)
		}
		sections[i] = payload
		offset = next
	}

	return TestCase{Init: sections[0], Teardown: sections[1]}, nil
}

// readSection decodes one framed section starting at offset and returns the
// trimmed payload together with the offset of the next section.
func readSection(data []byte, offset int) (string, int, error) {
	end := bytes.IndexByte(data[offset:], lengthTerminator)
	if end < 0 {
		return "", 0, fmt.Errorf("%w: %w", ErrFormat, ErrLengthUnterminated)
	}

	prefix := data[offset : offset+end]
	if len(prefix) == 0 || !isDigits(prefix) {
		return "", 0, fmt.Errorf("%w: %w: %q", ErrFormat, ErrLengthNotNumeric, prefix)
	}

	// An all-digit prefix can only fail to parse by overflowing int, which
	// exceeds any data that could follow it.
	size, err := strconv.Atoi(string(prefix))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w: declared %s, remaining %d",
			ErrFormat, ErrLengthExceedsData, prefix, len(data)-offset-end-1)
	}

	start := offset + end + 1
	if size > len(data)-start {
		return "", 0, fmt.Errorf("%w: %w: declared %d, remaining %d",
			ErrFormat, ErrLengthExceedsData, size, len(data)-start)
	}

	payload := strings.TrimSpace(string(data[start : start+size]))
	return payload, start + size, nil
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Encode frames init and teardown into the test-case file format.
// Decode(Encode(a, b)) yields the trimmed a and b.
func Encode(init, teardown string) []byte {
	var buf bytes.Buffer
	for _, s := range []string{init, teardown} {
		buf.WriteString(strconv.Itoa(len(s)))
		buf.WriteByte(lengthTerminator)
		buf.WriteString(s)
	}
	return buf.Bytes()
}

// Load reads and decodes the test case at path. I/O failures are reported
// as ErrFormat so that callers apply a single per-case skip policy.
func Load(path string) (TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestCase{}, fmt.Errorf("read test case %s: %w: %w", path, ErrFormat, err)
	}

	tc, err := Decode(data)
	if err != nil {
		return TestCase{}, fmt.Errorf("decode test case %s: %w", path, err)
	}
	tc.Name = path

	return tc, nil
}
