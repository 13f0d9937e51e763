package testcase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// ValidIndex is the reserved index of the known-good reference case used to
// confirm target liveness between fuzz cases.
const ValidIndex = 0

// nameWidth is the zero-padded width of test-case filenames.
const nameWidth = 7

// ErrNoTestCases indicates a directory holds no test-case files.
var ErrNoTestCases = errors.New("no test cases found")

// Filename returns the 7-digit zero-padded filename for idx (e.g. "0000003").
func Filename(idx int) string {
	return fmt.Sprintf("%0*d", nameWidth, idx)
}

// Path returns the path of test case idx inside dir.
func Path(dir string, idx int) string {
	return filepath.Join(dir, Filename(idx))
}

// IsName reports whether name follows the test-case filename convention.
func IsName(name string) bool {
	return len(name) == nameWidth && isDigits([]byte(name))
}

// Indexes returns the indexes of all test-case files in dir, ascending.
func Indexes(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("list test cases in %s: %w", dir, err)
	}

	// os.ReadDir sorts by name, and fixed-width names sort numerically.
	idxs := make([]int, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsName(e.Name()) {
			continue
		}
		idx, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		idxs = append(idxs, idx)
	}

	return idxs, nil
}

// LastIndex returns the highest test-case index present in dir.
func LastIndex(dir string) (int, error) {
	idxs, err := Indexes(dir)
	if err != nil {
		return 0, err
	}
	if len(idxs) == 0 {
		return 0, fmt.Errorf("%s: %w", dir, ErrNoTestCases)
	}
	return idxs[len(idxs)-1], nil
}
