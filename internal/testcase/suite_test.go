package testcase_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/goprotos/internal/testcase"
)

func TestFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		idx  int
		want string
	}{
		{0, "0000000"},
		{3, "0000003"},
		{4527, "0004527"},
		{1234567, "1234567"},
	}

	for _, tt := range tests {
		if got := testcase.Filename(tt.idx); got != tt.want {
			t.Errorf("Filename(%d) = %q, want %q", tt.idx, got, tt.want)
		}
		if !testcase.IsName(tt.want) {
			t.Errorf("IsName(%q) = false, want true", tt.want)
		}
	}

	for _, name := range []string{"", "000001", "00000012", "000000a", "README"} {
		if testcase.IsName(name) {
			t.Errorf("IsName(%q) = true, want false", name)
		}
	}
}

func TestIndexesAndLastIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"0000000", "0000002", "0000010", "README", "123"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0000099"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	idxs, err := testcase.Indexes(dir)
	if err != nil {
		t.Fatalf("Indexes: %v", err)
	}
	if diff := cmp.Diff([]int{0, 2, 10}, idxs); diff != "" {
		t.Errorf("Indexes mismatch (-want +got):\n%s", diff)
	}

	last, err := testcase.LastIndex(dir)
	if err != nil {
		t.Fatalf("LastIndex: %v", err)
	}
	if last != 10 {
		t.Errorf("LastIndex = %d, want 10", last)
	}
}

func TestLastIndexEmpty(t *testing.T) {
	t.Parallel()

	_, err := testcase.LastIndex(t.TempDir())
	if !errors.Is(err, testcase.ErrNoTestCases) {
		t.Errorf("LastIndex(empty) error = %v, want ErrNoTestCases", err)
	}

	if _, err := testcase.LastIndex(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("LastIndex(missing dir): expected error, got nil")
	}
}
