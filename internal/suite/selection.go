package suite

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"

	"github.com/dantte-lp/goprotos/internal/testcase"
)

// NoIndex marks an unset Single or Stop.
const NoIndex = -1

// ErrInvalidSelection indicates an unusable single/start/stop combination.
var ErrInvalidSelection = errors.New("invalid test case selection")

// Case identifies one selected test case.
type Case struct {
	// Index is the numeric index, or NoIndex for a file override.
	Index int

	// Name is the test case filename, reported in failure lists.
	Name string

	// Path is the file the case is loaded from.
	Path string
}

// Selection describes which test cases a run covers.
type Selection struct {
	// Dir holds the 7-digit named test case files.
	Dir string

	// File overrides the whole suite with one external test case file.
	File string

	// Single runs only this index. It overrides Start and Stop.
	Single int

	// Start and Stop bound the inclusive range. Stop defaults to the highest
	// index found in Dir.
	Start int
	Stop  int
}

// Plan is a resolved selection. Cases are produced lazily, so a wide
// range costs nothing until it is walked.
type Plan struct {
	dir   string
	file  string
	start int
	stop  int
}

// Len returns the number of cases the plan yields.
func (p Plan) Len() int {
	if p.file != "" {
		return 1
	}
	return p.stop - p.start + 1
}

// Cases yields the selected cases in increasing index order.
func (p Plan) Cases() iter.Seq[Case] {
	return func(yield func(Case) bool) {
		if p.file != "" {
			yield(Case{Index: NoIndex, Name: filepath.Base(p.file), Path: p.file})
			return
		}
		// The exit test sits after yield so that stop == math.MaxInt
		// terminates.
		for i := p.start; ; i++ {
			c := Case{
				Index: i,
				Name:  testcase.Filename(i),
				Path:  testcase.Path(p.dir, i),
			}
			if !yield(c) || i == p.stop {
				return
			}
		}
	}
}

// Select resolves sel into a Plan. Indexes inside the range without a file
// are kept: loading them fails and they are reported as skipped.
func Select(sel Selection) (Plan, error) {
	if sel.File != "" {
		return Plan{file: sel.File}, nil
	}

	start, stop := sel.Start, sel.Stop
	if sel.Single != NoIndex {
		start, stop = sel.Single, sel.Single
	}
	if start < 0 {
		return Plan{}, fmt.Errorf("%w: start %d is negative", ErrInvalidSelection, start)
	}

	if stop == NoIndex {
		last, err := testcase.LastIndex(sel.Dir)
		if err != nil {
			return Plan{}, fmt.Errorf("select test cases: %w", err)
		}
		stop = last
	}
	if stop < start {
		return Plan{}, fmt.Errorf("%w: stop %d before start %d", ErrInvalidSelection, stop, start)
	}

	return Plan{dir: sel.Dir, start: start, stop: stop}, nil
}
