package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// Entry describes one test-case file found in a suite directory.
type Entry struct {
	Index int
	Name  string

	// InitSize and TeardownSize are the decoded section lengths in bytes.
	InitSize     int
	TeardownSize int

	// Err is the load error. Sizes are zero when set.
	Err error
}

type entryView struct {
	Index        int    `json:"index"           yaml:"index"`
	Name         string `json:"name"            yaml:"name"`
	InitSize     int    `json:"init_size"       yaml:"init_size"`
	TeardownSize int    `json:"teardown_size"   yaml:"teardown_size"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

// RenderListing writes entries to w in format.
func RenderListing(w io.Writer, format string, entries []Entry) error {
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v := entryView{
			Index:        e.Index,
			Name:         e.Name,
			InitSize:     e.InitSize,
			TeardownSize: e.TeardownSize,
		}
		if e.Err != nil {
			v.Error = e.Err.Error()
		}
		views = append(views, v)
	}

	switch format {
	case FormatText:
		return renderListingText(w, views)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("encode json listing: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return fmt.Errorf("encode yaml listing: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func renderListingText(w io.Writer, views []entryView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "INDEX\tNAME\tINIT\tTEARDOWN\tERROR")
	for _, v := range views {
		errText := valueNA
		if v.Error != "" {
			errText = v.Error
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			v.Index, v.Name, sizeOrNA(v.InitSize, v.Error), sizeOrNA(v.TeardownSize, v.Error), errText)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}

func sizeOrNA(n int, errText string) string {
	if errText != "" {
		return valueNA
	}
	return strconv.Itoa(n)
}
