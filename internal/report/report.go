// Package report renders the outcome of a suite run as text, JSON or YAML.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dantte-lp/goprotos/internal/suite"
	"github.com/dantte-lp/goprotos/internal/txn"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

const valueNA = "-"

// ErrUnsupportedFormat is returned when the requested format is unknown.
var ErrUnsupportedFormat = errors.New("unsupported report format")

// Run describes a finished run.
type Run struct {
	Target string
	Result suite.Result

	// Err is the fatal error that ended the run, if any.
	Err error
}

// Render writes run to w in format.
func Render(w io.Writer, format string, run Run) error {
	v := runToView(run)

	switch format {
	case FormatText:
		return renderText(w, v)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml report: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// --- Views ---

type runView struct {
	Target   string     `json:"target"          yaml:"target"`
	Executed int        `json:"executed"        yaml:"executed"`
	Skipped  int        `json:"skipped"         yaml:"skipped"`
	Timeouts int        `json:"timeouts"        yaml:"timeouts"`
	Failed   []string   `json:"failed"          yaml:"failed"`
	Elapsed  string     `json:"elapsed"         yaml:"elapsed"`
	Error    string     `json:"error,omitempty" yaml:"error,omitempty"`
	Cases    []caseView `json:"cases"           yaml:"cases"`
}

type caseView struct {
	Name       string        `json:"name"                 yaml:"name"`
	Status     string        `json:"status"               yaml:"status"`
	Init       *exchangeView `json:"init,omitempty"       yaml:"init,omitempty"`
	Teardown   *exchangeView `json:"teardown,omitempty"   yaml:"teardown,omitempty"`
	Validation *exchangeView `json:"validation,omitempty" yaml:"validation,omitempty"`
	Error      string        `json:"error,omitempty"      yaml:"error,omitempty"`
}

type exchangeView struct {
	CallID  string `json:"call_id,omitempty" yaml:"call_id,omitempty"`
	Method  string `json:"method"            yaml:"method"`
	State   string `json:"state"             yaml:"state"`
	Status  int    `json:"status,omitempty"  yaml:"status,omitempty"`
	Reason  string `json:"reason,omitempty"  yaml:"reason,omitempty"`
	Elapsed string `json:"elapsed"           yaml:"elapsed"`
}

func runToView(run Run) runView {
	res := run.Result

	v := runView{
		Target:   run.Target,
		Executed: res.Executed,
		Skipped:  res.Skipped,
		Timeouts: res.Timeouts,
		Failed:   res.Failed,
		Elapsed:  res.Elapsed.Round(time.Millisecond).String(),
		Cases:    make([]caseView, 0, len(res.Cases)),
	}
	if v.Failed == nil {
		v.Failed = []string{}
	}
	if run.Err != nil {
		v.Error = run.Err.Error()
	}

	for _, cr := range res.Cases {
		cv := caseView{
			Name:       cr.Name,
			Status:     cr.Status.String(),
			Init:       exchangeToView(cr.Init),
			Teardown:   exchangeToView(cr.Teardown),
			Validation: exchangeToView(cr.Validation),
		}
		if cr.Err != nil {
			cv.Error = cr.Err.Error()
		}
		v.Cases = append(v.Cases, cv)
	}

	return v
}

func exchangeToView(o *txn.Outcome) *exchangeView {
	if o == nil {
		return nil
	}
	return &exchangeView{
		CallID:  o.CallID,
		Method:  o.Method,
		State:   o.State.String(),
		Status:  o.Status.Code,
		Reason:  o.Status.Reason,
		Elapsed: o.Elapsed.Round(time.Microsecond).String(),
	}
}

// --- Text ---

func renderText(w io.Writer, v runView) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "CASE\tSTATUS\tINIT\tTEARDOWN\tVALIDATION")
	for _, c := range v.Cases {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			c.Name, c.Status,
			shortExchange(c.Init), shortExchange(c.Teardown), shortExchange(c.Validation))
	}
	fmt.Fprintln(tw)

	fmt.Fprintf(tw, "Target:\t%s\n", v.Target)
	fmt.Fprintf(tw, "Executed:\t%d\n", v.Executed)
	fmt.Fprintf(tw, "Skipped:\t%d\n", v.Skipped)
	fmt.Fprintf(tw, "Timeouts:\t%d\n", v.Timeouts)
	fmt.Fprintf(tw, "Failed:\t%d\n", len(v.Failed))
	if len(v.Failed) > 0 {
		fmt.Fprintf(tw, "Failed cases:\t%s\n", strings.Join(v.Failed, " "))
	}
	fmt.Fprintf(tw, "Elapsed:\t%s\n", v.Elapsed)
	if v.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", v.Error)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}
	return nil
}

func shortExchange(e *exchangeView) string {
	if e == nil {
		return valueNA
	}
	if e.Status == 0 {
		return e.State
	}
	return fmt.Sprintf("%s (%d)", e.State, e.Status)
}
