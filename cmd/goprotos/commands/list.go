package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/goprotos/internal/config"
	"github.com/dantte-lp/goprotos/internal/report"
	"github.com/dantte-lp/goprotos/internal/testcase"
)

func listCmd() *cobra.Command {
	var (
		dir    string
		format string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the test cases of a suite directory",
		Long: "list decodes every 7-digit test case file in the directory and prints " +
			"its index and the sizes of its initial and teardown sections.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := listEntries(dir)
			if err != nil {
				return err
			}
			if err := report.RenderListing(cmd.OutOrStdout(), format, entries); err != nil {
				return fmt.Errorf("render listing: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "testcases", config.DefaultDir, "test case directory")
	cmd.Flags().StringVar(&format, "report", report.FormatText, "output format: text, json, yaml")

	return cmd
}

// listEntries decodes every test case in dir. Decode failures are reported
// per entry rather than aborting the listing.
func listEntries(dir string) ([]report.Entry, error) {
	idxs, err := testcase.Indexes(dir)
	if err != nil {
		return nil, err
	}

	entries := make([]report.Entry, 0, len(idxs))
	for _, idx := range idxs {
		e := report.Entry{Index: idx, Name: testcase.Filename(idx)}

		tc, err := testcase.Load(testcase.Path(dir, idx))
		if err != nil {
			e.Err = err
		} else {
			e.InitSize = len(tc.Init)
			e.TeardownSize = len(tc.Teardown)
		}

		entries = append(entries, e)
	}

	return entries, nil
}
