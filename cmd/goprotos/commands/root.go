// Package commands implements the goprotos command tree.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Process exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitCasesFailed = 2
)

// errCasesFailed marks a completed run with at least one failed case. The
// report has already been written, so it is not printed again.
var errCasesFailed = errors.New("test cases failed")

// rootFlags are the persistent flags shared by every command.
type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// newRootCmd builds the command tree. Output goes to stdout and stderr
// unless the caller redirects them with SetOut and SetErr.
func newRootCmd() *cobra.Command {
	rf := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "goprotos",
		Short: "SIP robustness test runner",
		Long: "goprotos sends PROTOS-style SIP test cases to a target over UDP, " +
			"tracks each transaction and optionally validates target liveness between cases.",
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// The root runs the suite when no subcommand is given, so
	// "goprotos -t bob@host" is the same as "goprotos run -t bob@host".
	rootRun := &runFlags{}
	bindRunFlags(cmd.Flags(), rootRun)
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if c.Flags().NFlag() == 0 {
			return c.Help()
		}
		return runE(rf, rootRun)(c, args)
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&rf.configPath, "config", "", "path to configuration file (YAML)")
	pf.StringVar(&rf.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	pf.StringVar(&rf.logFormat, "log-format", "json", "log format: json, text, console, dev")

	cmd.AddCommand(runCmd(rf))
	cmd.AddCommand(listCmd())
	cmd.AddCommand(versionCmd())

	return cmd
}

// Execute runs the command tree and returns the process exit code:
// 0 on success, 2 when any test case failed, 1 on any other error.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return execute(ctx, newRootCmd(), os.Args[1:], os.Stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errCasesFailed):
		return exitCasesFailed
	default:
		fmt.Fprintln(stderr, "Error:", err)
		return exitFatal
	}
}
