package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goprotos/internal/capture"
	"github.com/dantte-lp/goprotos/internal/config"
	"github.com/dantte-lp/goprotos/internal/logging"
	protosmetrics "github.com/dantte-lp/goprotos/internal/metrics"
	"github.com/dantte-lp/goprotos/internal/netio"
	"github.com/dantte-lp/goprotos/internal/replace"
	"github.com/dantte-lp/goprotos/internal/report"
	"github.com/dantte-lp/goprotos/internal/resolver"
	"github.com/dantte-lp/goprotos/internal/suite"
	appversion "github.com/dantte-lp/goprotos/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections once the run has finished.
const shutdownTimeout = 5 * time.Second

// runFlags holds the values of the run command flags. Only flags the user
// set explicitly are turned into configuration overrides.
type runFlags struct {
	toURI     string
	fromURI   string
	sendTo    string
	dstPort   uint16
	localPort uint16
	bindAddr  string

	dir       string
	file      string
	single    int
	start     int
	stop      int
	delayMS   int
	teardown  bool
	validate  bool
	failFast  bool
	replyMS   int
	maxPDU    int
	showSent  bool
	showReply bool
	pcap      string

	nameServer   string
	metricsAddr  string
	reportFormat string
	reportOutput string
}

func runCmd(rf *rootFlags) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run test cases against a SIP target",
		Long: "run sends the selected test cases to the target one at a time, waits for " +
			"the responses of each transaction and writes a report. The exit code is 2 " +
			"when any case failed validation.",
		Args: cobra.NoArgs,
		RunE: runE(rf, f),
	}

	bindRunFlags(cmd.Flags(), f)

	return cmd
}

// runE loads the configuration from the config file, the environment and
// the flags set on cmd, then runs the suite.
func runE(rf *rootFlags, f *runFlags) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(rf.configPath, f.overrides(cmd.Flags(), rf))
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		return runSuite(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	}
}

// bindRunFlags registers the run flags on fl, storing values in f.
func bindRunFlags(fl *pflag.FlagSet, f *runFlags) {
	fl.StringVarP(&f.toURI, "touri", "t", "", "recipient URI [user[:pass]@]host[:port] (required)")
	fl.StringVarP(&f.fromURI, "fromuri", "f", "", "initiator URI (default: local interface address)")
	fl.StringVarP(&f.sendTo, "sendto", "s", "", "send datagrams to this host instead of the touri host")
	fl.Uint16VarP(&f.dstPort, "dport", "p", 0, "destination port (default: touri port or 5060)")
	fl.Uint16VarP(&f.localPort, "lport", "l", 0, "local port (default: fromuri port or 5060)")
	fl.StringVar(&f.bindAddr, "bind", "", "local IPv4 address of the receiving socket")

	fl.StringVar(&f.dir, "testcases", config.DefaultDir, "test case directory")
	fl.StringVarP(&f.file, "file", "F", "", "run a single test case file instead of the directory")
	fl.IntVar(&f.single, "single", config.Unset, "run only this test case index")
	fl.IntVar(&f.start, "start", 0, "first test case index")
	fl.IntVar(&f.stop, "stop", config.Unset, "last test case index (default: last one found)")
	fl.IntVarP(&f.delayMS, "delay", "d", int(config.DefaultDelay/time.Millisecond), "delay between test cases in ms")
	fl.BoolVarP(&f.teardown, "teardown", "T", false, "send the teardown (CANCEL) after every test case")
	fl.BoolVarP(&f.validate, "validcase", "V", false, "send the valid case after every test case")
	fl.BoolVar(&f.failFast, "fail-fast", false, "abort on the first unreadable or failed test case")

	fl.IntVarP(&f.replyMS, "replywait", "r", int(config.DefaultReplyWait/time.Millisecond), "maximum wait for a reply in ms")
	fl.IntVarP(&f.maxPDU, "maxpdusize", "m", config.DefaultMaxPDUSize, "maximum PDU size in bytes")
	fl.BoolVarP(&f.showSent, "showsent", "S", false, "dump sent PDUs to stderr")
	fl.BoolVarP(&f.showReply, "showreply", "R", false, "dump received PDUs to stderr")
	fl.StringVar(&f.pcap, "pcap", "", "write sent and received PDUs to this pcap file")

	fl.StringVar(&f.nameServer, "nameserver", "", "DNS server for host lookups (default: system resolver)")
	fl.StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")
	fl.StringVar(&f.reportFormat, "report", report.FormatText, "report format: text, json, yaml")
	fl.StringVarP(&f.reportOutput, "output", "o", "", "write the report to this file instead of stdout")
}

// overrides maps explicitly set flags to koanf keys.
func (f *runFlags) overrides(fs *pflag.FlagSet, rf *rootFlags) map[string]any {
	m := make(map[string]any)
	set := func(flag, key string, val any) {
		if fs.Changed(flag) {
			m[key] = val
		}
	}
	ms := func(n int) string { return (time.Duration(n) * time.Millisecond).String() }

	set("touri", "target.to_uri", f.toURI)
	set("fromuri", "target.from_uri", f.fromURI)
	set("sendto", "target.send_to", f.sendTo)
	set("dport", "target.dst_port", f.dstPort)
	set("lport", "target.local_port", f.localPort)
	set("bind", "target.bind_addr", f.bindAddr)

	set("testcases", "suite.dir", f.dir)
	set("file", "suite.file", f.file)
	set("single", "suite.single", f.single)
	set("start", "suite.start", f.start)
	set("stop", "suite.stop", f.stop)
	set("delay", "suite.delay", ms(f.delayMS))
	set("teardown", "suite.teardown", f.teardown)
	set("validcase", "suite.validate", f.validate)
	set("fail-fast", "suite.fail_fast", f.failFast)

	set("replywait", "transport.reply_wait", ms(f.replyMS))
	set("maxpdusize", "transport.max_pdu_size", f.maxPDU)
	set("showsent", "dump.show_sent", f.showSent)
	set("showreply", "dump.show_reply", f.showReply)
	set("pcap", "dump.pcap", f.pcap)

	set("nameserver", "dns.nameserver", f.nameServer)
	set("metrics-addr", "metrics.addr", f.metricsAddr)
	set("report", "report.format", f.reportFormat)
	set("output", "report.output", f.reportOutput)

	set("log-level", "log.level", rf.logLevel)
	set("log-format", "log.format", rf.logFormat)

	return m
}

// runSuite executes one run described by cfg and writes its report. A run
// that completes with failed cases returns errCasesFailed.
func runSuite(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger, err := logging.New(stderr, cfg.Log.Format, logLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	logger.Info("goprotos starting",
		slog.String("version", appversion.Version),
		slog.String("touri", cfg.Target.ToURI),
		slog.String("testcases", cfg.Suite.Dir),
	)

	static, err := replace.NewStatic(ctx, replace.Options{
		ToURI:     cfg.Target.ToURI,
		FromURI:   cfg.Target.FromURI,
		SendTo:    cfg.Target.SendTo,
		DstPort:   cfg.Target.DstPort,
		LocalPort: cfg.Target.LocalPort,
	}, resolver.New(cfg.DNS.NameServer, cfg.DNS.Timeout))
	if err != nil {
		return fmt.Errorf("prepare replacements: %w", err)
	}

	bindAddr, err := cfg.BindAddr()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector := protosmetrics.NewCollector(reg)

	opts := []suite.Option{suite.WithMetrics(collector)}
	if cfg.Dump.ShowSent || cfg.Dump.ShowReply {
		opts = append(opts, suite.WithTap(netio.NewDumpTap(stderr, cfg.Dump.ShowSent, cfg.Dump.ShowReply)))
	}
	if cfg.Dump.PCAP != "" {
		pw, err := capture.Create(cfg.Dump.PCAP, logger)
		if err != nil {
			return err
		}
		defer closePCAP(pw, logger)
		opts = append(opts, suite.WithTap(pw))
	}

	runner := suite.NewRunner(suiteConfig(cfg, bindAddr), static, logger, opts...)

	res, runErr := runWithMetrics(ctx, runner, cfg.Metrics, reg, logger)

	logger.Info("goprotos finished",
		slog.Int("executed", res.Executed),
		slog.Int("skipped", res.Skipped),
		slog.Int("timeouts", res.Timeouts),
		slog.Int("failed", len(res.Failed)),
		slog.Duration("elapsed", res.Elapsed),
	)

	if err := writeReport(stdout, cfg.Report, report.Run{
		Target: cfg.Target.ToURI,
		Result: res,
		Err:    runErr,
	}); err != nil {
		return errors.Join(runErr, err)
	}

	if runErr != nil {
		return fmt.Errorf("run suite: %w", runErr)
	}
	if len(res.Failed) > 0 {
		return errCasesFailed
	}
	return nil
}

// suiteConfig translates the configuration into runner settings.
func suiteConfig(cfg *config.Config, bindAddr netip.Addr) suite.Config {
	sc := cfg.Suite
	return suite.Config{
		Selection: suite.Selection{
			Dir:    sc.Dir,
			File:   sc.File,
			Single: sc.Single,
			Start:  sc.Start,
			Stop:   sc.Stop,
		},
		Teardown:   sc.Teardown,
		Validate:   sc.Validate,
		FailFast:   sc.FailFast,
		Delay:      sc.Delay,
		ReplyWait:  cfg.Transport.ReplyWait,
		MaxPDUSize: cfg.Transport.MaxPDUSize,
		BindAddr:   bindAddr,
	}
}

// runWithMetrics runs the suite and, when an address is configured, serves
// the metrics registry until the run ends. A metrics server that cannot
// listen cancels the run.
func runWithMetrics(
	ctx context.Context,
	runner *suite.Runner,
	mc config.MetricsConfig,
	reg *prometheus.Registry,
	logger *slog.Logger,
) (suite.Result, error) {
	if mc.Addr == "" {
		return runner.Run(ctx)
	}

	srv := newMetricsServer(mc, reg)
	g, gCtx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	var (
		res    suite.Result
		runErr error
	)

	g.Go(func() error {
		defer close(done)
		res, runErr = runner.Run(gCtx)
		return nil
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", mc.Addr),
			slog.String("path", mc.Path),
		)
		lc := net.ListenConfig{}
		return listenAndServe(gCtx, &lc, srv, mc.Addr)
	})

	g.Go(func() error {
		select {
		case <-done:
		case <-gCtx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown metrics server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return res, errors.Join(runErr, err)
	}
	return res, runErr
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// writeReport renders the run report to stdout or to the configured file.
func writeReport(stdout io.Writer, rc config.ReportConfig, run report.Run) error {
	if rc.Output == "" {
		return report.Render(stdout, rc.Format, run)
	}

	f, err := os.Create(rc.Output)
	if err != nil {
		return fmt.Errorf("create report %s: %w", rc.Output, err)
	}
	if err := report.Render(f, rc.Format, run); err != nil {
		return errors.Join(err, f.Close())
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close report %s: %w", rc.Output, err)
	}
	return nil
}

// closePCAP flushes the capture file, logging any error.
func closePCAP(pw *capture.Writer, logger *slog.Logger) {
	if err := pw.Close(); err != nil {
		logger.Warn("failed to close pcap file",
			slog.String("error", err.Error()),
		)
	}
}
