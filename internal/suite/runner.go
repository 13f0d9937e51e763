package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/goprotos/internal/netio"
	"github.com/dantte-lp/goprotos/internal/replace"
	"github.com/dantte-lp/goprotos/internal/testcase"
	"github.com/dantte-lp/goprotos/internal/txn"
)

// -------------------------------------------------------------------------
// Errors
// -------------------------------------------------------------------------

// ErrValidationFailed indicates the reference case did not get a 200 after a
// test case. It marks that test case failed.
var ErrValidationFailed = errors.New("validation case failed")

// -------------------------------------------------------------------------
// Results
// -------------------------------------------------------------------------

// CaseStatus is the verdict for one test case.
type CaseStatus uint8

const (
	// CasePassed means the case ran and validation (if enabled) succeeded.
	CasePassed CaseStatus = iota

	// CaseFailed means the validation step after the case failed.
	CaseFailed

	// CaseSkipped means the case file could not be loaded or decoded.
	CaseSkipped
)

// String returns the lowercase status name.
func (s CaseStatus) String() string {
	switch s {
	case CasePassed:
		return "passed"
	case CaseFailed:
		return "failed"
	case CaseSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// CaseResult records what happened to one test case. Outcomes are nil for
// steps that did not run.
type CaseResult struct {
	Case

	Status     CaseStatus
	Init       *txn.Outcome
	Teardown   *txn.Outcome
	Validation *txn.Outcome

	// Err is the load or validation error, if any.
	Err error
}

// Result aggregates a run.
type Result struct {
	// Failed lists the names of failed test cases in execution order.
	Failed []string

	Executed int
	Skipped  int

	// Timeouts counts init and teardown exchanges that ended by timeout.
	Timeouts int

	Cases   []CaseResult
	Elapsed time.Duration
}

func (r *Result) add(cr CaseResult) {
	r.Cases = append(r.Cases, cr)

	switch cr.Status {
	case CaseSkipped:
		r.Skipped++
		return
	case CaseFailed:
		r.Failed = append(r.Failed, cr.Name)
	case CasePassed:
	}

	r.Executed++
	for _, o := range []*txn.Outcome{cr.Init, cr.Teardown} {
		if o != nil && o.State == txn.StateTimeout {
			r.Timeouts++
		}
	}
}

// -------------------------------------------------------------------------
// Configuration
// -------------------------------------------------------------------------

// Config holds the runner parameters.
type Config struct {
	Selection

	// Teardown sends the CANCEL template after every initial request.
	Teardown bool

	// Validate runs the reference case after every test case.
	Validate bool

	// FailFast aborts the run on the first load or validation failure.
	FailFast bool

	// Delay is the pause between test cases and before each validation.
	Delay time.Duration

	// ReplyWait bounds every exchange.
	ReplyWait time.Duration

	// MaxPDUSize caps both the receive buffer and outbound payloads.
	MaxPDUSize int

	// BindAddr is the address of the shared receiving socket. The zero
	// value binds all IPv4 addresses.
	BindAddr netip.Addr
}

// Metrics receives transport, exchange and per-case counters.
type Metrics interface {
	netio.Metrics
	txn.Metrics

	// RecordCase counts a finished test case by status name.
	RecordCase(status string)
}

type noopMetrics struct{}

func (noopMetrics) IncPacketsSent()                              {}
func (noopMetrics) IncPacketsTruncated()                         {}
func (noopMetrics) IncPacketsReceived()                          {}
func (noopMetrics) IncPacketsUnmatched()                         {}
func (noopMetrics) IncPacketsDropped()                           {}
func (noopMetrics) RecordExchange(string, string, time.Duration) {}
func (noopMetrics) IncAnomalies(string)                          {}
func (noopMetrics) IncAcksSent()                                 {}
func (noopMetrics) RecordCase(string)                            {}

// Option configures optional Runner parameters.
type Option func(*Runner)

// WithListener hands an already bound socket to the runner. The runner takes
// ownership and closes it when Run returns.
func WithListener(ln *netio.Listener) Option {
	return func(r *Runner) {
		r.ln = ln
	}
}

// WithMetrics attaches a Metrics reporter. nil keeps the no-op one.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTap adds an observer of every sent and received PDU.
func WithTap(t netio.Tap) Option {
	return func(r *Runner) {
		if t != nil {
			r.taps = append(r.taps, t)
		}
	}
}

// -------------------------------------------------------------------------
// Runner
// -------------------------------------------------------------------------

// Runner executes one suite run. It is not reusable: Run closes the socket.
type Runner struct {
	cfg     Config
	static  *replace.Static
	logger  *slog.Logger
	metrics Metrics
	taps    netio.Taps
	ln      *netio.Listener
}

// NewRunner creates a Runner sending to static.Dest.
func NewRunner(cfg Config, static *replace.Static, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:     cfg,
		static:  static,
		logger:  logger.With(slog.String("component", "suite")),
		metrics: noopMetrics{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes the selected test cases in order, one at a time. Load and
// decode failures skip a case; validation failures mark it failed. Only
// fail-fast aborts, context cancellation and socket errors are returned as
// errors. The socket is closed exactly once before Run returns.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	start := time.Now()

	ln, err := r.listen(ctx)
	if err != nil {
		return Result{}, err
	}
	r.static.BindPort(ln.LocalAddr().Port())

	corr := netio.NewCorrelator(r.logger, r.metrics)
	recv := netio.NewReceiver(corr, r.logger,
		netio.WithReceiverMetrics(r.metrics),
		netio.WithReceiverTap(r.taps),
	)
	sender := netio.NewUDPSender(r.cfg.MaxPDUSize, r.logger,
		netio.WithSenderMetrics(r.metrics),
		netio.WithSenderTap(r.taps),
	)
	ex := txn.NewExchange(sender, corr, r.static.Dest, r.cfg.ReplyWait, r.logger,
		txn.WithMetrics(r.metrics))

	var g errgroup.Group
	g.Go(func() error {
		return recv.Run(ctx, ln)
	})

	r.logger.Info("suite started",
		slog.String("target", r.static.Dest.String()),
		slog.String("local", ln.LocalAddr().String()),
	)

	res, runErr := r.runCases(ctx, ex)
	res.Elapsed = time.Since(start)

	closeErr := ln.Close()
	recvErr := g.Wait()

	r.logger.Info("suite finished",
		slog.Int("executed", res.Executed),
		slog.Int("failed", len(res.Failed)),
		slog.Int("skipped", res.Skipped),
		slog.Int("timeouts", res.Timeouts),
		slog.Duration("elapsed", res.Elapsed),
	)

	return res, errors.Join(runErr, closeErr, recvErr)
}

func (r *Runner) listen(ctx context.Context) (*netio.Listener, error) {
	if r.ln != nil {
		return r.ln, nil
	}

	ln, err := netio.Listen(ctx, netio.ListenerConfig{
		Addr:       r.cfg.BindAddr,
		Port:       r.static.LocalPort,
		MaxPDUSize: r.cfg.MaxPDUSize,
	})
	if err != nil {
		return nil, fmt.Errorf("bind shared socket: %w", err)
	}
	return ln, nil
}

func (r *Runner) runCases(ctx context.Context, ex *txn.Exchange) (Result, error) {
	var res Result

	plan, err := Select(r.cfg.Selection)
	if err != nil {
		return res, err
	}

	var valid string
	if r.cfg.Validate {
		tc, err := testcase.Load(testcase.Path(r.cfg.Dir, testcase.ValidIndex))
		if err != nil {
			return res, fmt.Errorf("load validation case: %w", err)
		}
		valid = tc.Init
	}

	first := true
	for c := range plan.Cases() {
		if !first {
			if err := sleep(ctx, r.cfg.Delay); err != nil {
				return res, err
			}
		}
		first = false

		cr, err := r.runCase(ctx, ex, c, valid)
		res.add(cr)
		r.metrics.RecordCase(cr.Status.String())
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// runCase drives one test case: init, optional teardown, optional
// validation. The returned error aborts the run.
func (r *Runner) runCase(ctx context.Context, ex *txn.Exchange, c Case, valid string) (CaseResult, error) {
	logger := r.logger.With(slog.String("case", c.Name))
	cr := CaseResult{Case: c}

	tc, err := testcase.Load(c.Path)
	if err != nil {
		cr.Status = CaseSkipped
		cr.Err = err
		logger.Warn("test case skipped", slog.String("error", err.Error()))
		if r.cfg.FailFast {
			return cr, fmt.Errorf("test case %s: %w", c.Name, err)
		}
		return cr, nil
	}

	// Init and teardown share identifiers so the CANCEL matches its INVITE.
	// A final INVITE response arriving late, during the CANCEL exchange, is
	// therefore accepted there: it resolves the teardown and is ACKed.
	dyn := replace.NewDynamic()

	if cr.Init, err = r.exchange(ctx, ex, logger,
		replace.Apply(tc.Init, r.static, dyn, replace.CSeqInit)); err != nil {
		return cr, err
	}

	if r.cfg.Teardown {
		if cr.Teardown, err = r.exchange(ctx, ex, logger,
			replace.Apply(tc.Teardown, r.static, dyn, replace.CSeqTeardown)); err != nil {
			return cr, err
		}
	}

	logger.Debug("test case sent",
		slog.String("call_id", dyn.CallID),
		slog.String("init", cr.Init.State.String()),
		slog.Int("status", cr.Init.Status.Code),
	)

	if !r.cfg.Validate {
		return cr, nil
	}

	if err := sleep(ctx, r.cfg.Delay); err != nil {
		return cr, err
	}

	out, verr := r.validate(ctx, ex, valid)
	cr.Validation = &out
	if err := ctx.Err(); err != nil {
		return cr, fmt.Errorf("validate after %s: %w", c.Name, err)
	}
	if verr == nil {
		return cr, nil
	}

	cr.Status = CaseFailed
	cr.Err = verr
	logger.Error("target failed validation", slog.String("error", verr.Error()))
	if r.cfg.FailFast {
		return cr, fmt.Errorf("test case %s: %w", c.Name, verr)
	}
	return cr, nil
}

// exchange runs one fuzz exchange. Timeouts and send errors are logged and
// swallowed; only cancellation is returned.
func (r *Runner) exchange(ctx context.Context, ex *txn.Exchange, logger *slog.Logger, payload string) (*txn.Outcome, error) {
	out, err := ex.Process(ctx, payload)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &out, fmt.Errorf("exchange %s: %w", out.Method, ctxErr)
	}
	if err != nil && !errors.Is(err, txn.ErrTimeout) {
		logger.Warn("exchange error", slog.String("method", out.Method), slog.String("error", err.Error()))
	}
	return &out, nil
}

// validate sends the reference case with fresh identifiers and requires a
// 200 to it.
func (r *Runner) validate(ctx context.Context, ex *txn.Exchange, valid string) (txn.Outcome, error) {
	payload := replace.Apply(valid, r.static, replace.NewDynamic(), replace.CSeqInit)

	out, err := ex.Process(ctx, payload)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	if out.Status.Code != 200 {
		return out, fmt.Errorf("%w: got %q", ErrValidationFailed, out.Status.String())
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("inter-test delay: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}
