package txn

//go:generate go tool mockgen -destination=txnmock/sender.go -package=txnmock github.com/dantte-lp/goprotos/internal/txn Sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/dantte-lp/goprotos/internal/netio"
	"github.com/dantte-lp/goprotos/internal/sipmsg"
)

// ErrTimeout indicates no terminal response arrived within the reply-wait.
// Suite callers treat it as a normal outcome.
var ErrTimeout = errors.New("no terminal response before reply-wait elapsed")

// Sender writes one payload to the target.
type Sender interface {
	Send(ctx context.Context, payload []byte, dst netip.AddrPort) error
}

// Metrics receives exchange counters.
type Metrics interface {
	// RecordExchange counts a resolved exchange by request kind and final
	// state and observes how long it took.
	RecordExchange(kind, state string, d time.Duration)
	IncAnomalies(kind string)
	IncAcksSent()
}

type noopMetrics struct{}

func (noopMetrics) RecordExchange(string, string, time.Duration) {}
func (noopMetrics) IncAnomalies(string)                          {}
func (noopMetrics) IncAcksSent()                                 {}

// Outcome is the terminal result of one exchange.
type Outcome struct {
	CallID string
	Method string
	State  State

	// Status is the response that ended the exchange. Zero on timeout.
	Status sipmsg.StatusResponse

	Elapsed time.Duration
}

// Option configures optional Exchange parameters.
type Option func(*Exchange)

// WithMetrics attaches a Metrics reporter. nil keeps the no-op one.
func WithMetrics(m Metrics) Option {
	return func(e *Exchange) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Exchange drives single request/response exchanges against one target.
// Process may be called repeatedly; each call is an independent exchange.
type Exchange struct {
	sender    Sender
	corr      *netio.Correlator
	dst       netip.AddrPort
	replyWait time.Duration
	logger    *slog.Logger
	metrics   Metrics
}

// NewExchange creates an Exchange sending to dst and waiting replyWait for
// a terminal response.
func NewExchange(
	sender Sender,
	corr *netio.Correlator,
	dst netip.AddrPort,
	replyWait time.Duration,
	logger *slog.Logger,
	opts ...Option,
) *Exchange {
	e := &Exchange{
		sender:    sender,
		corr:      corr,
		dst:       dst,
		replyWait: replyWait,
		logger:    logger.With(slog.String("component", "txn")),
		metrics:   noopMetrics{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Process sends payload and waits for its outcome. It returns ErrTimeout
// when the reply-wait elapses first. For a CANCEL, an error sending the ACK
// is returned together with the successful Outcome.
//
// A payload without a Call-ID header cannot be correlated; it is still sent
// and the exchange ends by timeout.
func (e *Exchange) Process(ctx context.Context, payload string) (Outcome, error) {
	start := time.Now()
	method := sipmsg.RequestMethod(payload)
	kind := KindOf(method)
	out := Outcome{Method: method, State: StateSent}

	var (
		sub     *netio.Subscription
		replies <-chan netio.Datagram
	)
	if callID, err := sipmsg.CallID(payload); err == nil {
		out.CallID = callID
		if sub, err = e.corr.Subscribe(callID); err != nil {
			return out, fmt.Errorf("process %s: %w", method, err)
		}
		defer sub.Cancel()
		replies = sub.C()
	} else {
		e.logger.Debug("payload has no Call-ID, responses cannot be correlated",
			slog.String("method", method))
	}

	logger := e.logger.With(
		slog.String("call_id", out.CallID),
		slog.String("method", method),
	)

	if err := e.sender.Send(ctx, []byte(payload), e.dst); err != nil {
		return out, fmt.Errorf("process %s: %w", method, err)
	}
	out.State = ApplyEvent(out.State, kind, EventSent).NewState

	timer := time.NewTimer(e.replyWait)
	defer timer.Stop()

	for {
		var (
			ev     Event
			status sipmsg.StatusResponse
			raw    string
		)

		select {
		case <-ctx.Done():
			return out, fmt.Errorf("process %s: %w", method, ctx.Err())

		case <-timer.C:
			ev = EventTimerExpired

		case d := <-replies:
			raw = string(d.Data)
			if !acceptCSeq(raw, method) {
				logger.Debug("response for another method ignored",
					slog.String("first_line", sipmsg.FirstLine(raw)))
				continue
			}

			var err error
			if status, err = sipmsg.ParseStatusLine(raw); err != nil {
				ev = EventMalformed
			} else {
				ev = ClassifyStatus(status.Code)
			}
		}

		res := ApplyEvent(out.State, kind, ev)
		out.State = res.NewState

		var ackErr error
		for _, a := range res.Actions {
			switch a {
			case ActionLogAnomaly:
				e.logAnomaly(logger, kind, ev, raw)

			case ActionSendAck:
				ackErr = e.sendAck(ctx, payload)

			case ActionUnsubscribe:
				if sub != nil {
					sub.Cancel()
				}

			case ActionResolve:
				out.Status = status
				out.Elapsed = time.Since(start)
				e.metrics.RecordExchange(kind.String(), out.State.String(), out.Elapsed)

				if out.State == StateTimeout {
					logger.Debug("exchange timed out", slog.Duration("reply_wait", e.replyWait))
					return out, fmt.Errorf("process %s: %w", method, ErrTimeout)
				}

				logger.Debug("exchange resolved",
					slog.String("state", out.State.String()),
					slog.Int("status", status.Code),
				)
				return out, ackErr
			}
		}
	}
}

// acceptCSeq reports whether msg answers method: its CSeq method must equal
// the sent method or INVITE.
func acceptCSeq(msg, method string) bool {
	m, err := sipmsg.CSeqMethod(msg)
	if err != nil {
		return false
	}
	return m == method || m == sipmsg.MethodInvite
}

func (e *Exchange) sendAck(ctx context.Context, payload string) error {
	ack := sipmsg.RewriteMethod(payload, sipmsg.MethodCancel, sipmsg.MethodAck)
	if err := e.sender.Send(ctx, []byte(ack), e.dst); err != nil {
		return fmt.Errorf("send ACK: %w", err)
	}
	e.metrics.IncAcksSent()
	return nil
}

func (e *Exchange) logAnomaly(logger *slog.Logger, kind Kind, ev Event, raw string) {
	e.metrics.IncAnomalies(kind.String())

	attrs := []any{
		slog.String("event", ev.String()),
		slog.String("first_line", sipmsg.FirstLine(raw)),
	}
	if ev == EventMalformed {
		logger.Debug("protocol anomaly: no status line", attrs...)
		return
	}
	logger.Warn("protocol anomaly: unknown status class", attrs...)
}
