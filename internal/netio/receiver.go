package netio

import (
	"context"
	"errors"
	"log/slog"
)

// Demuxer routes received datagrams to their waiting exchange. Correlator
// is the production implementation.
type Demuxer interface {
	Dispatch(d Datagram)
}

// ReceiverOption configures optional Receiver parameters.
type ReceiverOption func(*Receiver)

// WithReceiverMetrics attaches a Metrics reporter. nil keeps the no-op one.
func WithReceiverMetrics(m Metrics) ReceiverOption {
	return func(r *Receiver) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithReceiverTap attaches a Tap that observes every inbound PDU.
func WithReceiverTap(t Tap) ReceiverOption {
	return func(r *Receiver) {
		if t != nil {
			r.tap = t
		}
	}
}

// Receiver reads the shared Listener and feeds every datagram to a Demuxer.
type Receiver struct {
	demuxer Demuxer
	logger  *slog.Logger
	metrics Metrics
	tap     Tap
}

// NewReceiver creates a Receiver that routes datagrams to demuxer.
func NewReceiver(demuxer Demuxer, logger *slog.Logger, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		demuxer: demuxer,
		logger:  logger.With(slog.String("component", "netio.receiver")),
		metrics: noopMetrics{},
		tap:     Taps(nil),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run reads from ln until ln is closed or ctx is cancelled, then returns
// nil. Read errors other than those are logged and the loop continues.
func (r *Receiver) Run(ctx context.Context, ln *Listener) error {
	stop := context.AfterFunc(ctx, ln.interrupt)
	defer stop()

	for {
		d, err := ln.Recv()
		if err != nil {
			if errors.Is(err, ErrSocketClosed) || ctx.Err() != nil {
				return nil
			}
			r.logger.Warn("recv error", slog.String("error", err.Error()))
			continue
		}

		r.metrics.IncPacketsReceived()
		r.tap.Packet(Inbound, d.Src, d.Dst, d.Data, d.At)
		r.demuxer.Dispatch(d)
	}
}
