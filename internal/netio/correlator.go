package netio

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dantte-lp/goprotos/internal/sipmsg"
)

// -------------------------------------------------------------------------
// Call-ID Demultiplexing
// -------------------------------------------------------------------------

// Correlator routes inbound datagrams to the Subscription registered for
// their Call-ID. At most one live Subscription exists per Call-ID.
type Correlator struct {
	mu      sync.Mutex
	subs    map[string]*Subscription
	logger  *slog.Logger
	metrics Metrics
}

// NewCorrelator creates an empty Correlator. A nil m selects the no-op
// reporter.
func NewCorrelator(logger *slog.Logger, m Metrics) *Correlator {
	if m == nil {
		m = noopMetrics{}
	}
	return &Correlator{
		subs:    make(map[string]*Subscription),
		logger:  logger.With(slog.String("component", "netio.correlator")),
		metrics: m,
	}
}

// Subscription receives the datagrams carrying one Call-ID until Cancel.
type Subscription struct {
	callID string
	ch     chan Datagram
	c      *Correlator
}

// Subscribe registers interest in callID.
func (c *Correlator) Subscribe(callID string) (*Subscription, error) {
	if callID == "" {
		return nil, ErrEmptyCallID
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subs[callID]; ok {
		return nil, fmt.Errorf("subscribe %q: %w", callID, ErrAlreadySubscribed)
	}

	sub := &Subscription{
		callID: callID,
		ch:     make(chan Datagram, subscriptionBuffer),
		c:      c,
	}
	c.subs[callID] = sub

	return sub, nil
}

// Len returns the number of live subscriptions.
func (c *Correlator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Dispatch delivers d to the subscriber of its Call-ID. Datagrams without a
// Call-ID are dropped; datagrams nobody waits for are ignored.
func (c *Correlator) Dispatch(d Datagram) {
	callID, err := sipmsg.CallID(string(d.Data))
	if err != nil {
		c.metrics.IncPacketsDropped()
		c.logger.Info("datagram without Call-ID dropped", slog.Any("datagram", d))
		return
	}

	c.mu.Lock()
	sub, ok := c.subs[callID]
	c.mu.Unlock()

	if !ok {
		c.metrics.IncPacketsUnmatched()
		c.logger.Debug("no subscriber for Call-ID",
			slog.String("call_id", callID),
			slog.String("src", d.Src.String()),
		)
		return
	}

	select {
	case sub.ch <- d:
	default:
		c.metrics.IncPacketsDropped()
		c.logger.Warn("subscription buffer full, datagram dropped",
			slog.String("call_id", callID),
		)
	}
}

// CallID returns the correlation key.
func (s *Subscription) CallID() string { return s.callID }

// C returns the channel correlated datagrams are delivered on. It is never
// closed.
func (s *Subscription) C() <-chan Datagram { return s.ch }

// Cancel removes the subscription. Later datagrams for the Call-ID are
// ignored. Cancel is idempotent.
func (s *Subscription) Cancel() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()

	if cur, ok := s.c.subs[s.callID]; ok && cur == s {
		delete(s.c.subs, s.callID)
	}
}
