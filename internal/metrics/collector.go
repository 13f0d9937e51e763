package protosmetrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dantte-lp/goprotos/internal/suite"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const namespace = "goprotos"

const (
	subsystemTransport = "transport"
	subsystemTxn       = "txn"
	subsystemSuite     = "suite"
)

// Label names. Values are bounded: request kinds are INVITE, CANCEL or
// OTHER, never the raw (possibly fuzzed) method token.
const (
	labelKind   = "kind"
	labelState  = "state"
	labelStatus = "status"
)

// Collector satisfies the reporter interfaces of netio, txn and suite.
var _ suite.Metrics = (*Collector)(nil)

// -------------------------------------------------------------------------
// Collector
// -------------------------------------------------------------------------

// Collector holds all goprotos Prometheus metrics.
type Collector struct {
	// PacketsSent counts datagrams written to the target, ACKs included.
	PacketsSent prometheus.Counter

	// PacketsTruncated counts payloads cut to the maximum PDU size.
	PacketsTruncated prometheus.Counter

	// PacketsReceived counts datagrams read from the shared socket.
	PacketsReceived prometheus.Counter

	// PacketsUnmatched counts datagrams whose Call-ID had no subscriber.
	PacketsUnmatched prometheus.Counter

	// PacketsDropped counts datagrams without a Call-ID or arriving at a
	// full subscription.
	PacketsDropped prometheus.Counter

	// Exchanges counts resolved exchanges by request kind and final state.
	Exchanges *prometheus.CounterVec

	// ExchangeDuration observes the time from send to resolution.
	ExchangeDuration *prometheus.HistogramVec

	// Anomalies counts unparsable or unknown-class responses.
	Anomalies *prometheus.CounterVec

	// AcksSent counts ACKs sent for answered CANCELs.
	AcksSent prometheus.Counter

	// Cases counts finished test cases by status (passed, failed, skipped).
	Cases *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against reg.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.PacketsSent,
		c.PacketsTruncated,
		c.PacketsReceived,
		c.PacketsUnmatched,
		c.PacketsDropped,
		c.Exchanges,
		c.ExchangeDuration,
		c.Anomalies,
		c.AcksSent,
		c.Cases,
	)

	return c
}

func counter(subsystem, name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
}

// newMetrics creates all Prometheus metrics without registering them.
func newMetrics() *Collector {
	exchangeLabels := []string{labelKind, labelState}

	return &Collector{
		PacketsSent:      counter(subsystemTransport, "packets_sent_total", "Total datagrams sent to the target."),
		PacketsTruncated: counter(subsystemTransport, "packets_truncated_total", "Total outbound payloads truncated to the maximum PDU size."),
		PacketsReceived:  counter(subsystemTransport, "packets_received_total", "Total datagrams received on the shared socket."),
		PacketsUnmatched: counter(subsystemTransport, "packets_unmatched_total", "Total received datagrams with no pending exchange for their Call-ID."),
		PacketsDropped:   counter(subsystemTransport, "packets_dropped_total", "Total received datagrams dropped for a missing Call-ID or a full buffer."),

		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTxn,
			Name:      "exchanges_total",
			Help:      "Total resolved request/response exchanges.",
		}, exchangeLabels),

		ExchangeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemTxn,
			Name:      "exchange_duration_seconds",
			Help:      "Time from send to exchange resolution.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, exchangeLabels),

		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemTxn,
			Name:      "anomalies_total",
			Help:      "Total correlated responses with no status line or an unknown status class.",
		}, []string{labelKind}),

		AcksSent: counter(subsystemTxn, "acks_sent_total", "Total ACKs sent after a final response to CANCEL."),

		Cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemSuite,
			Name:      "cases_total",
			Help:      "Total finished test cases by status.",
		}, []string{labelStatus}),
	}
}

// -------------------------------------------------------------------------
// Transport
// -------------------------------------------------------------------------

// IncPacketsSent increments the sent datagrams counter.
func (c *Collector) IncPacketsSent() { c.PacketsSent.Inc() }

// IncPacketsTruncated increments the truncated payloads counter.
func (c *Collector) IncPacketsTruncated() { c.PacketsTruncated.Inc() }

// IncPacketsReceived increments the received datagrams counter.
func (c *Collector) IncPacketsReceived() { c.PacketsReceived.Inc() }

// IncPacketsUnmatched increments the uncorrelated datagrams counter.
func (c *Collector) IncPacketsUnmatched() { c.PacketsUnmatched.Inc() }

// IncPacketsDropped increments the dropped datagrams counter.
func (c *Collector) IncPacketsDropped() { c.PacketsDropped.Inc() }

// -------------------------------------------------------------------------
// Exchanges
// -------------------------------------------------------------------------

// RecordExchange counts a resolved exchange and observes its duration.
func (c *Collector) RecordExchange(kind, state string, d time.Duration) {
	c.Exchanges.WithLabelValues(kind, state).Inc()
	c.ExchangeDuration.WithLabelValues(kind, state).Observe(d.Seconds())
}

// IncAnomalies increments the protocol anomaly counter for kind.
func (c *Collector) IncAnomalies(kind string) {
	c.Anomalies.WithLabelValues(kind).Inc()
}

// IncAcksSent increments the ACK counter.
func (c *Collector) IncAcksSent() { c.AcksSent.Inc() }

// -------------------------------------------------------------------------
// Suite
// -------------------------------------------------------------------------

// RecordCase counts a finished test case by status.
func (c *Collector) RecordCase(status string) {
	c.Cases.WithLabelValues(status).Inc()
}
