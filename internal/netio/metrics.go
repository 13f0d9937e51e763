package netio

// Metrics receives transport counters. Implementations must be safe for
// concurrent use; the receive loop and the sender report from different
// goroutines.
type Metrics interface {
	IncPacketsSent()
	IncPacketsTruncated()
	IncPacketsReceived()
	IncPacketsUnmatched()
	IncPacketsDropped()
}

type noopMetrics struct{}

func (noopMetrics) IncPacketsSent()      {}
func (noopMetrics) IncPacketsTruncated() {}
func (noopMetrics) IncPacketsReceived()  {}
func (noopMetrics) IncPacketsUnmatched() {}
func (noopMetrics) IncPacketsDropped()   {}
