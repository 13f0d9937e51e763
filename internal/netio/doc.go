// Package netio provides the UDP transport for SIP test exchanges.
//
// One Listener owns the shared receiving socket for the whole run. Each
// outbound payload is written by UDPSender through its own short-lived
// socket. The Receiver reads the shared socket and hands every datagram to
// the Correlator, which routes it by Call-ID to the single Subscription
// waiting for it.
//
// Socket options (SO_REUSEADDR, SO_RCVBUF, SO_SNDBUF) are applied through
// golang.org/x/sys/unix on Linux.
package netio
