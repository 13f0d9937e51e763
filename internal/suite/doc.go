// Package suite sequences PROTOS-style test cases against one SIP target.
//
// A Runner selects test cases from a directory (single index, inclusive
// range, or one file override) and drives each of them through the
// replacement engine and the txn exchange machinery, strictly one at a
// time. Optional teardown sends the CANCEL template after the initial
// request; optional validation re-runs the reference case (index 0) after
// every test case to check that the target is still alive.
//
// The Runner owns the shared receiving socket: it binds it (or adopts the
// one passed with WithListener), runs the single receive goroutine, and
// closes the socket exactly once when the run ends.
package suite
