// Package replace turns test-case templates into wire payloads.
//
// A Static set is derived once per run from the target options: the parsed
// recipient and initiator URIs, the resolved initiator IPv4 address, the
// destination and the bound local port. A Dynamic set carries the Call-ID
// and Branch-ID of one test case. Apply substitutes both into a template,
// computes Content-Length and guarantees the trailing blank line.
package replace
