// Package testcase decodes PROTOS SIP test-case files.
//
// A test case is two back-to-back framed sections: an ASCII decimal length,
// one space byte, then exactly that many payload bytes. The first section is
// the initial request template, the second is the teardown (CANCEL) template.
package testcase
