package netio_test

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain fails the package if any receive loop goroutine outlives its test.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
