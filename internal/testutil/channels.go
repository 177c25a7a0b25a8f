// Package testutil provides shared test helpers for cropdoc packages.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeouts.
const (
	DefaultTestTimeout = 2 * time.Second
	ShortTestTimeout   = 250 * time.Millisecond
)

// WaitForChannel waits for one signal on ch or fails the test after timeout.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// WaitForSignals waits for n signals on ch, each within timeout.
func WaitForSignals(t *testing.T, ch <-chan struct{}, n int, timeout time.Duration, msg string) {
	t.Helper()
	for i := range n {
		select {
		case <-ch:
		case <-time.After(timeout):
			require.Failf(t, msg, "received %d of %d signals", i, n)
		}
	}
}

// AssertNoSignal fails if ch delivers within wait.
func AssertNoSignal(t *testing.T, ch <-chan struct{}, wait time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
		require.Fail(t, msg)
	case <-time.After(wait):
	}
}
