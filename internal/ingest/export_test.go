package ingest

import (
	"testing"
	"time"
)

// SetSettleDelayForTest shortens the settle timer so tests finish quickly.
func SetSettleDelayForTest(t testing.TB, d time.Duration) {
	t.Helper()
	original := settleDelay
	settleDelay = d
	t.Cleanup(func() {
		settleDelay = original
	})
}
