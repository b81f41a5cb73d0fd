package app

import (
	"os"
	"sync/atomic"
)

const testModeEnv = "FULFILLMENT_TEST_MODE"

var testMode atomic.Bool

func init() {
	RefreshTestMode()
}

// InTestMode reports whether commands should skip connecting to Postgres and
// Redis.
func InTestMode() bool {
	return testMode.Load()
}

// RefreshTestMode re-reads FULFILLMENT_TEST_MODE after environment changes.
func RefreshTestMode() {
	testMode.Store(os.Getenv(testModeEnv) == "1")
}
