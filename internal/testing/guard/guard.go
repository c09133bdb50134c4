// Package guard switches the process into test mode and gates tests that need
// live infrastructure.
package guard

import (
	"os"
	"sync"
	"testing"
)

// PostgresDSNEnv names the variable that enables Postgres integration tests.
const PostgresDSNEnv = "ODYSSEY_TEST_PG_DSN"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("ODYSSEY_TEST_MODE") == "" {
			_ = os.Setenv("ODYSSEY_TEST_MODE", "1")
		}
	})
}

// PostgresDSN returns the integration database DSN or skips the test.
func PostgresDSN(t testing.TB) string {
	t.Helper()
	dsn := os.Getenv(PostgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping Postgres integration test", PostgresDSNEnv)
	}
	return dsn
}
