// Package testutil holds helpers shared by the test
// suites.
package testutil

import (
	"context"
	"flag"
	"os"
	"testing"
	"time"
)

// EnvLong enables soak tests without the -long flag.
const EnvLong = "MAELNODE_LONG_TESTS"

var RunLong = flag.Bool("long", false, "run long soak tests")

// RequireLong skips t unless soak tests are enabled.
func RequireLong(t testing.TB) {
	t.Helper()
	if !IsLongEnabled() {
		t.Skip("skipping soak test (use -long or " + EnvLong + "=1)")
	}
}

func IsLongEnabled() bool {
	return *RunLong || os.Getenv(EnvLong) != ""
}

// Context returns a context that is cancelled after d or
// when t finishes, whichever comes first.
func Context(t testing.TB, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}
