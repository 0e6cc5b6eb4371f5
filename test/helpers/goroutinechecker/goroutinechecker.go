// Package goroutinechecker implements checking for leftover goroutines from
// running tests.
package goroutinechecker

import (
	"bufio"
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// settleTimeout is how long a check waits for goroutines that are already
// shutting down, such as a receiver loop that was just joined.
const settleTimeout = 500 * time.Millisecond

func getStackBytes() []byte {
	buf := make([]byte, 1<<20)
	read := runtime.Stack(buf, true)
	return buf[:read]
}

// GetStack returns a stack trace of all running goroutines.
func GetStack() string {
	return string(getStackBytes())
}

// getIgnorableCount gets the number of stacks that can be excluded from the
// count of "effective" goroutines.
func getIgnorableCount(stack []byte) int {
	var count int
	s := bufio.NewScanner(bytes.NewReader(stack))
	for s.Scan() {
		has := func(str string) bool { return bytes.Contains(s.Bytes(), []byte(str)) }
		if has("testing.(*T).Parallel") ||
			has("signal.signal_recv") ||
			has("runtime.gopark") {
			count++
		}
	}
	if err := s.Err(); err != nil {
		panic(err)
	}
	return count
}

// CurrentGR gets the current "effective" number of goroutines.
//
// This gets the number of goroutines and compensates for stacks from parallel
// test runs and the signal handler stack.
func CurrentGR() int {
	return runtime.NumGoroutine() - getIgnorableCount(getStackBytes())
}

// CheckNumGoroutines checks if the "effective" number of goroutines is less
// than or equal to the provided previous goroutine count, polling until
// the settle timeout elapses.
func CheckNumGoroutines(prevGR int) (passed bool, effectiveGR int) {
	deadline := time.Now().Add(settleTimeout)
	for {
		curGR := CurrentGR()
		if curGR <= prevGR {
			return true, curGR
		}
		if time.Now().After(deadline) {
			return false, curGR
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// New returns a function that checks to see if no excessive goroutines have
// been created since New was called.
//
// Intended to be deferred at the top of a test:
//
//	defer goroutinechecker.New(t)()
//
// This function should not be used in tests that also call the T.Parallel
// method.
func New(tb testing.TB) func() {
	tb.Helper()

	startingGR := CurrentGR()

	return func() {
		tb.Helper()
		passed, gr := CheckNumGoroutines(startingGR)
		if !passed {
			msgFmt := "too many goroutines at test end (have %d, but expected %d):\n%s"
			assert.FailNow(tb, "too many goroutines", msgFmt, gr, startingGR, GetStack())
		}
	}
}
