// Package testlogger implements the redirection of logging output to
// test-specific logs.
package testlogger

import (
	"bufio"
	"bytes"
	"strings"
	"sync"
	"testing"

	"github.com/rwool/evreplay/log"
)

// Buffer is a bytes.Buffer that is safe for concurrent writes and reads of
// its contents.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write writes the bytes from p into the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Len returns the number of unread bytes in the buffer.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

// String returns a string of the unread portion of the buffer.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Lines returns the log lines that contain substr.
func (b *Buffer) Lines(substr string) []string {
	var out []string
	sc := bufio.NewScanner(strings.NewReader(b.String()))
	for sc.Scan() {
		if strings.Contains(sc.Text(), substr) {
			out = append(out, sc.Text())
		}
	}
	return out
}

// testWriter writes to the Buffer and logs to the testing.TB.
type testWriter struct {
	tb  testing.TB
	buf *Buffer
}

func (tw *testWriter) Write(p []byte) (int, error) {
	written, err := tw.buf.Write(p)
	if err != nil {
		return written, err
	}

	tw.tb.Log(strings.TrimRight(string(p), "\n"))

	return written, nil
}

// NewTestLogger creates a logger that stores log output in a buffer and outputs
// to the test/benchmark log output.
//
// The logger must not be used after the test ends since testing.TB.Log panics
// once a test has completed.
func NewTestLogger(tb testing.TB, level log.Level) (log.Logger, *Buffer) {
	buf := &Buffer{}
	return log.NewLogger(&testWriter{tb: tb, buf: buf}, level), buf
}
