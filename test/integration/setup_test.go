//go:build integration
// +build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/rwool/evreplay/config"
	evreplaycmd "github.com/rwool/evreplay/internal/cmd/evreplay"
	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/test/helpers/echopeer"
	"github.com/rwool/evreplay/test/helpers/testlogger"
)

type testObjects struct {
	Logger log.Logger
	LogBuf *testlogger.Buffer
	Config *config.Config
	Lines  []string
}

// eventLines generates n messages, step apart, starting at a fixed time.
func eventLines(n int, step time.Duration) []string {
	start := time.Date(2017, time.June, 3, 23, 59, 58, 0, time.UTC)
	lines := make([]string, n)
	for i := range lines {
		ts := start.Add(time.Duration(i) * step)
		lines[i] = fmt.Sprintf(`{"msg":{"EventTime":"%s.%d","Seq":%d,"Venue":"X"}}`,
			ts.Format("2006-Jan-2 15:04:05"), ts.Nanosecond(), i)
	}
	return lines
}

// setup writes lines to a scenario file and parses the configuration the way
// the command does, with the given extra flags.
func setup(tb testing.TB, lines []string, flags ...string) *testObjects {
	tb.Helper()

	logger, logBuf := testlogger.NewTestLogger(tb, log.Warn)

	dir := tb.TempDir()
	in := filepath.Join(dir, "events.json")
	require.NoError(tb, os.WriteFile(in, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	addr, err := echopeer.FreeAddr()
	require.NoError(tb, err)
	host, port, err := net.SplitHostPort(addr)
	require.NoError(tb, err)

	fs := flag.NewFlagSet("evreplay", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	args := append([]string{
		"-f", in,
		"-o", filepath.Join(dir, "out.json"),
		"-host", host,
		"-p", port,
		"-read-timeout", "50ms",
		"-drain", "300ms",
	}, flags...)
	cfg, err := config.Parse(fs, args)
	require.NoError(tb, err, "failed to parse configuration")

	return &testObjects{
		Logger: logger,
		LogBuf: logBuf,
		Config: cfg,
		Lines:  lines,
	}
}

type runOutput struct {
	Peer    *echopeer.Peer
	Err     error
	Elapsed time.Duration
}

// run replays the scenario to a peer using respond.
func (to *testObjects) run(tb testing.TB, respond echopeer.Responder) runOutput {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	peerC := make(chan *echopeer.Peer, 1)
	go func() {
		p, err := echopeer.DialRetry(ctx, to.Logger, to.Config.Addr(), respond)
		if err != nil {
			close(peerC)
			return
		}
		peerC <- p
	}()

	start := time.Now()
	err := evreplaycmd.Run(ctx, to.Config, to.Logger)
	elapsed := time.Since(start)

	p, ok := <-peerC
	require.True(tb, ok, "peer never connected")
	require.NoError(tb, p.Wait())
	require.NoError(tb, p.Close())

	return runOutput{Peer: p, Err: err, Elapsed: elapsed}
}

// runWithoutPeer runs a scenario that must fail before any peer is needed.
func runWithoutPeer(tb testing.TB, to *testObjects) error {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := evreplaycmd.Run(ctx, to.Config, to.Logger)
	require.NotEqual(tb, context.DeadlineExceeded, errors.Cause(err), "run waited for a peer")
	return err
}

func (to *testObjects) output(tb testing.TB) string {
	tb.Helper()
	b, err := os.ReadFile(to.Config.Output)
	require.NoError(tb, err)
	return string(b)
}
