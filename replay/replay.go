// Package replay implements the timed replay of recorded events over a single
// TCP connection while capturing what the peer sends back.
//
// A run goes through the states Listening, Connected, Replaying, Draining and
// Closed. The engine binds a port and waits for exactly one peer. Once the
// peer connects the connection is split in two: the send loop only writes and
// the receive loop only reads. The send loop waits out each event's delay,
// frames the payload and writes it. After the last event it raises a one-shot
// shutdown signal and waits for the receive loop to exit.
package replay

import (
	"bufio"
	"context"
	errors2 "errors"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay/frame"
	"github.com/rwool/evreplay/replay/internal/shutdown"
	"github.com/rwool/evreplay/replay/scenario"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultReadTimeout    = 10 * time.Second
	DefaultReadBufferSize = 1024
)

var (
	// ErrBind indicates that the local port could not be bound.
	ErrBind = errors2.New("unable to bind")
	// ErrTransmit indicates that an event could not be written to the peer.
	ErrTransmit = errors2.New("unable to transmit event")
	// ErrReceive indicates that reading from the peer failed for a reason
	// other than a timeout or the peer closing its side.
	ErrReceive = errors2.New("unable to receive")
	// ErrReceiveDecode indicates inbound data that could not be decoded into
	// frames. Only reported as a warning.
	ErrReceiveDecode = errors2.New("unable to decode inbound frames")
	// ErrPossibleTruncation indicates a read that filled the whole receive
	// buffer, so a frame may have been split. Only reported as a warning.
	ErrPossibleTruncation = errors2.New("receive buffer full, data may be truncated")
)

// Config contains the options for an Engine.
type Config struct {
	// ReadTimeout bounds each read of the receive loop. The loop checks for
	// shutdown between reads. Zero means DefaultReadTimeout.
	ReadTimeout time.Duration
	// ReadBufferSize is the capacity of the receive buffer. Zero means
	// DefaultReadBufferSize.
	ReadBufferSize int
	// Speed scales the replay: 2 halves every delay. Zero means 1.
	Speed float64
	// Drain keeps the receive loop reading after shutdown until the peer has
	// been quiet for this long. Zero exits on the first check after shutdown.
	Drain time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = DefaultReadBufferSize
	}
	if c.Speed <= 0 {
		c.Speed = 1
	}
	if c.Drain < 0 {
		c.Drain = 0
	}
	return c
}

// Engine replays scenarios.
type Engine struct {
	logger log.Logger
	conf   Config
}

// New creates an Engine.
//
// If the given logger is nil, then a logger will be created that writes to
// stderr. A nil config uses the defaults.
func New(logger log.Logger, conf *Config) *Engine {
	if logger == nil {
		logger = log.NewLogger(os.Stderr, log.Warn)
	}
	var c Config
	if conf != nil {
		c = *conf
	}
	return &Engine{
		logger: logger,
		conf:   c.withDefaults(),
	}
}

// Run binds addr and replays events to the first peer that connects.
//
// Events are validated before binding, so an event that cannot be framed
// fails the run without any network activity.
func (e *Engine) Run(ctx context.Context, addr string, events []scenario.Event) (*Result, error) {
	frames, err := encodeEvents(events)
	if err != nil {
		return nil, err
	}

	l, err := Listen(addr)
	if err != nil {
		return nil, err
	}
	defer l.Close()
	e.logger.Infof("Listening on %s", l.Addr())

	return e.replay(ctx, l, events, frames)
}

// Replay replays events to the first peer accepted from l, then closes l.
//
// The context only bounds the wait for the peer; once connected the replay
// always runs to completion. The returned Result is non-nil whenever a peer
// connected, even if an error is also returned.
func (e *Engine) Replay(ctx context.Context, l net.Listener, events []scenario.Event) (*Result, error) {
	if l == nil {
		panic("nil listener")
	}

	frames, err := encodeEvents(events)
	if err != nil {
		return nil, err
	}
	return e.replay(ctx, l, events, frames)
}

func (e *Engine) replay(ctx context.Context, l net.Listener, events []scenario.Event, frames [][]byte) (*Result, error) {
	runID := uuid.NewString()
	logger := e.logger.WithField("run", runID)

	c, err := acceptOne(ctx, l)
	if err != nil {
		return nil, err
	}
	conn := newDebugConn(c, logger)
	defer conn.Close()
	logger.Infof("Peer connected from %s", conn.RemoteAddr())

	start := time.Now()
	rec := newRecorder(start)
	stop := shutdown.New()
	rx := &receiver{
		r:       conn,
		stop:    stop,
		timeout: e.conf.ReadTimeout,
		drain:   e.conf.Drain,
		buf:     make([]byte, e.conf.ReadBufferSize),
		rec:     rec,
		logger:  logger,
	}
	doneC := make(chan struct{})
	go func() {
		defer close(doneC)
		rx.run()
	}()

	tx := &sender{
		w:      bufio.NewWriter(conn),
		speed:  e.conf.Speed,
		logger: logger,
	}
	sent, sendErr := tx.send(events, frames)

	stop.Raise()
	<-doneC
	logger.Debugf("Replay finished after %s: sent %d of %d events, captured %d frames",
		time.Since(start), sent, len(events), len(rec.captures))

	res := &Result{
		RunID:    runID,
		Sent:     sent,
		Captures: rec.captures,
		Warnings: rec.warnings,
	}
	if sendErr != nil {
		return res, sendErr
	}
	if rx.err != nil {
		return res, rx.err
	}
	return res, nil
}

// encodeEvents frames every event payload.
func encodeEvents(events []scenario.Event) ([][]byte, error) {
	frames := make([][]byte, len(events))
	for i := range events {
		f, err := frame.Encode([]byte(events[i].Payload))
		if err != nil {
			return nil, errors.Wrapf(err, "event %d", i+1)
		}
		frames[i] = f
	}
	return frames, nil
}
