package replay

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay/frame"
	"github.com/rwool/evreplay/replay/internal/shutdown"
)

// readHalf is the read side of the connection.
type readHalf interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// receiver owns the read side of the connection. Its fields other than the
// recorder and err are not modified once run starts; the recorder and err are
// only read after run has returned.
type receiver struct {
	r       readHalf
	stop    shutdown.Signal
	timeout time.Duration
	drain   time.Duration
	buf     []byte
	rec     *recorder
	logger  log.Logger

	// err is the fatal receive error, if any.
	err error
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// run reads and decodes frames until the shutdown signal is raised.
func (rx *receiver) run() {
	if rx.read() {
		return
	}
	// The connection can no longer be read, but the loop is only allowed to
	// exit once shutdown is requested.
	<-rx.stop.Done()
}

// read is the read loop. It returns true if it exited due to the shutdown
// signal and false if reading stopped for another reason.
func (rx *receiver) read() bool {
	draining := false
	for {
		timeout := rx.timeout
		if draining {
			timeout = rx.drain
		}
		if err := rx.r.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			rx.fail(errors.Wrapf(ErrReceive, "unable to set read deadline: %v", err))
			return false
		}

		n, err := rx.r.Read(rx.buf)
		if n > 0 {
			rx.handle(n)
		}

		switch {
		case err == nil:
		case isTimeout(err):
			if draining {
				rx.logger.Debugf("Peer quiet for %s, done draining", rx.drain)
				return true
			}
		case errors.Cause(err) == io.EOF:
			rx.logger.Debugf("Peer closed its side of the connection")
			return false
		default:
			rx.fail(errors.Wrapf(ErrReceive, "%v", err))
			return false
		}

		if !draining && rx.stop.Raised() {
			if rx.drain <= 0 {
				return true
			}
			rx.logger.Debugf("Shutdown requested, draining")
			draining = true
		}
	}
}

// handle decodes the n bytes that were just read.
func (rx *receiver) handle(n int) {
	rx.logger.Debugf("Received %d bytes: %q", n, rx.buf[:n])
	if n == len(rx.buf) {
		rx.logger.Warnf("Received %d bytes, probably lost some", n)
		rx.rec.addWarning(errors.Wrapf(ErrPossibleTruncation, "%d byte read", n))
	}

	payloads, err := frame.DecodeAll(rx.buf, n)
	if err != nil {
		w := errors.Wrapf(ErrReceiveDecode, "%d byte read: %v", n, err)
		rx.logger.Warnf("%v", w)
		rx.rec.addWarning(w)
		return
	}
	rx.rec.addFrames(payloads)
}

func (rx *receiver) fail(err error) {
	rx.logger.Errorf("%v", err)
	rx.err = err
}
