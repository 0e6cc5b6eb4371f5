package replay

import (
	"errors"
	"net"
	"runtime/debug"
	"sync"

	"github.com/rwool/evreplay/log"
)

var errCloseAfterClosed = errors.New("close call on closed connection")

// debugConn logs connection close problems.
type debugConn struct {
	net.Conn
	mu       sync.Mutex
	isClosed bool
	logger   log.Logger
	// Make close attempts after closing not return an error.
	suppressCloseAfterClose bool
}

func newDebugConn(c net.Conn, logger log.Logger) *debugConn {
	return &debugConn{
		Conn:                    c,
		logger:                  logger,
		suppressCloseAfterClose: true,
	}
}

func (dc *debugConn) Close() error {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	if dc.isClosed {
		if dc.suppressCloseAfterClose {
			return nil
		}
		dc.logger.Errorf("Close attempted with closed connection:\n%s\n", string(debug.Stack()))
		return errCloseAfterClosed
	}

	err := dc.Conn.Close()
	if err != nil {
		dc.logger.Errorf("Error closing connection to %s: %+v", dc.Conn.RemoteAddr(), err)
	} else {
		dc.isClosed = true
		dc.logger.Debugf("Closed connection to %s", dc.Conn.RemoteAddr())
	}
	return err
}
