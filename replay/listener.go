package replay

import (
	"context"
	errors2 "errors"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ErrListenerClosed indicates an Accept call on a Listener that already
// handed out its connection or was closed.
var ErrListenerClosed = errors2.New("listener closed")

// Listener is a TCP listener that accepts exactly one connection and stops
// listening afterwards.
type Listener struct {
	net.Listener

	mu        sync.Mutex
	accepted  bool
	closeOnce sync.Once
	closeErr  error
}

// Listen binds a TCP listener to addr.
//
// A failure to bind is returned as ErrBind and is not retried.
func Listen(addr string) (*Listener, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(ErrBind, "%s: %v", addr, err)
	}
	return &Listener{Listener: l}, nil
}

// Accept waits for the single peer, then closes the underlying listener.
func (l *Listener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.accepted {
		return nil, ErrListenerClosed
	}

	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	l.accepted = true

	if err := l.Close(); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "unable to stop listening")
	}
	return c, nil
}

// Close stops listening. Connections already accepted stay open.
//
// Safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.Listener.Close()
	})
	return l.closeErr
}

// acceptOne accepts a single connection from l and closes l. Cancelling ctx
// while waiting closes l, which aborts the Accept.
func acceptOne(ctx context.Context, l net.Listener) (net.Conn, error) {
	// Error used to indicate that Accept failed due to the listener being
	// closed because the context is done.
	var contextError error

	acceptedC := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			contextError = errors.Wrap(ctx.Err(), "accept cancelled")
			l.Close()
		case <-acceptedC:
		}
	}()

	conn, err := l.Accept()
	close(acceptedC)
	wg.Wait()
	if err != nil {
		if contextError != nil {
			return nil, contextError
		}
		return nil, errors.Wrap(err, "unable to accept connection")
	}

	// Stop listening, even for a plain net.Listener.
	_ = l.Close()

	return conn, nil
}
