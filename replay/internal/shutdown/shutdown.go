// Package shutdown implements the one-shot notification used to stop a
// replay's receive loop.
package shutdown

import "sync"

// Signal is a one-shot notification. It carries no payload and can only go
// from unraised to raised.
//
// The zero value is not usable; use New.
type Signal struct {
	once *sync.Once
	c    chan struct{}
}

// New creates an unraised Signal.
func New() Signal {
	return Signal{
		once: &sync.Once{},
		c:    make(chan struct{}),
	}
}

// Raise fires the signal. Calls after the first do nothing.
func (s Signal) Raise() {
	s.once.Do(func() { close(s.c) })
}

// Raised reports, without blocking, whether the signal has fired.
func (s Signal) Raised() bool {
	select {
	case <-s.c:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal fires.
func (s Signal) Done() <-chan struct{} {
	return s.c
}
