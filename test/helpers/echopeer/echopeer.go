// Package echopeer implements the remote side of a replay for tests: a TCP
// client that reads frames and answers them.
package echopeer

import (
	"bufio"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay/frame"
)

// Responder returns the raw bytes to write back for a received payload.
//
// The default responder echoes the frame unmodified.
type Responder func(payload []byte) []byte

// Echo re-frames the payload it is given.
func Echo(payload []byte) []byte {
	out, err := frame.Encode(payload)
	if err != nil {
		panic(err)
	}
	return out
}

// Silent never answers.
func Silent([]byte) []byte { return nil }

// Peer is a connected test peer.
type Peer struct {
	conn    net.Conn
	respond Responder
	logger  log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	received [][]byte

	doneC chan struct{}
	err   error
}

// Dial connects to a replay engine at addr and starts answering frames in the
// background.
//
// A nil responder echoes every frame.
func Dial(ctx context.Context, logger log.Logger, addr string, respond Responder) (*Peer, error) {
	if logger == nil {
		panic("nil logger")
	}
	if respond == nil {
		respond = Echo
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "unable to dial replay engine")
	}

	p := &Peer{
		conn:    conn,
		respond: respond,
		logger:  logger,
		doneC:   make(chan struct{}),
	}
	go p.loop()
	return p, nil
}

// DialRetry is like Dial but keeps retrying until the engine is listening or
// ctx is done.
func DialRetry(ctx context.Context, logger log.Logger, addr string, respond Responder) (*Peer, error) {
	for {
		p, err := Dial(ctx, logger, addr, respond)
		if err == nil {
			return p, nil
		}
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// FreeAddr returns a loopback address with a port that was free when checked.
func FreeAddr() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", errors.Wrap(err, "unable to find free port")
	}
	addr := l.Addr().String()
	return addr, l.Close()
}

func (p *Peer) loop() {
	defer close(p.doneC)

	r := bufio.NewReader(p.conn)
	for {
		payload, err := readFrame(r)
		if err != nil {
			if errors.Cause(err) != io.EOF {
				p.err = err
			}
			return
		}
		p.logger.Debugf("peer received %q", payload)

		p.mu.Lock()
		p.received = append(p.received, payload)
		p.mu.Unlock()

		if out := p.respond(payload); len(out) > 0 {
			if err := p.WriteRaw(out); err != nil {
				p.err = err
				return
			}
		}
	}
}

// readFrame reads one frame from a stream.
func readFrame(r *bufio.Reader) ([]byte, error) {
	header := make([]byte, 2)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			return nil, errors.Wrap(err, "partial frame header")
		}
		return nil, err
	}

	raw := make([]byte, 2+int(header[1])+1)
	copy(raw, header)
	if _, err := io.ReadFull(r, raw[2:]); err != nil {
		return nil, errors.Wrap(err, "partial frame")
	}

	payloads, err := frame.DecodeAll(raw, len(raw))
	if err != nil {
		return nil, err
	}
	return payloads[0], nil
}

// WriteRaw writes b to the engine as is.
func (p *Peer) WriteRaw(b []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	_, err := p.conn.Write(b)
	return errors.Wrap(err, "unable to write to replay engine")
}

// Received returns the payloads received so far.
func (p *Peer) Received() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([][]byte, len(p.received))
	copy(out, p.received)
	return out
}

// Wait waits for the engine to close the connection and returns the first
// error the peer encountered.
func (p *Peer) Wait() error {
	<-p.doneC
	return p.err
}

// Close closes the connection and waits for the background loop to exit.
func (p *Peer) Close() error {
	err := p.conn.Close()
	<-p.doneC
	return err
}
