package replay

import (
	"io"
	"time"

	"github.com/pkg/errors"
)

// Capture is one frame payload received from the peer.
type Capture struct {
	Payload []byte
	// Offset is the arrival time relative to the start of the replay.
	Offset time.Duration
}

// Result is the outcome of a replay.
type Result struct {
	// RunID identifies the run in log output.
	RunID string
	// Sent is the number of events that were transmitted.
	Sent int
	// Captures holds the received frames in arrival order.
	Captures []Capture
	// Warnings holds the non-fatal receive problems, such as inbound data
	// that could not be decoded.
	Warnings []error
}

// Payloads returns the captured payloads in arrival order.
func (r *Result) Payloads() [][]byte {
	out := make([][]byte, len(r.Captures))
	for i := range r.Captures {
		out[i] = r.Captures[i].Payload
	}
	return out
}

// WriteTo writes every captured payload to w back-to-back, without
// delimiters.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	if w == nil {
		panic("nil writer")
	}

	var total int64
	for i := range r.Captures {
		n, err := w.Write(r.Captures[i].Payload)
		total += int64(n)
		if err != nil {
			return total, errors.Wrap(err, "unable to write captured frames")
		}
	}
	return total, nil
}

// recorder collects what the receive loop observes. It is owned by the
// receive loop until that loop has been joined.
type recorder struct {
	start    time.Time
	captures []Capture
	warnings []error
}

func newRecorder(start time.Time) *recorder {
	return &recorder{start: start}
}

func (r *recorder) addFrames(payloads [][]byte) {
	offset := time.Since(r.start)
	for _, p := range payloads {
		r.captures = append(r.captures, Capture{Payload: p, Offset: offset})
	}
}

func (r *recorder) addWarning(err error) {
	r.warnings = append(r.warnings, err)
}
