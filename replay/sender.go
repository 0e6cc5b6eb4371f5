package replay

import (
	"bufio"
	"time"

	"github.com/pkg/errors"

	"github.com/rwool/evreplay/log"
	"github.com/rwool/evreplay/replay/scenario"
)

// sender owns the write side of the connection.
type sender struct {
	w      *bufio.Writer
	speed  float64
	logger log.Logger
}

// delay returns how long to wait before sending an event recorded d after
// its predecessor.
func (s *sender) delay(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) / s.speed)
}

// send transmits the frames in order, waiting out each event's delay first.
// It returns how many frames were sent.
func (s *sender) send(events []scenario.Event, frames [][]byte) (int, error) {
	for i := range events {
		if d := s.delay(events[i].Delay); d > 0 {
			time.Sleep(d)
		}

		s.logger.Debugf("Sending event %d: %s", i+1, events[i].Payload)
		if _, err := s.w.Write(frames[i]); err != nil {
			return i, errors.Wrapf(ErrTransmit, "event %d: %v", i+1, err)
		}
		if err := s.w.Flush(); err != nil {
			return i, errors.Wrapf(ErrTransmit, "event %d: %v", i+1, err)
		}
	}
	return len(events), nil
}
