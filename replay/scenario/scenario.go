// Package scenario builds replay scenarios from line-separated JSON event
// logs.
//
// Every line is one message. The message must carry its recording time at
// msg.EventTime, such as:
//
//	{"msg":{"EventTime":"1988-Oct-11 8:30:12.22"}}
//
// The delay of each event is the time since the previous message was
// recorded.
package scenario

import (
	"bufio"
	errors2 "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// TimestampPath is the gjson path of a message's recording time.
const TimestampPath = "msg.EventTime"

// timestampLayout is the part of the timestamp before the fraction. Day and
// hour may be given with one digit.
const timestampLayout = "2006-Jan-2 15:04:05"

// maxLineSize is the longest line Read accepts.
const maxLineSize = 1 << 20

var (
	// ErrMalformedMessage indicates a line that is not valid JSON.
	ErrMalformedMessage = errors2.New("malformed message")
	// ErrMissingTimestamp indicates a message without a textual
	// msg.EventTime.
	ErrMissingTimestamp = errors2.New("missing timestamp")
	// ErrBadTimestampFormat indicates a timestamp that does not match
	// YYYY-Mon-DD HH:MM:SS.fffffffff.
	ErrBadTimestampFormat = errors2.New("bad timestamp format")
	// ErrOutOfOrderTimestamp indicates a message recorded before its
	// predecessor while using PolicyReject.
	ErrOutOfOrderTimestamp = errors2.New("out of order timestamp")
)

// Event is a single message to replay and the time to wait before sending it.
type Event struct {
	// Payload is the message exactly as it appeared in the log.
	Payload string
	// Delay is the time to wait after the previous event was sent.
	Delay time.Duration
}

// Policy decides what happens to a message recorded earlier than the message
// before it.
type Policy uint8

// Negative delay policies.
const (
	// PolicyClamp replaces a negative delay with zero.
	PolicyClamp Policy = iota
	// PolicyKeep keeps the negative delay. Senders treat it as no delay.
	PolicyKeep
	// PolicyReject fails the build with ErrOutOfOrderTimestamp.
	PolicyReject
)

var policyNames = map[Policy]string{
	PolicyClamp:  "clamp",
	PolicyKeep:   "keep",
	PolicyReject: "reject",
}

func (p Policy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Policy(%d)", uint8(p))
}

// ParsePolicy converts a policy name ("clamp", "keep" or "reject") into a
// Policy.
func ParsePolicy(s string) (Policy, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for p, name := range policyNames {
		if name == want {
			return p, nil
		}
	}
	return 0, errors.Errorf("unknown negative delay policy %q", s)
}

// Builder converts messages into events.
//
// The zero value is ready to use and clamps negative delays.
type Builder struct {
	NegativeDelay Policy
}

// Build converts each line into an Event, in order.
//
// Each call starts fresh; the first event always has a zero delay.
func (b *Builder) Build(lines []string) ([]Event, error) {
	events := make([]Event, 0, len(lines))

	var prev time.Time
	for i, line := range lines {
		ts, err := Timestamp(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", i+1)
		}

		var delay time.Duration
		if i > 0 {
			delay = ts.Sub(prev)
			if delay < 0 {
				switch b.NegativeDelay {
				case PolicyKeep:
				case PolicyReject:
					return nil, errors.Wrapf(ErrOutOfOrderTimestamp, "line %d: %s before previous message", i+1, -delay)
				default:
					delay = 0
				}
			}
		}
		prev = ts

		events = append(events, Event{Payload: line, Delay: delay})
	}
	return events, nil
}

// Read builds events from the lines of r.
func (b *Builder) Read(r io.Reader) ([]Event, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read event log")
	}
	return b.Build(lines)
}

// Load builds events from the file at path.
func (b *Builder) Load(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open event log")
	}
	defer f.Close()

	events, err := b.Read(f)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to load %s", path)
	}
	return events, nil
}

// Load builds events from the file at path, clamping negative delays.
func Load(path string) ([]Event, error) {
	var b Builder
	return b.Load(path)
}

// Timestamp extracts and parses the msg.EventTime of a message.
func Timestamp(message string) (time.Time, error) {
	if !gjson.Valid(message) {
		return time.Time{}, ErrMalformedMessage
	}

	field := gjson.Get(message, TimestampPath)
	if field.Type != gjson.String {
		return time.Time{}, ErrMissingTimestamp
	}

	return ParseTimestamp(field.Str)
}

// ParseTimestamp parses YYYY-Mon-DD HH:MM:SS.fffffffff.
//
// The fraction is a count of nanoseconds of up to nine digits, so "12.22" is
// twelve seconds and twenty-two nanoseconds.
func ParseTimestamp(s string) (time.Time, error) {
	dot := strings.LastIndexByte(s, '.')
	if dot < 0 {
		return time.Time{}, errors.Wrapf(ErrBadTimestampFormat, "%q: no fractional seconds", s)
	}

	base, err := time.Parse(timestampLayout, s[:dot])
	if err != nil {
		return time.Time{}, errors.Wrapf(ErrBadTimestampFormat, "%q: %v", s, err)
	}

	frac := s[dot+1:]
	if len(frac) == 0 || len(frac) > 9 {
		return time.Time{}, errors.Wrapf(ErrBadTimestampFormat, "%q: need 1 to 9 fraction digits", s)
	}
	var nanos int
	for _, c := range frac {
		if c < '0' || c > '9' {
			return time.Time{}, errors.Wrapf(ErrBadTimestampFormat, "%q: non-digit in fraction", s)
		}
		nanos = nanos*10 + int(c-'0')
	}

	return base.Add(time.Duration(nanos)), nil
}
