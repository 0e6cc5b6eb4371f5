// Package frame implements the length-delimited framing used on the replay
// connection.
//
// Wire format:
//
//	[STX:1B][Length:1B][Payload:Length bytes][ETX:1B]
package frame

import (
	errors2 "errors"

	"github.com/pkg/errors"
)

// Frame markers.
const (
	STX byte = 0x02
	ETX byte = 0x03
)

const (
	// MaxPayload is the largest payload a single length byte can address.
	MaxPayload = 255
	// Overhead is the number of bytes a frame adds around its payload.
	Overhead = 3
)

var (
	// ErrPayloadTooLarge indicates a payload that does not fit in one frame.
	ErrPayloadTooLarge = errors2.New("payload too large for frame")
	// ErrMissingStartMarker indicates a frame that does not begin with STX.
	ErrMissingStartMarker = errors2.New("missing frame start marker")
	// ErrMissingEndMarker indicates a frame whose payload is not followed by
	// ETX.
	ErrMissingEndMarker = errors2.New("missing frame end marker")
	// ErrTruncatedFrame indicates a frame that extends past the valid data.
	ErrTruncatedFrame = errors2.New("truncated frame")
)

// Encode wraps payload in a frame.
func Encode(payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes (max %d)", len(payload), MaxPayload)
	}

	out := make([]byte, 0, len(payload)+Overhead)
	out = append(out, STX, byte(len(payload)))
	out = append(out, payload...)
	out = append(out, ETX)
	return out, nil
}

// DecodeAll decodes every frame in buf[:validLength].
//
// The frames must cover the valid data exactly. Any malformed frame fails the
// whole call and no payloads are returned. Payloads do not alias buf.
func DecodeAll(buf []byte, validLength int) ([][]byte, error) {
	if validLength < 0 || validLength > len(buf) {
		return nil, errors.Wrapf(ErrTruncatedFrame, "valid length %d outside buffer of %d bytes", validLength, len(buf))
	}
	data := buf[:validLength]

	var payloads [][]byte
	for pos := 0; pos < len(data); {
		if data[pos] != STX {
			return nil, errors.Wrapf(ErrMissingStartMarker, "offset %d: got 0x%02x", pos, data[pos])
		}
		if pos+1 >= len(data) {
			return nil, errors.Wrapf(ErrTruncatedFrame, "offset %d: no length byte", pos)
		}

		length := int(data[pos+1])
		start := pos + 2
		end := start + length
		// end is the index of the ETX byte.
		if end >= len(data) {
			return nil, errors.Wrapf(ErrTruncatedFrame, "offset %d: declared length %d, %d bytes available",
				pos, length, len(data)-start)
		}
		if data[end] != ETX {
			return nil, errors.Wrapf(ErrMissingEndMarker, "offset %d: got 0x%02x", end, data[end])
		}

		payload := make([]byte, length)
		copy(payload, data[start:end])
		payloads = append(payloads, payload)

		pos = end + 1
	}
	return payloads, nil
}
