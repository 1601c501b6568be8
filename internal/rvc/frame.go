package rvc

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Capture line field positions.
const (
	captureIDField      = 2
	capturePayloadField = 4
	captureMinFields    = 5
)

// Frame is a CAN frame received from or destined for the bus.
type Frame struct {
	ID   ArbitrationID
	Data []byte
}

// DataHex returns the payload as upper-case hex without separators.
func (f Frame) DataHex() string {
	return strings.ToUpper(hex.EncodeToString(f.Data))
}

// String formats the frame as "id#payload", the cansend argument form.
func (f Frame) String() string {
	return f.ID.String() + "#" + f.DataHex()
}

// ParseCaptureLine parses one whitespace-delimited capture line, as printed by
// "candump -ta": field 2 is the hex identifier and fields from 4 onward are
// payload byte pairs.
//
//	(1600000000.000000)  can0  19FEDA9C   [8]  01 FF C8 FC FF 04 04 FF
func ParseCaptureLine(line string) (Frame, error) {
	fields := strings.Fields(line)
	if len(fields) < captureMinFields {
		return Frame{}, fmt.Errorf("%w: %d fields", ErrMalformedLine, len(fields))
	}

	id, err := ParseArbitrationID(fields[captureIDField])
	if err != nil {
		return Frame{}, err
	}

	payload := strings.Join(fields[capturePayloadField:], "")
	data, err := hex.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %q: %w", ErrInvalidPayload, payload, err)
	}

	return Frame{ID: id, Data: data}, nil
}

// ParseFrame parses the "id#payload" form.
func ParseFrame(s string) (Frame, error) {
	idPart, payload, ok := strings.Cut(strings.TrimSpace(s), "#")
	if !ok {
		return Frame{}, fmt.Errorf("%w: missing '#' in %q", ErrMalformedLine, s)
	}
	id, err := ParseArbitrationID(idPart)
	if err != nil {
		return Frame{}, err
	}
	data, err := hex.DecodeString(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: %q: %w", ErrInvalidPayload, payload, err)
	}
	return Frame{ID: id, Data: data}, nil
}

// ParseLine accepts either a capture line or a line whose last field is in
// "id#payload" form, as printed by "candump -L" and most serial adapters.
//
//	(1600000000.000000) can0 19FEDA9C#01FFC8FCFF0404FF
//	19FEDA9C#01FFC8FCFF0404FF
func ParseLine(line string) (Frame, error) {
	fields := strings.Fields(line)
	if n := len(fields); n > 0 && n < captureMinFields && strings.Contains(fields[n-1], "#") {
		return ParseFrame(fields[n-1])
	}
	return ParseCaptureLine(line)
}
