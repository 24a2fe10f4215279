package transport

import (
	"encoding/binary"
	"fmt"

	"mirrorml/internal/config"
)

// Framer wraps one encoded message for the wire.
type Framer func(payload []byte) []byte

// NewFramer returns the framer for a RESULT_FRAMING value.
func NewFramer(name string) (Framer, error) {
	switch name {
	case config.FramingRaw, "":
		return frameRaw, nil
	case config.FramingNDJSON:
		return frameNDJSON, nil
	case config.FramingLength:
		return frameLength, nil
	}
	return nil, fmt.Errorf("unknown framing %q", name)
}

// frameRaw writes the JSON object as is, the format the consumer has always read.
func frameRaw(payload []byte) []byte {
	return payload
}

func frameNDJSON(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+1)
	frame = append(frame, payload...)
	return append(frame, '\n')
}

// frameLength prefixes the payload with its size as a big-endian uint32.
func frameLength(payload []byte) []byte {
	frame := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(frame, uint32(len(payload)))
	copy(frame[4:], payload)
	return frame
}
