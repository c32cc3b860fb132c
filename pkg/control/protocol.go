// Package control exposes the coordinator's two remote operations over
// a framed stream protocol: each message is a 1-byte type, a 4-byte
// big-endian payload length, and a JSON payload.
package control

import (
	"encoding/binary"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigFastest

// Message type bytes for the control wire format.
const (
	// messageTypeSetRecording carries a SetRecordingRequest payload.
	messageTypeSetRecording byte = 0x01
	// messageTypeTrigger carries a TriggerRequest payload.
	messageTypeTrigger byte = 0x02
	// messageTypeResult carries a Response payload, server to client.
	messageTypeResult byte = 0x10
)

const headerLength = 5

// maxPayloadLength bounds a control payload. Requests carry a topic
// list at most; 1 MB is far beyond any legitimate request.
const maxPayloadLength = 1 << 20

// SetRecordingRequest enables or disables buffering of new messages.
type SetRecordingRequest struct {
	Enabled bool `json:"enabled"`
}

// TriggerRequest asks for a snapshot of the named topics (all
// configured channels when empty) into the named destination.
type TriggerRequest struct {
	Topics   []string `json:"topics,omitempty"`
	Filename string   `json:"filename,omitempty"`
}

// Response is the outcome of one control operation, surfaced to the
// client verbatim.
type Response struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func writeFrame(w io.Writer, messageType byte, payload []byte) error {
	var header [headerLength]byte
	header[0] = messageType
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("write frame payload: %w", err)
		}
	}
	return nil
}

func readFrame(r io.Reader) (byte, []byte, error) {
	var header [headerLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}
	payloadLength := binary.BigEndian.Uint32(header[1:])
	if payloadLength > maxPayloadLength {
		return 0, nil, fmt.Errorf("frame payload length %d exceeds maximum %d", payloadLength, maxPayloadLength)
	}
	payload := make([]byte, payloadLength)
	if payloadLength > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}
	return header[0], payload, nil
}
