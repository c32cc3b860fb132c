package control

import (
	"fmt"
	"net"
	"time"
)

const defaultTimeout = 30 * time.Second

// Client issues synchronous control requests against a running daemon.
// Each call dials, sends exactly one request, and returns the daemon's
// response verbatim; the client performs no buffering logic of its own.
type Client struct {
	addr    string
	timeout time.Duration
}

// NewClient creates a client for the daemon's control address.
func NewClient(addr string) *Client {
	return &Client{addr: addr, timeout: defaultTimeout}
}

// SetRecording pauses (false) or resumes (true) buffering.
func (c *Client) SetRecording(enabled bool) (Response, error) {
	return c.roundTrip(messageTypeSetRecording, SetRecordingRequest{Enabled: enabled})
}

// TriggerSnapshot requests a snapshot of the named topics (all when
// empty) into the named destination (generated when empty).
func (c *Client) TriggerSnapshot(topics []string, filename string) (Response, error) {
	return c.roundTrip(messageTypeTrigger, TriggerRequest{Topics: topics, Filename: filename})
}

func (c *Client) roundTrip(messageType byte, request any) (Response, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	conn, err := net.DialTimeout("tcp", c.addr, c.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("dial control address %s: %w", c.addr, err)
	}
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}

	if err := writeFrame(conn, messageType, payload); err != nil {
		return Response{}, err
	}

	responseType, body, err := readFrame(conn)
	if err != nil {
		return Response{}, fmt.Errorf("read response: %w", err)
	}
	if responseType != messageTypeResult {
		return Response{}, fmt.Errorf("unexpected response type 0x%02x", responseType)
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}
	return response, nil
}
