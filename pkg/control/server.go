package control

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"

	"github.com/siqueiraa/KafSnap/pkg/snapshot"
)

// Server accepts control connections and dispatches each request to the
// coordinator. A connection may carry any number of request/response
// pairs in sequence.
type Server struct {
	listener net.Listener
	coord    *snapshot.Coordinator
}

// NewServer starts listening on the given TCP address.
func NewServer(listen string, coord *snapshot.Coordinator) (*Server, error) {
	listener, err := net.Listen("tcp", listen)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", listen, err)
	}
	return &Server{listener: listener, coord: coord}, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until the listener is closed.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept control connection: %w", err)
		}
		go s.handle(conn)
	}
}

// Close stops the listener. In-flight connections finish their current
// request.
func (s *Server) Close() error { return s.listener.Close() }

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	for {
		messageType, payload, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Printf("[Control] Read error from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		response := s.dispatch(messageType, payload)
		body, err := json.Marshal(response)
		if err != nil {
			log.Printf("[Control] Marshal response failed: %v", err)
			return
		}
		if err := writeFrame(conn, messageTypeResult, body); err != nil {
			log.Printf("[Control] Write error to %s: %v", conn.RemoteAddr(), err)
			return
		}
	}
}

func (s *Server) dispatch(messageType byte, payload []byte) Response {
	switch messageType {
	case messageTypeSetRecording:
		var req SetRecordingRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Response{OK: false, Message: fmt.Sprintf("malformed set-recording request: %v", err)}
		}
		result := s.coord.SetRecording(req.Enabled)
		return Response{OK: result.OK, Message: result.Message}

	case messageTypeTrigger:
		var req TriggerRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return Response{OK: false, Message: fmt.Sprintf("malformed trigger request: %v", err)}
		}
		result := s.coord.Trigger(req.Topics, req.Filename)
		return Response{OK: result.OK, Message: result.Message}

	default:
		return Response{OK: false, Message: fmt.Sprintf("unknown request type 0x%02x", messageType)}
	}
}
