package dspclient

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned by Send when the socket is not open. The command is
	// queued for replay on the next connection.
	ErrNotConnected = errors.New("WebSocket not connected")

	// ErrConnectionClosed rejects requests still in flight when the socket closes.
	ErrConnectionClosed = errors.New("Connection closed")

	// ErrRequestTimeout matches every *TimeoutError.
	ErrRequestTimeout = errors.New("request timeout")

	// ErrClientClosed is returned once Close has been called.
	ErrClientClosed = errors.New("client closed")
)

// TimeoutError reports a command that got no response in time.
type TimeoutError struct {
	Command string
}

func (e *TimeoutError) Error() string {
	return "Request timeout: " + e.Command
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrRequestTimeout
}

// CommandError reports a command refused by the engine.
type CommandError struct {
	Command string
	Message string

	// Payload is the raw error value sent by the engine
	Payload json.RawMessage
}

func (e *CommandError) Error() string {
	return e.Message
}

// CloseInfo describes a socket closure.
type CloseInfo struct {
	Code   int
	Reason string
}

func (c CloseInfo) String() string {
	return fmt.Sprintf("%d %s", c.Code, c.Reason)
}
