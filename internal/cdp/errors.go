package cdp

import (
	"errors"
	"fmt"
)

// TransportError reports that the debugging endpoint was unreachable or the
// WebSocket handshake failed. It is fatal to session setup and never retried.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("cdp transport %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteError is a protocol-level error the browser attached to a response.
type RemoteError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("cdp remote error %d: %s", e.Code, e.Message)
}

var (
	// ErrCallTimeout means no response bearing the call's id arrived in time.
	ErrCallTimeout = errors.New("cdp: call timed out")
	// ErrConnClosed means the connection failed while work was in flight.
	ErrConnClosed = errors.New("cdp: connection closed")
	// ErrNoDebuggableTab means the chosen tab exposes no debugger address.
	ErrNoDebuggableTab = errors.New("cdp: tab exposes no debugger address")
)
