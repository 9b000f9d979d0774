// Package cdp implements a minimal Chrome DevTools Protocol client: a
// WebSocket transport that correlates requests to responses by id, and tab
// discovery over the browser's debugging HTTP endpoints.
package cdp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Timeouts applied by the transport.
const (
	HandshakeTimeout   = 5 * time.Second
	DefaultCallTimeout = 30 * time.Second
)

// message is the CDP wire envelope. Responses carry id+result/error, events
// carry method+params; both arrive interleaved on the same connection.
type message struct {
	ID     int64           `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

type callResult struct {
	result json.RawMessage
	err    error
}

// Conn is a live connection to one debuggable browser target. Calls may be
// issued concurrently; a single read loop routes responses to the pending
// call table and notifications to registered event waiters.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan callResult
	waiters map[string][]*EventWaiter
	failed  bool
	failErr error
}

// Dial opens a WebSocket connection to a target's debugger URL. The
// handshake is bounded by HandshakeTimeout.
func Dial(ctx context.Context, wsURL string, logger *zap.Logger) (*Conn, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
		// Serialized documents routinely run into megabytes.
		ReadBufferSize:  1 << 20,
		WriteBufferSize: 1 << 20,
	}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &TransportError{Endpoint: wsURL, Err: err}
	}
	c := &Conn{
		ws:      ws,
		logger:  logger,
		pending: make(map[int64]chan callResult),
		waiters: make(map[string][]*EventWaiter),
	}
	go c.readLoop()
	return c, nil
}

// Call sends a uniquely-numbered request and blocks until the response with
// the same id arrives, the per-call timeout elapses, or ctx is done. A
// context deadline shorter than DefaultCallTimeout takes precedence.
func (c *Conn) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	var rawParams json.RawMessage
	if params != nil {
		encoded, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshal %s params: %w", method, err)
		}
		rawParams = encoded
	}

	ch := make(chan callResult, 1)
	c.mu.Lock()
	if c.failed {
		err := c.failErr
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	c.nextID++
	id := c.nextID
	c.pending[id] = ch
	c.mu.Unlock()

	if err := c.write(message{ID: id, Method: method, Params: rawParams}); err != nil {
		c.dropPending(id)
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	timer := time.NewTimer(DefaultCallTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("%s: %w", method, res.err)
		}
		return res.result, nil
	case <-timer.C:
		c.dropPending(id)
		return nil, fmt.Errorf("%s: %w", method, ErrCallTimeout)
	case <-ctx.Done():
		c.dropPending(id)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s: %w", method, ErrCallTimeout)
		}
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// EventWaiter is a one-shot registration for the next notification with a
// matching method name.
type EventWaiter struct {
	conn   *Conn
	method string
	ch     chan json.RawMessage
}

// WaitEvent registers a waiter for the next notification named method.
// Register before issuing the call that triggers the event, otherwise the
// notification can race past the registration.
func (c *Conn) WaitEvent(method string) *EventWaiter {
	w := &EventWaiter{
		conn:   c,
		method: method,
		ch:     make(chan json.RawMessage, 1),
	}
	c.mu.Lock()
	if c.failed {
		close(w.ch)
	} else {
		c.waiters[method] = append(c.waiters[method], w)
	}
	c.mu.Unlock()
	return w
}

// Wait blocks until the event fires, the timeout elapses, or ctx is done.
// Absence of the event is a valid outcome, so timeout reports ok=false
// rather than an error.
func (w *EventWaiter) Wait(ctx context.Context, timeout time.Duration) (json.RawMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case params, ok := <-w.ch:
		return params, ok
	case <-timer.C:
		w.Cancel()
		return nil, false
	case <-ctx.Done():
		w.Cancel()
		return nil, false
	}
}

// Cancel removes the waiter without consuming an event.
func (w *EventWaiter) Cancel() {
	c := w.conn
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.waiters[w.method]
	for i, candidate := range list {
		if candidate == w {
			c.waiters[w.method] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// AwaitEvent registers and waits in one step, for events that cannot race
// with an outgoing call.
func (c *Conn) AwaitEvent(ctx context.Context, method string, timeout time.Duration) (json.RawMessage, bool) {
	return c.WaitEvent(method).Wait(ctx, timeout)
}

// Close tears the connection down. Pending calls fail with ErrConnClosed and
// waiters are released. Safe to call more than once.
func (c *Conn) Close() error {
	err := c.ws.Close()
	c.fail(ErrConnClosed)
	return err
}

func (c *Conn) write(msg message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(msg)
}

func (c *Conn) readLoop() {
	for {
		var msg message
		if err := c.ws.ReadJSON(&msg); err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrConnClosed, err))
			return
		}
		switch {
		case msg.ID != 0:
			c.dispatchResponse(msg)
		case msg.Method != "":
			c.dispatchEvent(msg)
		}
	}
}

func (c *Conn) dispatchResponse(msg message) {
	c.mu.Lock()
	ch, ok := c.pending[msg.ID]
	delete(c.pending, msg.ID)
	c.mu.Unlock()
	if !ok {
		// Response for an abandoned call (timed out or canceled).
		c.logger.Debug("unmatched response", zap.Int64("id", msg.ID))
		return
	}
	if msg.Error != nil {
		ch <- callResult{err: msg.Error}
		return
	}
	ch <- callResult{result: msg.Result}
}

func (c *Conn) dispatchEvent(msg message) {
	c.mu.Lock()
	list := c.waiters[msg.Method]
	delete(c.waiters, msg.Method)
	c.mu.Unlock()
	for _, w := range list {
		w.ch <- msg.Params
	}
}

// fail marks the connection dead exactly once, releasing every pending call
// and waiter.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failed {
		return
	}
	c.failed = true
	c.failErr = err
	for id, ch := range c.pending {
		delete(c.pending, id)
		ch <- callResult{err: err}
	}
	for method, list := range c.waiters {
		delete(c.waiters, method)
		for _, w := range list {
			close(w.ch)
		}
	}
}

func (c *Conn) dropPending(id int64) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}
