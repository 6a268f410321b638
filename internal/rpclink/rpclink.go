// Package rpclink implements a persistent WebSocket carrying a JSON-RPC
// 2.0-ish protocol: text frames of {id, method, params} for requests,
// {id, result} or {id, error} for responses, and {method, params} with no
// id for unsolicited notifications.
//
// call() is synchronous from the caller's perspective and asynchronous on
// the wire: it registers a one-shot reply slot keyed by a fresh id, sends
// the frame, and suspends until the matching reply arrives or the link
// closes. A single reader goroutine demultiplexes every incoming frame by
// id; frames with no id are queued for the notification consumer instead.
package rpclink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/decred/slog"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Kind enumerates the link-level failure classes.
type Kind int

const (
	// SendFailed means the websocket write itself failed.
	SendFailed Kind = iota
	// LinkClosed means the reader goroutine has exited (socket error or
	// explicit Close); no further calls will ever complete.
	LinkClosed
	// Timeout means the caller-supplied context expired before a reply
	// arrived. Not imposed by default; the caller opts in via ctx.
	Timeout
)

// Error is the error type every link-level Dial/Call failure is reported as.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	var kind string
	switch e.Kind {
	case SendFailed:
		kind = "send failed"
	case LinkClosed:
		kind = "link closed"
	case Timeout:
		kind = "timeout"
	}
	if e.Err != nil {
		return fmt.Sprintf("rpclink: %s: %v", kind, e.Err)
	}
	return fmt.Sprintf("rpclink: %s", kind)
}

func (e *Error) Unwrap() error { return e.Err }

// RemoteError is returned by Call when the venue replies with {id, error}
// rather than {id, result}. It is distinct from the Kind taxonomy above,
// which covers link-level failures, not valid correlated replies that
// happen to carry an application error.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("rpclink: remote error %d: %s", e.Code, e.Message)
}

// frame is the wire shape for every message in both directions.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcErrorObj    `json:"error,omitempty"`

	// linkClosed is set only on the synthetic frame failAll delivers to
	// pending slots; it never appears on the wire.
	linkClosed bool
}

type rpcErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// replySlot is the one-shot channel a pending Call is waiting on.
type replySlot chan frame

var log slog.Logger = slog.Disabled

// UseLogger binds the package-level logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// Link is a single persistent WebSocket connection speaking the framing
// above. Construct with Dial.
type Link struct {
	conn *websocket.Conn

	mu      sync.Mutex
	pending map[string]replySlot
	closed  bool
	closeCh chan struct{}

	sendQueue *unboundedQueue[frame]
	notifQ    *unboundedQueue[json.RawMessage]

	wg sync.WaitGroup
}

// Dial opens the WebSocket to url and starts the reader and writer
// goroutines. Reconnection is explicitly out of scope; callers that want
// a supervising reconnect loop wrap Dial themselves.
func Dial(ctx context.Context, url string) (*Link, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, &Error{Kind: SendFailed, Err: err}
	}

	l := &Link{
		conn:      conn,
		pending:   make(map[string]replySlot),
		closeCh:   make(chan struct{}),
		sendQueue: newUnboundedQueue[frame](),
		notifQ:    newUnboundedQueue[json.RawMessage](),
	}

	l.wg.Add(2)
	go l.readLoop()
	go l.writeLoop()

	return l, nil
}

// Call sends {id, method, params}, registers a one-shot reply slot for the
// generated id, and blocks until the matching reply arrives, ctx is done,
// or the link closes.
func (l *Link) Call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, &Error{Kind: SendFailed, Err: err}
	}

	id := uuid.NewString()
	slot := make(replySlot, 1)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, &Error{Kind: LinkClosed}
	}
	l.pending[id] = slot
	l.mu.Unlock()

	l.sendQueue.Push(frame{ID: id, Method: method, Params: paramsJSON})

	select {
	case reply := <-slot:
		if reply.linkClosed {
			return nil, &Error{Kind: LinkClosed}
		}
		if reply.Error != nil {
			return nil, &RemoteError{Code: reply.Error.Code, Message: reply.Error.Message}
		}
		return reply.Result, nil
	case <-l.closeCh:
		return nil, &Error{Kind: LinkClosed}
	case <-ctx.Done():
		l.mu.Lock()
		delete(l.pending, id)
		l.mu.Unlock()
		return nil, &Error{Kind: Timeout, Err: ctx.Err()}
	}
}

// Notifications returns the channel of unsolicited {method, params} frames,
// in arrival order. At most one concurrent consumer is supported; calling
// this from more than one goroutine is a caller bug.
func (l *Link) Notifications() <-chan json.RawMessage {
	out := make(chan json.RawMessage)
	go func() {
		defer close(out)
		for {
			raw, ok := l.notifQ.Pop()
			if !ok {
				return
			}
			out <- raw
		}
	}()
	return out
}

// Close tears down the connection and fails every pending call.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.conn.Close()
	l.wg.Wait()
	return err
}

func (l *Link) readLoop() {
	defer l.wg.Done()
	defer l.failAll()

	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			log.Debugf("rpclink read loop exiting: %v", err)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warnf("rpclink: dropping unparseable frame: %v", err)
			continue
		}

		if f.ID != "" && (f.Result != nil || f.Error != nil) {
			l.mu.Lock()
			slot, ok := l.pending[f.ID]
			if ok {
				delete(l.pending, f.ID)
			}
			l.mu.Unlock()

			if ok {
				slot <- f
				continue
			}
			// An id we don't recognize (e.g. a stale reply after
			// Call's ctx already expired) isn't a notification;
			// drop it.
			continue
		}

		// No id: a notification.
		l.notifQ.Push(data)
	}
}

func (l *Link) writeLoop() {
	defer l.wg.Done()

	for {
		f, ok := l.sendQueue.Pop()
		if !ok {
			return
		}

		data, err := json.Marshal(f)
		if err != nil {
			log.Errorf("rpclink: failed to marshal outbound frame: %v", err)
			continue
		}

		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}

		if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debugf("rpclink write loop exiting: %v", err)
			return
		}
	}
}

// failAll fails every pending call with LinkClosed and marks the link
// closed, so future Call invocations fail immediately.
func (l *Link) failAll() {
	l.mu.Lock()
	l.closed = true
	pending := l.pending
	l.pending = make(map[string]replySlot)
	l.mu.Unlock()

	close(l.closeCh)
	l.sendQueue.Close()
	l.notifQ.Close()

	for _, slot := range pending {
		slot <- frame{linkClosed: true}
	}
}
