// Package dspclient is a command/response client for a real-time audio DSP engine
// reachable over a websocket.
//
// Commands are correlated to responses by name, queued while the engine is unreachable
// and replayed once the socket reopens. Abnormal closures are retried with exponential
// backoff and a heartbeat drops links that went silent.
package dspclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	gows "github.com/gorilla/websocket"
	"github.com/mickaelvieira/dspclient/backoff"
	"github.com/mickaelvieira/dspclient/codec"
	"github.com/mickaelvieira/dspclient/pending"
	"github.com/mickaelvieira/dspclient/queue"
)

// CloseStale is the close code used when the heartbeat drops a silent socket.
const CloseStale = 4000

// Priority orders commands queued while disconnected.
type Priority = queue.Priority

const (
	PriorityHigh   = queue.High
	PriorityNormal = queue.Normal
	PriorityLow    = queue.Low
)

// NewClient creates a client for the engine at the given websocket URI. The client
// stays disconnected until Connect is called.
func NewClient(u string, opts ...OptionModifier) (*Client, error) {
	uri, err := url.ParseRequestURI(u)
	if err != nil {
		return nil, fmt.Errorf("invalid engine URI: %w", err)
	}
	if uri.Scheme != "ws" && uri.Scheme != "wss" {
		return nil, fmt.Errorf("invalid engine URI %s: unsupported scheme %q", u, uri.Scheme)
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if o.scheduler == nil {
		o.scheduler = systemScheduler{}
	}

	dialer := &gows.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 45 * time.Second,
	}
	if o.dialerModifier != nil {
		o.dialerModifier(dialer)
	}

	id := genID()
	c := &Client{
		id:        id,
		uri:       uri,
		endpoint:  uri.Host,
		dialer:    dialer,
		logger:    o.logger.With("client_id", id),
		options:   o,
		listeners: newListeners(),
		actions:   make(chan func(), 64),
		done:      make(chan struct{}),
		state:     StateDisconnected,
		queue:     queue.New(o.queueCapacity),
		pending:   pending.NewStore(),
		timers:    make(map[timerID]func() bool),
	}
	c.options.metrics.stateChanged(c.endpoint, StateDisconnected, StateDisconnected)

	go c.run()

	return c, nil
}

type timerID uint64

type dialAttempt struct {
	cancel    context.CancelFunc
	reconnect bool
	waiters   []chan<- error
}

func (a *dialAttempt) finish(err error) {
	for _, w := range a.waiters {
		w <- err
	}
	a.waiters = nil
}

type sendResult struct {
	value json.RawMessage
	err   error
}

// Client owns the engine socket. Its state, queue, pending requests and timers are
// only touched by the event loop goroutine, public methods hand work over to it.
type Client struct {
	// internal unique client
	id string

	// the engine URI
	uri *url.URL

	// label used by metrics
	endpoint string

	// dialer is used to create new websocket connections
	dialer *gows.Dialer

	// logger for logging client events
	logger *slog.Logger

	// client's options
	options options

	// event subscribers
	listeners *listeners

	// work executed by the event loop
	actions chan func()

	// closed once the event loop has stopped
	done chan struct{}

	closeOnce sync.Once

	// snapshots readable from any goroutine
	snapshot atomic.Int32
	queued   atomic.Int64
	inFlight atomic.Int64

	// fields below belong to the event loop

	state          State
	conn           *gows.Conn
	dial           *dialAttempt
	dialing        int
	intentional    bool
	stopped        bool
	retryAttempts  int
	lastActivity   time.Time
	queue          *queue.Queue
	pending        *pending.Store
	timers         map[timerID]func() bool
	timerSeq       uint64
	reconnectTimer timerID
	heartbeatTimer timerID
}

func (c *Client) run() {
	defer close(c.done)

	for {
		fn := <-c.actions
		fn()
		c.publishSizes()

		// every dial goroutine reports back before the loop exits, so a socket
		// opened while closing is always closed by handleDial
		if c.stopped && c.dialing == 0 {
			return
		}
	}
}

// post hands fn to the event loop without waiting for it to run.
func (c *Client) post(fn func()) bool {
	select {
	case c.actions <- fn:
		return true
	case <-c.done:
		return false
	}
}

// call runs fn on the event loop and waits for it to complete.
func (c *Client) call(fn func()) bool {
	ran := make(chan struct{})
	if !c.post(func() {
		defer close(ran)
		fn()
		c.publishSizes()
	}) {
		return false
	}

	select {
	case <-ran:
		return true
	case <-c.done:
		return false
	}
}

// Connect opens the socket. It returns at once when the client is connected and joins
// the attempt in flight when there is one.
func (c *Client) Connect(ctx context.Context) error {
	result := make(chan error, 1)
	if !c.post(func() { c.connect(result) }) {
		return ErrClientClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrClientClosed
	}
}

// Disconnect cancels reconnection and heartbeat timers, rejects every request in
// flight with ErrConnectionClosed and closes the socket. No event but disconnected is
// emitted once it returns. Queued commands are kept for the next connection.
func (c *Client) Disconnect() {
	c.call(c.disconnect)
}

// Send transmits a command and waits for its response. When the client is not
// connected the command is queued for replay and ErrNotConnected is returned at once:
// the replayed command is not tied to this call.
//
// A successful response carrying no value (JSON null) yields a nil result.
func (c *Client) Send(ctx context.Context, cmd codec.Command, priority Priority, opts ...SendOption) (json.RawMessage, error) {
	so := sendOptions{timeout: c.options.requestTimeout}
	for _, opt := range opts {
		opt(&so)
	}

	result := make(chan sendResult, 1)
	complete := func(v json.RawMessage, err error) {
		result <- sendResult{value: v, err: err}
	}

	var req *pending.Request
	if !c.post(func() { req = c.send(cmd, priority, so.timeout, complete) }) {
		return nil, ErrClientClosed
	}

	select {
	case r := <-result:
		return r.value, r.err
	case <-ctx.Done():
		c.post(func() { c.abandon(req) })
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrClientClosed
	}
}

// Call sends a command and decodes its response into T. A response without value
// yields the zero value of T.
func Call[T any](ctx context.Context, c *Client, cmd codec.Command, priority Priority, opts ...SendOption) (T, error) {
	var out T

	raw, err := c.Send(ctx, cmd, priority, opts...)
	if err != nil || raw == nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("decode %s response: %w", codec.FormatCommand(cmd), err)
	}

	return out, nil
}

// Close disconnects and stops the client for good. Later calls fail with
// ErrClientClosed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.call(func() {
			c.disconnect()
			c.queue.Clear()
			for id, stop := range c.timers {
				stop()
				delete(c.timers, id)
			}
			c.stopped = true
		})
		<-c.done
		c.logger.Debug("client closed")
	})

	return nil
}

// ID returns the unique identifier of the client
func (c *Client) ID() string {
	return c.id
}

// URL returns the engine URI
func (c *Client) URL() string {
	return c.uri.String()
}

// State returns the current connection state
func (c *Client) State() State {
	return State(c.snapshot.Load())
}

// IsConnected returns true if the socket is open
func (c *Client) IsConnected() bool {
	return c.State().IsConnected()
}

// QueueLen returns the number of commands waiting for a connection
func (c *Client) QueueLen() int {
	return int(c.queued.Load())
}

// PendingLen returns the number of requests awaiting a response
func (c *Client) PendingLen() int {
	return int(c.inFlight.Load())
}

func (c *Client) connect(result chan<- error) {
	if c.stopped {
		result <- ErrClientClosed
		return
	}
	if c.state == StateConnected && c.conn != nil {
		result <- nil
		return
	}
	if c.dial != nil {
		c.dial.waiters = append(c.dial.waiters, result)
		return
	}

	c.cancelTimer(&c.reconnectTimer)
	c.intentional = false

	a := c.startDial(false)
	a.waiters = append(a.waiters, result)
}

func (c *Client) startDial(reconnect bool) *dialAttempt {
	ctx, cancel := context.WithCancel(context.Background())
	a := &dialAttempt{cancel: cancel, reconnect: reconnect}
	c.dial = a
	c.dialing++

	c.setState(StateConnecting)
	c.logger.Debug("attempting to connect", "uri", c.uri.String(), "attempt", c.retryAttempts)

	go func() {
		conn, _, err := c.dialer.DialContext(ctx, c.uri.String(), c.options.headers)
		c.post(func() { c.handleDial(a, conn, err) })
	}()

	return a
}

func (c *Client) handleDial(a *dialAttempt, conn *gows.Conn, err error) {
	defer a.cancel()
	c.dialing--

	if c.dial != a {
		// aborted by Disconnect
		if conn != nil {
			_ = conn.Close()
		}
		return
	}
	c.dial = nil

	if err != nil {
		c.logger.Error("connection failure", "uri", c.uri.String(), "error", err, "attempt", c.retryAttempts)

		err = fmt.Errorf("dial %s: %w", c.uri.Redacted(), err)
		emit(c.listeners, EventError, err)

		if a.reconnect {
			c.scheduleReconnect()
		} else {
			c.setState(StateError)
		}
		a.finish(err)
		return
	}

	if c.options.readLimit > 0 {
		conn.SetReadLimit(c.options.readLimit)
	}

	c.conn = conn
	c.retryAttempts = 0 // Reset retry attempts on successful connection
	c.lastActivity = c.now()

	c.logger.Info("connection established", "uri", c.uri.String())
	c.setState(StateConnected)
	emit(c.listeners, EventConnected, struct{}{})

	go c.read(conn)
	c.startHeartbeat()
	a.finish(nil)
	c.drain()
}

func (c *Client) disconnect() {
	c.intentional = true
	c.cancelTimer(&c.reconnectTimer)
	c.cancelTimer(&c.heartbeatTimer)

	if a := c.dial; a != nil {
		c.dial = nil
		a.cancel()
		a.finish(ErrConnectionClosed)
	}

	c.rejectPending(ErrConnectionClosed)

	if conn := c.conn; conn != nil {
		c.conn = nil

		c.logger.Info("initiating close", "code", gows.CloseNormalClosure)

		// inform the engine that we are closing the connection
		m := gows.FormatCloseMessage(gows.CloseNormalClosure, "")
		if err := conn.WriteControl(gows.CloseMessage, m, time.Now().Add(c.options.writeWait)); err != nil {
			c.logger.Error("failed to send close frame", "error", err)
		}
		if err := conn.Close(); err != nil {
			c.logger.Error("error closing connection", "error", err)
		}
	}

	if c.state != StateDisconnected {
		emit(c.listeners, EventDisconnected, CloseInfo{Code: gows.CloseNormalClosure, Reason: "client disconnect"})
		c.setState(StateDisconnected)
	}
}

func (c *Client) read(conn *gows.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.post(func() { c.handleClose(conn, err) })
			return
		}

		c.post(func() { c.handleFrame(conn, data) })
	}
}

func (c *Client) handleFrame(conn *gows.Conn, data []byte) {
	if conn != c.conn {
		return
	}
	c.lastActivity = c.now()

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		c.logger.Debug("ignoring unparseable frame", "error", err, "data_length", len(data))
		return
	}
	emit(c.listeners, EventMessage, Frame{Data: data, Value: decoded})

	env, ok := codec.ExtractWrappedResponse(data)
	if !ok {
		c.logger.Debug("unsolicited frame", "data_length", len(data))
		return
	}

	req, ok := c.pending.Shift(env.Command)
	if !ok {
		c.logger.Debug("response without pending request", "command", env.Command)
		return
	}
	req.StopTimeout()
	c.options.metrics.responded(c.endpoint, env.Command, c.now().Sub(req.SentAt).Seconds())

	if env.OK {
		req.Resolve(env.Value)
		return
	}

	c.options.metrics.failed(c.endpoint, env.Command, "command")
	req.Reject(&CommandError{
		Command: env.Command,
		Message: codec.ErrorMessage(env),
		Payload: env.Error,
	})
}

func (c *Client) handleClose(conn *gows.Conn, err error) {
	if conn != c.conn {
		// stale reader of a socket we already let go
		return
	}
	c.conn = nil
	_ = conn.Close()

	code, reason := gows.CloseAbnormalClosure, ""
	var ce *gows.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	} else if err != nil {
		c.logger.Error("read error", "error", err)
		emit(c.listeners, EventError, err)
	}

	c.closed(code, reason)
}

// closed runs once the current socket is gone.
func (c *Client) closed(code int, reason string) {
	c.cancelTimer(&c.heartbeatTimer)
	c.rejectPending(ErrConnectionClosed)

	c.logger.Info("connection closed", "code", code, "reason", reason)
	emit(c.listeners, EventDisconnected, CloseInfo{Code: code, Reason: reason})

	if c.intentional {
		c.setState(StateDisconnected)
		return
	}

	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	cfg := c.options.backoff
	if !backoff.ShouldReconnect(c.retryAttempts, cfg) {
		c.logger.Info("max retry attempts reached, giving up", "attempts", c.retryAttempts)
		c.setState(StateError)
		return
	}

	c.retryAttempts++
	random := c.options.random
	if random == nil {
		random = rand.Float64
	}
	delay := backoff.CalculateDelayWith(c.retryAttempts, cfg, random)

	c.logger.Info("attempting to reconnect", "attempt", c.retryAttempts, "max", cfg.MaxAttempts, "delay", delay)
	c.options.metrics.reconnect(c.endpoint)
	c.setState(StateReconnecting)

	c.reconnectTimer = c.schedule(delay, func() {
		c.reconnectTimer = 0
		c.startDial(true)
	})
}

// forceClose drops the socket with the given code and goes through the closure path.
func (c *Client) forceClose(code int, reason string) {
	conn := c.conn
	if conn == nil {
		return
	}
	c.conn = nil

	c.logger.Info("initiating close", "code", code, "reason", reason)

	m := gows.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(gows.CloseMessage, m, time.Now().Add(c.options.writeWait)); err != nil {
		c.logger.Debug("failed to send close frame", "error", err)
	}
	_ = conn.Close()

	c.closed(code, reason)
}

func (c *Client) startHeartbeat() {
	if c.options.heartbeatInterval <= 0 {
		return
	}
	c.heartbeatTimer = c.schedule(c.options.heartbeatInterval, c.heartbeat)
}

func (c *Client) heartbeat() {
	c.heartbeatTimer = 0
	if c.conn == nil {
		return
	}

	idle := c.now().Sub(c.lastActivity)
	if c.options.staleThreshold > 0 && idle > c.options.staleThreshold {
		c.logger.Warn("connection stale", "idle", idle)
		c.forceClose(CloseStale, "heartbeat timeout")
		return
	}

	if idle >= c.options.heartbeatInterval && c.options.keepalive != nil {
		c.logger.Debug("sending keepalive", "idle", idle)
		c.send(c.options.keepalive, PriorityLow, c.options.requestTimeout, c.discard(codec.FormatCommand(c.options.keepalive)))
	}

	c.startHeartbeat()
}

func (c *Client) send(cmd codec.Command, p Priority, timeout time.Duration, complete func(json.RawMessage, error)) *pending.Request {
	if c.stopped {
		complete(nil, ErrClientClosed)
		return nil
	}
	if c.state != StateConnected || c.conn == nil {
		c.enqueue(cmd, p)
		complete(nil, ErrNotConnected)
		return nil
	}

	return c.transmit(cmd, timeout, complete)
}

func (c *Client) enqueue(cmd codec.Command, p Priority) {
	if evicted, ok := c.queue.Enqueue(cmd, p, c.now()); ok {
		c.logger.Warn("queue full, dropping command", "command", codec.FormatCommand(evicted.Command), "priority", evicted.Priority.String())
		c.options.metrics.evicted(c.endpoint)
	}

	c.logger.Debug("command queued", "command", codec.FormatCommand(cmd), "priority", p.String(), "queued", c.queue.Len())
	c.options.metrics.queued(c.endpoint, p.String())
}

func (c *Client) transmit(cmd codec.Command, timeout time.Duration, complete func(json.RawMessage, error)) *pending.Request {
	name := codec.FormatCommand(cmd)

	data, err := codec.FormatMessage(cmd)
	if err != nil {
		complete(nil, err)
		return nil
	}

	if err := c.write(data); err != nil {
		c.logger.Error("write error", "command", name, "error", err)
		c.options.metrics.failed(c.endpoint, name, "write")
		complete(nil, fmt.Errorf("send %s: %w", name, err))
		return nil
	}
	c.options.metrics.sent(c.endpoint, name)

	req := &pending.Request{Command: name, SentAt: c.now()}
	req.Resolve = func(v json.RawMessage) { complete(v, nil) }
	req.Reject = func(err error) { complete(nil, err) }
	req.StopTimeout = func() {}

	if timeout > 0 {
		id := c.schedule(timeout, func() {
			if !c.pending.Remove(name, req) {
				return
			}
			c.logger.Warn("request timeout", "command", name, "timeout", timeout)
			c.options.metrics.failed(c.endpoint, name, "timeout")
			req.Reject(&TimeoutError{Command: name})
		})
		req.StopTimeout = func() { c.cancelTimer(&id) }
	}

	c.pending.Add(name, req)

	return req
}

func (c *Client) write(data []byte) error {
	c.logger.Debug("writing message", "data_length", len(data))

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.options.writeWait)); err != nil {
		return err
	}

	return c.conn.WriteMessage(gows.TextMessage, data)
}

// drain replays queued commands through the regular send path.
func (c *Client) drain() {
	if c.queue.Len() == 0 {
		return
	}

	c.logger.Info("replaying queued commands", "count", c.queue.Len())
	c.queue.Drain(func(m queue.Message) {
		c.send(m.Command, m.Priority, c.options.requestTimeout, c.discard(codec.FormatCommand(m.Command)))
	})
}

// abandon forgets a request whose caller stopped waiting.
func (c *Client) abandon(req *pending.Request) {
	if req != nil && c.pending.Remove(req.Command, req) {
		req.StopTimeout()
	}
}

func (c *Client) rejectPending(err error) {
	c.pending.Clear(func(r *pending.Request) {
		r.StopTimeout()
		c.options.metrics.failed(c.endpoint, r.Command, "closed")
		r.Reject(err)
	})
}

// discard completes background commands nobody waits for.
func (c *Client) discard(name string) func(json.RawMessage, error) {
	return func(_ json.RawMessage, err error) {
		if err != nil {
			c.logger.Debug("background command failed", "command", name, "error", err)
		}
	}
}

func (c *Client) setState(s State) {
	if s == c.state {
		return
	}

	p := c.state
	c.state = s
	c.snapshot.Store(int32(s))

	c.logger.Debug("state changed", "from", p.String(), "to", s.String())
	c.options.metrics.stateChanged(c.endpoint, p, s)
	emit(c.listeners, EventStateChange, s)
}

// schedule runs fn on the event loop after d unless the timer is cancelled first.
func (c *Client) schedule(d time.Duration, fn func()) timerID {
	c.timerSeq++
	id := timerID(c.timerSeq)

	c.timers[id] = c.options.scheduler.AfterFunc(d, func() {
		c.call(func() {
			// a timer cancelled after it fired must not run
			if _, ok := c.timers[id]; !ok {
				return
			}
			delete(c.timers, id)
			fn()
		})
	})

	return id
}

func (c *Client) cancelTimer(id *timerID) {
	if *id == 0 {
		return
	}
	if stop, ok := c.timers[*id]; ok {
		stop()
		delete(c.timers, *id)
	}
	*id = 0
}

func (c *Client) now() time.Time {
	return c.options.scheduler.Now()
}

func (c *Client) publishSizes() {
	c.queued.Store(int64(c.queue.Len()))

	n := int64(c.pending.Len())
	if c.inFlight.Swap(n) != n {
		c.options.metrics.pendingRequests(c.endpoint, int(n))
	}
}
