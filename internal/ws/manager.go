// Package ws manages the persistent WebSocket channel to the BibleDive
// gateway: dialing, bounded reconnect, queuing of commands sent while the
// channel is down, and dispatch of inbound frames to their consumers.
package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bibledive/bibledive-go/pkg/wire"
)

const (
	defaultRetryDelay = 3 * time.Second
	defaultMaxRetries = 5
	defaultFlushDelay = 50 * time.Millisecond
)

// CloseUnauthorized is the application close code the gateway uses for a
// rejected token. 1008 (policy violation) is treated the same way.
const CloseUnauthorized = 4401

var (
	// ErrConnectionClosed fails pending correlated calls when the transport
	// drops. A correlated call never migrates to the next connection.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrNotConnected reports a call that requires an open channel.
	ErrNotConnected = errors.New("not connected")
)

// TokenFunc supplies the current access token for a dial attempt. It is
// called again on every reconnect so a refreshed token is picked up.
type TokenFunc func(ctx context.Context) (string, error)

// Handler consumes an inbound frame.
type Handler func(wire.Frame)

// Options configures a Manager. Zero values fall back to defaults.
type Options struct {
	Logger     *slog.Logger
	Token      TokenFunc
	RetryDelay time.Duration
	MaxRetries int
	FlushDelay time.Duration
	Dialer     *websocket.Dialer
}

type waiter struct {
	ref    string
	action string
	ch     chan waiterResult
}

type waiterResult struct {
	frame wire.Frame
	err   error
}

// Manager owns one logical channel to the gateway. Created once per process;
// Connect replaces any existing transport.
type Manager struct {
	log        *slog.Logger
	token      TokenFunc
	dialer     *websocket.Dialer
	retryDelay time.Duration
	maxRetries int
	flushDelay time.Duration

	onAuthFailure func()
	onReconnect   func()

	mu        sync.Mutex
	conn      *websocket.Conn
	endpoint  string        // last endpoint, reused on reconnect
	connected chan struct{} // closed while the channel is open, replaced on drop
	open      bool          // tracks whether the connected signal is resolved
	queue     [][]byte
	attempts  int
	reconnect bool // auto-reconnect permitted
	gen       int  // connection generation, guards stale close handling

	subs    map[string][]Handler
	waiters []*waiter
}

// NewManager creates a disconnected Manager.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = defaultFlushDelay
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Manager{
		log:        opts.Logger,
		token:      opts.Token,
		dialer:     opts.Dialer,
		retryDelay: opts.RetryDelay,
		maxRetries: opts.MaxRetries,
		flushDelay: opts.FlushDelay,
		connected:  make(chan struct{}),
		subs:       make(map[string][]Handler),
	}
}

// OnAuthFailure registers the callback fired when the gateway refuses the
// token, either at the handshake or via an auth close code. Auto-reconnect is
// already disabled by the time it runs.
func (m *Manager) OnAuthFailure(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAuthFailure = fn
}

// OnReconnect registers the callback fired after a dropped channel is
// re-established, letting the owner re-sync state.
func (m *Manager) OnReconnect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReconnect = fn
}

// Connect opens the channel to endpoint, replacing any existing transport.
// The access token is appended as a query parameter. On success the connected
// signal resolves, the attempt counter resets, and the pending queue is
// flushed in FIFO order after a short settle delay.
func (m *Manager) Connect(ctx context.Context, endpoint string) error {
	m.mu.Lock()
	m.endpoint = endpoint
	m.reconnect = true
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.gen++
		m.connected = make(chan struct{})
		m.open = false
	}
	m.mu.Unlock()

	return m.dial(ctx, false)
}

// dial performs one connection attempt against the stored endpoint.
func (m *Manager) dial(ctx context.Context, isReconnect bool) error {
	if isReconnect {
		m.mu.Lock()
		// A newer Connect or an explicit Close won the race with this
		// scheduled attempt.
		stale := m.conn != nil || !m.reconnect
		m.mu.Unlock()
		if stale {
			return nil
		}
	}

	token := ""
	if m.token != nil {
		t, err := m.token(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve access token: %w", err)
		}
		token = t
	}

	m.mu.Lock()
	endpoint := m.endpoint
	m.mu.Unlock()

	url := endpoint
	if token != "" {
		url = endpoint + "?token=" + token
	}

	conn, resp, err := m.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			m.disableReconnect()
			m.notifyAuthFailure()
			return fmt.Errorf("gateway rejected token: %w", err)
		}
		return fmt.Errorf("failed to connect to gateway: %w", err)
	}

	m.mu.Lock()
	if m.conn != nil {
		// Another dial landed first; this one is surplus.
		m.mu.Unlock()
		conn.Close()
		return nil
	}
	m.conn = conn
	m.attempts = 0
	m.gen++
	gen := m.gen
	if !m.open {
		close(m.connected)
		m.open = true
	}
	onReconnect := m.onReconnect
	m.mu.Unlock()

	go m.readLoop(conn, gen)
	go m.flushQueue(conn)

	if isReconnect && onReconnect != nil {
		go onReconnect()
	}

	m.log.Info("connected to gateway", slog.String("endpoint", endpoint))
	return nil
}

// Close disables auto-reconnect, closes the transport, and discards the
// pending queue. Commands queued under one identity must not leak into a
// session established under another.
func (m *Manager) Close() {
	m.mu.Lock()
	m.reconnect = false
	m.queue = nil
	conn := m.conn
	m.conn = nil
	if conn != nil {
		m.gen++
		m.connected = make(chan struct{})
		m.open = false
	}
	waiters := m.takeWaitersLocked()
	m.mu.Unlock()

	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
	failWaiters(waiters, ErrConnectionClosed)
}

// WaitConnected blocks until the channel is open. The signal is replaced on
// every drop, so a waiter arriving mid-outage resolves on the next open.
func (m *Manager) WaitConnected(ctx context.Context) error {
	m.mu.Lock()
	ch := m.connected
	m.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsConnected reports whether the channel is currently open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn != nil
}

// Send transmits the command if the channel is open, otherwise queues its
// serialized form for the next flush. Queuing is not an error.
func (m *Manager) Send(cmd wire.Command) error {
	data, err := cmd.Encode()
	if err != nil {
		return err
	}
	return m.sendRaw(data)
}

func (m *Manager) sendRaw(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// A non-empty queue means the post-connect flush has not run yet; new
	// sends line up behind it so queued commands keep their original order.
	if m.conn == nil || len(m.queue) > 0 {
		m.queue = append(m.queue, data)
		return nil
	}
	return m.conn.WriteMessage(websocket.TextMessage, data)
}

// Request sends a correlated command and blocks until the frame answering it
// arrives, the connection drops, or ctx expires. The command is stamped with
// a client-generated ref; a frame echoing that ref resolves this call
// exclusively, so concurrent calls sharing a response action do not collide.
func (m *Manager) Request(ctx context.Context, cmd wire.Command, respAction string) (wire.Frame, error) {
	if cmd.Ref == "" {
		cmd.Ref = uuid.NewString()
	}
	w := &waiter{ref: cmd.Ref, action: respAction, ch: make(chan waiterResult, 1)}

	m.mu.Lock()
	if m.conn == nil {
		m.mu.Unlock()
		return wire.Frame{}, ErrNotConnected
	}
	m.waiters = append(m.waiters, w)
	m.mu.Unlock()

	if err := m.Send(cmd); err != nil {
		m.removeWaiter(w)
		return wire.Frame{}, err
	}

	select {
	case res := <-w.ch:
		return res.frame, res.err
	case <-ctx.Done():
		m.removeWaiter(w)
		return wire.Frame{}, ctx.Err()
	}
}

// Subscribe appends a persistent handler for an action name. All subscribers
// for an action are invoked, in registration order; subscriptions survive
// reconnects.
func (m *Manager) Subscribe(action string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[action] = append(m.subs[action], h)
}

func (m *Manager) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		frame, err := wire.DecodeFrame(data)
		if err != nil {
			m.log.Warn("dropping malformed frame", slog.Any("error", err))
			continue
		}
		m.dispatch(frame)
	}
}

// dispatch resolves at most one pending waiter (by ref, else the oldest
// waiter registered for the frame's action) and then fans the frame out to
// every subscriber for its action.
func (m *Manager) dispatch(frame wire.Frame) {
	m.mu.Lock()
	var matched *waiter
	if frame.Ref != "" {
		for i, w := range m.waiters {
			if w.ref == frame.Ref {
				matched = w
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				break
			}
		}
	}
	if matched == nil {
		for i, w := range m.waiters {
			if w.action == frame.Action {
				matched = w
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				break
			}
		}
	}
	subs := make([]Handler, len(m.subs[frame.Action]))
	copy(subs, m.subs[frame.Action])
	m.mu.Unlock()

	if matched != nil {
		matched.ch <- waiterResult{frame: frame}
	}
	if matched == nil && len(subs) == 0 {
		m.log.Debug("no consumer for frame", slog.String("action", frame.Action))
		return
	}
	for _, h := range subs {
		h(frame)
	}
}

// handleClose runs when the read loop exits. Auth close codes permanently
// disable reconnection; any other abnormal close schedules a redial until the
// attempt ceiling is reached.
func (m *Manager) handleClose(gen int, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer connection replaced this one already.
		m.mu.Unlock()
		return
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connected = make(chan struct{})
	m.open = false
	waiters := m.takeWaitersLocked()

	authClose := isAuthClose(err)
	if authClose {
		m.reconnect = false
	}
	retry := m.reconnect && m.attempts < m.maxRetries
	if retry {
		m.attempts++
	}
	attempts := m.attempts
	onAuthFailure := m.onAuthFailure
	m.mu.Unlock()

	failWaiters(waiters, ErrConnectionClosed)

	switch {
	case authClose:
		m.log.Warn("gateway closed connection: unauthorized")
		if onAuthFailure != nil {
			go onAuthFailure()
		}
	case retry:
		m.log.Info("connection lost, scheduling reconnect",
			slog.Int("attempt", attempts), slog.Any("error", err))
		time.AfterFunc(m.retryDelay, func() {
			if err := m.dial(context.Background(), true); err != nil {
				m.handleClose(m.currentGen(), err)
			}
		})
	default:
		m.log.Warn("connection lost, not reconnecting", slog.Any("error", err))
	}
}

// flushQueue drains the pending queue onto a freshly opened connection. The
// settle delay keeps a burst of queued commands off the channel while the
// server finishes its side of the handshake.
func (m *Manager) flushQueue(conn *websocket.Conn) {
	time.Sleep(m.flushDelay)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != conn || len(m.queue) == 0 {
		return
	}
	m.log.Debug("flushing queued commands", slog.Int("count", len(m.queue)))
	for len(m.queue) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, m.queue[0]); err != nil {
			// What did not go out stays queued for the next connection.
			return
		}
		m.queue = m.queue[1:]
	}
}

func (m *Manager) removeWaiter(w *waiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.waiters {
		if cur == w {
			m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
			return
		}
	}
}

func (m *Manager) takeWaitersLocked() []*waiter {
	waiters := m.waiters
	m.waiters = nil
	return waiters
}

func (m *Manager) currentGen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

func (m *Manager) disableReconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnect = false
}

func (m *Manager) notifyAuthFailure() {
	m.mu.Lock()
	fn := m.onAuthFailure
	m.mu.Unlock()
	if fn != nil {
		go fn()
	}
}

func failWaiters(waiters []*waiter, err error) {
	for _, w := range waiters {
		w.ch <- waiterResult{err: err}
	}
}

func isAuthClose(err error) bool {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return false
	}
	return closeErr.Code == CloseUnauthorized || closeErr.Code == websocket.ClosePolicyViolation
}
