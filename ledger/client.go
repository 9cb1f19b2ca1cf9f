package ledger

import (
	// Go Internal Packages
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	// Local Packages
	errors "rwa-stream/errors"

	// External Packages
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "disconnected"
	}
}

type Config struct {
	Endpoints         []string
	RequestTimeout    time.Duration
	DialTimeout       time.Duration
	MaxConnectRetries int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// Client owns the single WebSocket session to a rippled endpoint. Requests
// are correlated to responses by id; one goroutine reads the socket.
type Client struct {
	config Config
	logger *zap.Logger
	dialer *websocket.Dialer

	mu         sync.Mutex
	conn       *websocket.Conn
	endpoint   string
	state      State
	connecting bool
	listeners  []func(State)

	// cancels the background reconnect started after a dropped session
	reconnectCancel context.CancelFunc

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan reply
	nextID    atomic.Uint64
}

type response struct {
	ID           uint64          `json:"id"`
	Status       string          `json:"status"`
	Type         string          `json:"type"`
	Result       json.RawMessage `json:"result"`
	Error        string          `json:"error"`
	ErrorMessage string          `json:"error_message"`
}

type reply struct {
	resp response
	err  error
}

var errNotConnected = errors.E(errors.Unavailable, "ledger client not connected", nil)

func NewClient(conf Config, logger *zap.Logger) *Client {
	if conf.RequestTimeout <= 0 {
		conf.RequestTimeout = 15 * time.Second
	}
	if conf.DialTimeout <= 0 {
		conf.DialTimeout = 10 * time.Second
	}
	if conf.MaxConnectRetries < 1 {
		conf.MaxConnectRetries = 1
	}
	return &Client{
		config:  conf,
		logger:  logger,
		dialer:  &websocket.Dialer{HandshakeTimeout: conf.DialTimeout},
		pending: make(map[uint64]chan reply),
	}
}

// OnStateChange registers fn to be called on every connection transition.
func (c *Client) OnStateChange(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Endpoint returns the URL of the live session, empty when disconnected.
func (c *Client) Endpoint() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.endpoint
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	if c.state == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	listeners := make([]func(State), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		c.notify(fn, s)
	}
}

func (c *Client) notify(fn func(State), s State) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("state listener panicked", zap.Any("panic", r))
		}
	}()
	fn(s)
}

// Connect opens the session. It is a no-op when already connected or when
// another attempt is in flight. Endpoints are tried in order.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil || c.connecting {
		c.mu.Unlock()
		return nil
	}
	c.connecting = true
	c.mu.Unlock()

	c.setState(StateConnecting)
	conn, endpoint, err := c.dial(ctx)

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.mu.Unlock()
		c.setState(StateDisconnected)
		return err
	}
	if ctx.Err() != nil {
		c.mu.Unlock()
		_ = conn.Close()
		c.setState(StateDisconnected)
		return ctx.Err()
	}
	c.conn = conn
	c.endpoint = endpoint
	c.mu.Unlock()

	go c.readLoop(conn)
	c.logger.Info("connected to ledger", zap.String("endpoint", endpoint))
	c.setState(StateConnected)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, string, error) {
	var lastErr error
	for _, endpoint := range c.config.Endpoints {
		dctx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
		conn, _, err := c.dialer.DialContext(dctx, endpoint, nil)
		cancel()
		if err == nil {
			return conn, endpoint, nil
		}
		c.logger.Warn("ledger endpoint unreachable", zap.String("endpoint", endpoint), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no ledger endpoints configured")
	}
	return nil, "", errors.E(errors.Unavailable, "cannot reach any ledger endpoint", lastErr)
}

// ConnectWithRetry retries Connect with exponential backoff up to
// MaxConnectRetries attempts. Once exhausted the client stays in StateError
// until the caller retries again. A dropped session runs it automatically.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	if c.config.InitialBackoff > 0 {
		b.InitialInterval = c.config.InitialBackoff
	}
	if c.config.MaxBackoff > 0 {
		b.MaxInterval = c.config.MaxBackoff
	}
	b.MaxElapsedTime = 0

	retries := uint64(c.config.MaxConnectRetries - 1)
	policy := backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)

	attempts := 0
	operation := func() error {
		attempts++
		return c.Connect(ctx)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("ledger connection attempt failed",
			zap.Int("attempt", attempts), zap.Duration("retry_in", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		if ctx.Err() != nil {
			c.setState(StateDisconnected)
			return ctx.Err()
		}
		c.setState(StateError)
		c.logger.Error("giving up on ledger connection", zap.Int("attempts", attempts), zap.Error(err))
		return errors.ConnectionExhaustedErr(attempts, err)
	}
	return nil
}

// Disconnect closes the session and stops any background reconnect. Safe to
// call when not connected.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.reconnectCancel != nil {
		c.reconnectCancel()
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()

	err := conn.Close()
	c.failPending(errNotConnected)
	c.setState(StateDisconnected)
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.dropped(conn, err)
			return
		}

		var resp response
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.logger.Debug("unreadable ledger message", zap.Error(err))
			continue
		}
		// stream messages carry no id
		if resp.ID == 0 {
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.pendingMu.Unlock()
		if ok {
			ch <- reply{resp: resp}
		}
	}
}

func (c *Client) dropped(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
	}
	c.mu.Unlock()

	if !current {
		return
	}
	c.logger.Warn("ledger connection dropped", zap.Error(err))
	_ = conn.Close()
	c.failPending(errNotConnected)
	c.setState(StateDisconnected)
	c.reconnect()
}

// reconnect runs ConnectWithRetry in the background. Only one runs at a
// time; Disconnect cancels it.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.reconnectCancel != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.reconnectCancel = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.reconnectCancel = nil
			c.mu.Unlock()
			cancel()
		}()
		if err := c.ConnectWithRetry(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("ledger reconnect failed", zap.Error(err))
		}
	}()
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		ch <- reply{err: err}
		delete(c.pending, id)
	}
}

func (c *Client) request(ctx context.Context, command string, params map[string]any) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil, errNotConnected
	}

	id := c.nextID.Add(1)
	ch := make(chan reply, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	msg := make(map[string]any, len(params)+2)
	for k, v := range params {
		msg[k] = v
	}
	msg["id"] = id
	msg["command"] = command

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(c.config.RequestTimeout))
	err := conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("%s write failed", command), err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
	defer cancel()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		if r.resp.Status == "error" || r.resp.Error != "" {
			if r.resp.Error == "actNotFound" {
				return nil, errors.NotFoundErr("account", fmt.Sprint(params["account"]))
			}
			return nil, errors.RPCErr(command, r.resp.Error, r.resp.ErrorMessage)
		}
		return r.resp.Result, nil
	case <-ctx.Done():
		return nil, errors.E(errors.Unavailable, fmt.Sprintf("%s timed out", command), ctx.Err())
	}
}
