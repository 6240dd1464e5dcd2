package chatsync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"nhooyr.io/websocket"
)

// ============================================================================
// Wire format
// ============================================================================

// Envelope is the frame format of the push socket.
type Envelope struct {
	Event   EventName       `json:"event_type"`
	Payload json.RawMessage `json:"payload"`
}

// parseEnvelope accepts both snake_case and camel/PascalCase frame keys.
func parseEnvelope(data []byte) (Envelope, error) {
	var frame map[string]json.RawMessage
	if err := json.Unmarshal(data, &frame); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	var env Envelope
	for _, k := range []string{"event_type", "eventType", "EventType", "event", "Event", "type"} {
		if raw, ok := frame[k]; ok {
			var name string
			if json.Unmarshal(raw, &name) == nil && name != "" {
				env.Event = EventName(name)
				break
			}
		}
	}
	for _, k := range []string{"payload", "Payload", "data", "Data"} {
		if raw, ok := frame[k]; ok {
			env.Payload = raw
			break
		}
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: frame without event name", ErrMalformedPayload)
	}
	return env, nil
}

// ============================================================================
// Configuration
// ============================================================================

// RealtimeConfig configures the push socket.
type RealtimeConfig struct {
	Token                string
	Path                 string
	DisableReconnect     bool
	MaxReconnectAttempts int // 0 retries forever
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	ReadLimit            int64
	HTTPClient           *http.Client
}

func (c *RealtimeConfig) defaults() {
	if c.Path == "" {
		c.Path = "/socket"
	}
	if c.ReconnectBaseDelay == 0 {
		c.ReconnectBaseDelay = 1 * time.Second
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = 30 * time.Second
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.HeartbeatTimeout == 0 {
		c.HeartbeatTimeout = 10 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
}

// ConnState is the socket connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

// ============================================================================
// Realtime
// ============================================================================

// Realtime is the push half of the transport: a websocket client with
// exponential reconnect and a ping heartbeat that runs only while connected.
// Frames are decoded and dispatched on the bus from a single read goroutine,
// so handlers observe events in arrival order.
type Realtime struct {
	baseURL string
	config  *RealtimeConfig
	bus     *Bus
	logger  *slog.Logger
	metrics *Metrics
	bo      *backoff.ExponentialBackOff

	mu          sync.Mutex
	state       ConnState
	conn        *websocket.Conn
	cancelFn    context.CancelFunc
	runCtx      context.Context
	intentional bool

	hooksMu        sync.RWMutex
	onState        []func(ConnState)
	onReconnecting []func(attempt int, delay time.Duration)
	onReconnected  []func()
}

// RealtimeOption configures a Realtime client.
type RealtimeOption func(*Realtime)

// WithRealtimeLogger sets the socket logger.
func WithRealtimeLogger(l *slog.Logger) RealtimeOption {
	return func(rt *Realtime) { rt.logger = l }
}

// WithRealtimeMetrics records state changes and reconnects.
func WithRealtimeMetrics(m *Metrics) RealtimeOption {
	return func(rt *Realtime) { rt.metrics = m }
}

// NewRealtime creates a disconnected socket client that dispatches frames
// on bus.
func NewRealtime(baseURL string, bus *Bus, config *RealtimeConfig, opts ...RealtimeOption) *Realtime {
	if config == nil {
		config = &RealtimeConfig{}
	}
	config.defaults()
	rt := &Realtime{
		baseURL: strings.TrimRight(baseURL, "/"),
		config:  config,
		bus:     bus,
		logger:  slog.Default(),
		state:   StateDisconnected,
		bo: backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(config.ReconnectBaseDelay),
			backoff.WithMaxInterval(config.ReconnectMaxDelay),
			backoff.WithMaxElapsedTime(0),
		),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// OnStateChange registers a handler for every state transition.
func (rt *Realtime) OnStateChange(h func(ConnState)) {
	rt.hooksMu.Lock()
	rt.onState = append(rt.onState, h)
	rt.hooksMu.Unlock()
}

// OnReconnecting registers a handler called before each reconnect attempt.
func (rt *Realtime) OnReconnecting(h func(attempt int, delay time.Duration)) {
	rt.hooksMu.Lock()
	rt.onReconnecting = append(rt.onReconnecting, h)
	rt.hooksMu.Unlock()
}

// OnReconnected registers a handler called after a dropped connection has
// been re-established. Callers use it to re-request bootstrap data.
func (rt *Realtime) OnReconnected(h func()) {
	rt.hooksMu.Lock()
	rt.onReconnected = append(rt.onReconnected, h)
	rt.hooksMu.Unlock()
}

// State returns the current connection state.
func (rt *Realtime) State() ConnState {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.state
}

// Connect dials the socket. Reconnects after a failure use ctx as their
// lifetime.
func (rt *Realtime) Connect(ctx context.Context) error {
	rt.mu.Lock()
	if rt.state != StateDisconnected {
		rt.mu.Unlock()
		return nil
	}
	rt.intentional = false
	rt.runCtx = ctx
	rt.mu.Unlock()

	rt.setState(StateConnecting)
	if err := rt.dial(ctx); err != nil {
		rt.setState(StateDisconnected)
		return err
	}
	return nil
}

// Disconnect closes the socket without reconnecting.
func (rt *Realtime) Disconnect() error {
	rt.mu.Lock()
	rt.intentional = true
	conn := rt.conn
	rt.conn = nil
	rt.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	rt.setState(StateDisconnected)
	return err
}

// Send writes one frame. While not connected the frame is dropped and
// ErrNotConnected is returned.
func (rt *Realtime) Send(ctx context.Context, event EventName, payload any) error {
	rt.mu.Lock()
	conn := rt.conn
	state := rt.state
	rt.mu.Unlock()

	if state != StateConnected || conn == nil {
		rt.logger.Debug("dropping frame while not connected", "event", event, "state", state)
		return ErrNotConnected
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(Envelope{Event: event, Payload: raw})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (rt *Realtime) socketURL() string {
	u := strings.Replace(rt.baseURL, "https://", "wss://", 1)
	u = strings.Replace(u, "http://", "ws://", 1)
	u += rt.config.Path
	if rt.config.Token != "" {
		u += "?token=" + url.QueryEscape(rt.config.Token)
	}
	return u
}

func (rt *Realtime) dial(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, rt.socketURL(), &websocket.DialOptions{
		HTTPClient: rt.config.HTTPClient,
	})
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(rt.config.ReadLimit)

	connCtx, cancel := context.WithCancel(ctx)
	rt.mu.Lock()
	rt.conn = conn
	rt.cancelFn = cancel
	rt.mu.Unlock()

	rt.bo.Reset()
	rt.setState(StateConnected)

	go rt.readLoop(connCtx, conn)
	go rt.heartbeatLoop(connCtx, conn)
	return nil
}

// setState records a transition. Leaving Connected cancels the connection
// context, which stops the heartbeat.
func (rt *Realtime) setState(s ConnState) {
	rt.mu.Lock()
	prev := rt.state
	rt.state = s
	if prev == StateConnected && s != StateConnected && rt.cancelFn != nil {
		rt.cancelFn()
		rt.cancelFn = nil
	}
	rt.mu.Unlock()

	if prev == s {
		return
	}
	rt.metrics.state(s)
	rt.logger.Info("socket state changed", "from", prev, "to", s)

	rt.hooksMu.RLock()
	hooks := append([]func(ConnState){}, rt.onState...)
	rt.hooksMu.RUnlock()
	for _, h := range hooks {
		rt.safeCall(func() { h(s) })
	}
}

func (rt *Realtime) isIntentional() bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.intentional
}

func (rt *Realtime) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if rt.isIntentional() {
				return
			}
			clean := websocket.CloseStatus(err) == websocket.StatusNormalClosure
			if clean {
				rt.logger.Info("socket closed by server")
			} else {
				rt.logger.Warn("socket read failed", "error", err)
			}
			conn.CloseNow()

			rt.mu.Lock()
			if rt.conn == conn {
				rt.conn = nil
			}
			parent := rt.runCtx
			rt.mu.Unlock()

			if clean || rt.config.DisableReconnect {
				rt.setState(StateDisconnected)
				return
			}
			rt.setState(StateReconnecting)
			rt.reconnect(parent)
			return
		}

		env, err := parseEnvelope(data)
		if err != nil {
			rt.logger.Warn("dropping undecodable frame", "error", err)
			rt.metrics.eventDropped("", "malformed")
			continue
		}
		_ = rt.bus.Dispatch(env.Event, env.Payload)
	}
}

func (rt *Realtime) reconnect(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		if rt.config.MaxReconnectAttempts > 0 && attempt > rt.config.MaxReconnectAttempts {
			rt.logger.Error("giving up reconnecting", "attempts", attempt-1)
			rt.setState(StateDisconnected)
			return
		}
		delay := rt.bo.NextBackOff()
		if delay == backoff.Stop {
			rt.setState(StateDisconnected)
			return
		}
		rt.metrics.reconnect()
		rt.emitReconnecting(attempt, delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			rt.setState(StateDisconnected)
			return
		case <-timer.C:
		}
		if rt.isIntentional() {
			return
		}

		rt.setState(StateConnecting)
		if err := rt.dial(ctx); err != nil {
			rt.logger.Warn("reconnect failed", "attempt", attempt, "error", err)
			rt.setState(StateReconnecting)
			continue
		}
		rt.emitReconnected()
		return
	}
}

func (rt *Realtime) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(rt.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rt.State() != StateConnected {
				return
			}
			pingCtx, cancel := context.WithTimeout(ctx, rt.config.HeartbeatTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				rt.metrics.heartbeat(false)
				rt.logger.Warn("heartbeat failed", "error", err)
				// A peer that misses a pong will not answer a close handshake either.
				conn.CloseNow()
				return
			}
			rt.metrics.heartbeat(true)
		}
	}
}

func (rt *Realtime) emitReconnecting(attempt int, delay time.Duration) {
	rt.hooksMu.RLock()
	hooks := append([]func(int, time.Duration){}, rt.onReconnecting...)
	rt.hooksMu.RUnlock()
	for _, h := range hooks {
		rt.safeCall(func() { h(attempt, delay) })
	}
}

func (rt *Realtime) emitReconnected() {
	rt.hooksMu.RLock()
	hooks := append([]func(){}, rt.onReconnected...)
	rt.hooksMu.RUnlock()
	for _, h := range hooks {
		rt.safeCall(h)
	}
}

func (rt *Realtime) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			rt.logger.Error("socket hook panicked", "panic", r)
		}
	}()
	fn()
}
