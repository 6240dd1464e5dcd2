// Package chatsync keeps a chat client's guild/channel/DM cache consistent
// with a server that speaks request/response over HTTP and pushes events
// over a websocket.
//
// Example:
//
//	client := chatsync.NewClient("https://chat.example.com", chatsync.WithToken(token))
//	cache := chatsync.NewCache()
//	sync := chatsync.NewSynchronizer(client, cache, renderer, chatsync.WithNotifier(n))
//
//	rt := chatsync.NewRealtime(client.BaseURL(), client.Bus(), &chatsync.RealtimeConfig{Token: token})
//	sync.Register(ctx, client.Bus())
//	rt.OnReconnected(func() { sync.Bootstrap(ctx) })
//	rt.Connect(ctx)
//
//	sync.SelectChannel(ctx, guildID, channelID)
//	sync.SendMessage(ctx, "hello", "")
package chatsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultTimeout           = 30 * time.Second
	DefaultRetryDelay        = 500 * time.Millisecond
	DefaultBootstrapInterval = 5 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client is the request half of the transport. Each logical event maps to
// one HTTP route; responses are returned to the caller and, for Send, also
// published on the bus.
type Client struct {
	baseURL           string
	token             string
	httpClient        *http.Client
	bus               *Bus
	logger            *slog.Logger
	metrics           *Metrics
	retryDelay        time.Duration
	bootstrapInterval time.Duration

	mu         sync.RWMutex
	errorHooks map[EventName][]func(*RequestError)
	alert      func(EventName, error)
}

type ClientOption func(*Client)

func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

func WithMetrics(m *Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithBus shares an existing bus instead of creating one.
func WithBus(b *Bus) ClientOption {
	return func(c *Client) { c.bus = b }
}

// WithRetryDelay sets the pause before the single retry of a failed request.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) { c.retryDelay = d }
}

// WithBootstrapInterval sets the fixed delay between GET_INIT_DATA attempts.
func WithBootstrapInterval(d time.Duration) ClientOption {
	return func(c *Client) { c.bootstrapInterval = d }
}

// WithAlert sets the callback fired once a request has exhausted its retries.
func WithAlert(fn func(EventName, error)) ClientOption {
	return func(c *Client) { c.alert = fn }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		logger:            slog.Default(),
		retryDelay:        DefaultRetryDelay,
		bootstrapInterval: DefaultBootstrapInterval,
		errorHooks:        make(map[EventName][]func(*RequestError)),
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.bus == nil {
		c.bus = NewBus(WithBusLogger(c.logger), WithBusMetrics(c.metrics))
	}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.baseURL }

// Bus returns the bus responses and push events are published on.
func (c *Client) Bus() *Bus { return c.bus }

// On registers a handler for the response payload of a request event sent
// with Send.
func (c *Client) On(event EventName, h RawHandler) {
	c.bus.OnRaw(event, h)
}

// OnError registers a hook fired when a request for event fails with a
// non-2xx status after retries.
func (c *Client) OnError(event EventName, h func(*RequestError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorHooks[event] = append(c.errorHooks[event], h)
}

// ============================================================================
// Requests
// ============================================================================

// Request performs a logical request and returns its camelCase-normalized
// response body. GET_INIT_DATA is retried at a fixed interval until ctx is
// done; every other event is retried at most once; 401 and 403 are never
// retried.
func (c *Client) Request(ctx context.Context, event EventName, params Params, body any) (json.RawMessage, error) {
	method, path, err := BuildURL(event, params)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	lastStatus := 0
	op := func() (json.RawMessage, error) {
		data, status, err := c.doRequest(ctx, method, path, body)
		lastStatus = status
		if err != nil {
			return nil, err
		}
		if status < 200 || status > 299 {
			re := &RequestError{Event: event, Status: status, Body: data}
			var apiErr APIError
			if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
				re.API = &apiErr
			}
			if re.Unauthorized() {
				return nil, backoff.Permanent(re)
			}
			return nil, re
		}
		if len(bytes.TrimSpace(data)) == 0 {
			return nil, nil
		}
		return normalizeKeys(data)
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying request", "event", event, "wait", wait, "error", err)
	}

	data, err := backoff.RetryNotifyWithData(op, backoff.WithContext(c.policy(event), ctx), notify)
	c.metrics.request(event, lastStatus, time.Since(start))
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ctx.Err()) {
			err = fmt.Errorf("%s: %w", event, ctx.Err())
		}
		c.fail(event, err)
		return nil, err
	}
	return data, nil
}

// Send performs a request in the background and publishes the response to
// handlers registered with On. Failures are reported through the error
// hooks and the alert callback.
func (c *Client) Send(ctx context.Context, event EventName, params Params, body any) {
	go func() {
		data, err := c.Request(ctx, event, params, body)
		if err != nil || data == nil {
			return
		}
		c.bus.PublishRaw(event, data)
	}()
}

func (c *Client) policy(event EventName) backoff.BackOff {
	if event == EventGetInitData {
		return backoff.NewConstantBackOff(c.bootstrapInterval)
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryDelay), 1)
}

func (c *Client) fail(event EventName, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	c.logger.Warn("request failed", "event", event, "error", err)

	var re *RequestError
	if errors.As(err, &re) {
		c.mu.RLock()
		hooks := append([]func(*RequestError){}, c.errorHooks[event]...)
		c.mu.RUnlock()
		for _, h := range hooks {
			c.bus.invoke(event, func() { h(re) })
		}
	}
	if c.alert != nil {
		c.bus.invoke(event, func() { c.alert(event, err) })
	}
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var bodyReader io.Reader
	if body != nil && method != http.MethodGet {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, 0, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}

	if bodyReader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return data, resp.StatusCode, nil
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if len(data) == 0 {
		return &result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &result, nil
}

func requestJSON[T any](ctx context.Context, c *Client, event EventName, params Params, body any) (*T, error) {
	data, err := c.Request(ctx, event, params, body)
	if err != nil {
		return nil, err
	}
	return decodeJSON[T](data)
}
