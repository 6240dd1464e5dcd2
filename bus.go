package chatsync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
)

// EventHandler receives decoded push events.
type EventHandler func(Event)

// RawHandler receives undecoded payloads, such as request responses.
type RawHandler func(name EventName, payload json.RawMessage)

// Bus is an ordered pub/sub keyed by event name. Handlers run synchronously
// in registration order; a panicking handler is logged and skipped.
type Bus struct {
	mu      sync.RWMutex
	typed   map[EventName][]EventHandler
	all     []EventHandler
	raw     map[EventName][]RawHandler
	logger  *slog.Logger
	metrics *Metrics
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithBusLogger sets the logger used for handler failures.
func WithBusLogger(l *slog.Logger) BusOption {
	return func(b *Bus) { b.logger = l }
}

// WithBusMetrics records received and dropped events.
func WithBusMetrics(m *Metrics) BusOption {
	return func(b *Bus) { b.metrics = m }
}

// NewBus creates an empty bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		typed:  make(map[EventName][]EventHandler),
		raw:    make(map[EventName][]RawHandler),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// On registers a handler for one event name.
func (b *Bus) On(name EventName, h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.typed[name] = append(b.typed[name], h)
}

// OnAny registers a handler that sees every published event after the
// name-specific handlers.
func (b *Bus) OnAny(h EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// OnRaw registers a handler for undecoded payloads of one event name.
func (b *Bus) OnRaw(name EventName, h RawHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.raw[name] = append(b.raw[name], h)
}

// Publish delivers a decoded event.
func (b *Bus) Publish(ev Event) {
	name := ev.EventName()
	b.mu.RLock()
	handlers := append(append([]EventHandler{}, b.typed[name]...), b.all...)
	b.mu.RUnlock()

	b.metrics.eventReceived(name)
	for _, h := range handlers {
		b.invoke(name, func() { h(ev) })
	}
}

// PublishRaw delivers an undecoded payload to raw handlers.
func (b *Bus) PublishRaw(name EventName, payload json.RawMessage) {
	b.mu.RLock()
	handlers := append([]RawHandler{}, b.raw[name]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		b.invoke(name, func() { h(name, payload) })
	}
}

// Dispatch normalizes a push payload once, hands it to raw handlers, then
// decodes and publishes it. Payloads that are not JSON reach no handler.
// Undecodable payloads are logged, counted and skipped; the returned error
// is informational.
func (b *Bus) Dispatch(name EventName, payload json.RawMessage) error {
	data, err := normalizeKeys(payload)
	var ev Event
	if err == nil {
		b.PublishRaw(name, data)
		ev, err = decodeNormalized(name, data)
	}
	if err != nil {
		reason := "malformed"
		if errors.Is(err, ErrUnknownEvent) {
			reason = "unknown"
			b.logger.Debug("ignoring unknown event", "event", name)
		} else {
			b.logger.Warn("dropping malformed event", "event", name, "error", err)
		}
		b.metrics.eventDropped(name, reason)
		return err
	}
	b.Publish(ev)
	return nil
}

func (b *Bus) invoke(name EventName, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", "event", name, "panic", r)
		}
	}()
	fn()
}
