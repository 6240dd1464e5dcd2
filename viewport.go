package chatsync

import (
	"context"
	"sync"
)

// DefaultTopBuffer is the distance from the top, in pixels, at which older
// messages are requested.
const DefaultTopBuffer = 10

// Pager loads older messages on demand. *Synchronizer implements it.
type Pager interface {
	RequestOlder(ctx context.Context) bool
	Fetching() bool
}

// Scroller moves the message area.
type Scroller interface {
	SetScrollTop(top float64)
}

// ScrollMetrics describes the message area.
type ScrollMetrics struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

// hidden is the distance between the bottom of the viewport and the end of
// the content.
func (m ScrollMetrics) hidden() float64 {
	return m.ScrollHeight - m.ScrollTop - m.ClientHeight
}

// bottom is the scroll offset that shows the end of the content.
func (m ScrollMetrics) bottom() float64 {
	if b := m.ScrollHeight - m.ClientHeight; b > 0 {
		return b
	}
	return 0
}

// InputKind is a manual input that can move the viewport.
type InputKind int

const (
	InputWheel InputKind = iota
	InputTouch
	InputMouseDown
)

// Viewport keeps the message area pinned to the bottom while locked and
// still while the user reads history.
type Viewport struct {
	mu        sync.Mutex
	locked    bool
	metrics   ScrollMetrics
	pager     Pager
	scroller  Scroller
	topBuffer float64
}

// ViewportOption configures a Viewport.
type ViewportOption func(*Viewport)

// WithTopBuffer sets the near-top distance that triggers pagination.
func WithTopBuffer(px float64) ViewportOption {
	return func(v *Viewport) { v.topBuffer = px }
}

// NewViewport creates a locked viewport.
func NewViewport(pager Pager, scroller Scroller, opts ...ViewportOption) *Viewport {
	v := &Viewport{
		locked:    true,
		pager:     pager,
		scroller:  scroller,
		topBuffer: DefaultTopBuffer,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Locked reports whether new content follows the bottom.
func (v *Viewport) Locked() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locked
}

// UserInput releases the lock on any manual scroll input.
func (v *Viewport) UserInput(InputKind) {
	v.mu.Lock()
	v.locked = false
	v.mu.Unlock()
}

// Scrolled records a scroll position. Coming within one viewport height of
// the bottom re-acquires the lock; reaching the top buffer asks the pager for
// older messages unless a fetch is already running. It reports whether a
// fetch was started.
func (v *Viewport) Scrolled(ctx context.Context, m ScrollMetrics) bool {
	v.mu.Lock()
	v.metrics = m
	if m.hidden() < m.ClientHeight {
		v.locked = true
	}
	nearTop := m.ScrollTop <= v.topBuffer
	v.mu.Unlock()

	if !nearTop || v.pager == nil || v.pager.Fetching() {
		return false
	}
	return v.pager.RequestOlder(ctx)
}

// ScrollToBottom jumps to the end and locks.
func (v *Viewport) ScrollToBottom() {
	v.mu.Lock()
	v.locked = true
	v.metrics.ScrollTop = v.metrics.bottom()
	top := v.metrics.ScrollTop
	v.mu.Unlock()
	v.scroll(top)
}

// ContentAppended follows new content at the bottom when locked.
func (v *Viewport) ContentAppended(m ScrollMetrics) {
	v.mu.Lock()
	v.metrics = m
	if !v.locked {
		v.mu.Unlock()
		return
	}
	v.metrics.ScrollTop = m.bottom()
	top := v.metrics.ScrollTop
	v.mu.Unlock()
	v.scroll(top)
}

// ContentPrepended shifts the offset by the height inserted above so the
// visible messages do not move.
func (v *Viewport) ContentPrepended(height float64) {
	if height <= 0 {
		return
	}
	v.mu.Lock()
	v.metrics.ScrollHeight += height
	v.metrics.ScrollTop += height
	top := v.metrics.ScrollTop
	v.mu.Unlock()
	v.scroll(top)
}

// Reset locks the viewport for a newly selected channel.
func (v *Viewport) Reset() {
	v.mu.Lock()
	v.locked = true
	v.metrics = ScrollMetrics{}
	v.mu.Unlock()
}

func (v *Viewport) scroll(top float64) {
	if v.scroller != nil {
		v.scroller.SetScrollTop(top)
	}
}
