package chatsync

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

var _ Pager = (*Synchronizer)(nil)

type fakePager struct {
	mu       sync.Mutex
	fetching bool
	requests int
}

func (p *fakePager) RequestOlder(context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fetching {
		return false
	}
	p.requests++
	p.fetching = true
	return true
}

func (p *fakePager) Fetching() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetching
}

func (p *fakePager) done() {
	p.mu.Lock()
	p.fetching = false
	p.mu.Unlock()
}

type fakeScroller struct {
	tops []float64
}

func (s *fakeScroller) SetScrollTop(top float64) { s.tops = append(s.tops, top) }

func (s *fakeScroller) last() float64 {
	if len(s.tops) == 0 {
		return -1
	}
	return s.tops[len(s.tops)-1]
}

func TestViewport(t *testing.T) {
	ctx := context.Background()

	t.Run("New content follows the bottom while locked", func(t *testing.T) {
		scroller := &fakeScroller{}
		v := NewViewport(&fakePager{}, scroller)
		assert.True(t, v.Locked())

		v.ContentAppended(ScrollMetrics{ScrollTop: 0, ScrollHeight: 1500, ClientHeight: 500})
		assert.Equal(t, 1000.0, scroller.last())
	})

	t.Run("Manual input releases the lock", func(t *testing.T) {
		scroller := &fakeScroller{}
		v := NewViewport(&fakePager{}, scroller)

		v.UserInput(InputWheel)
		assert.False(t, v.Locked())

		v.ContentAppended(ScrollMetrics{ScrollTop: 200, ScrollHeight: 3000, ClientHeight: 500})
		assert.Empty(t, scroller.tops)
	})

	t.Run("Scrolling back near the bottom relocks", func(t *testing.T) {
		v := NewViewport(&fakePager{}, &fakeScroller{})
		v.UserInput(InputTouch)

		v.Scrolled(ctx, ScrollMetrics{ScrollTop: 1000, ScrollHeight: 3000, ClientHeight: 500})
		assert.False(t, v.Locked())

		v.Scrolled(ctx, ScrollMetrics{ScrollTop: 2200, ScrollHeight: 3000, ClientHeight: 500})
		assert.True(t, v.Locked())
	})

	t.Run("Reaching the top asks for one older page", func(t *testing.T) {
		pager := &fakePager{}
		v := NewViewport(pager, &fakeScroller{})
		v.UserInput(InputWheel)

		top := ScrollMetrics{ScrollTop: 5, ScrollHeight: 3000, ClientHeight: 500}
		assert.True(t, v.Scrolled(ctx, top))
		assert.False(t, v.Scrolled(ctx, top))
		assert.False(t, v.Scrolled(ctx, ScrollMetrics{ScrollTop: 0, ScrollHeight: 3000, ClientHeight: 500}))
		assert.Equal(t, 1, pager.requests)

		pager.done()
		assert.True(t, v.Scrolled(ctx, top))
		assert.Equal(t, 2, pager.requests)
	})

	t.Run("Scrolling away from the top requests nothing", func(t *testing.T) {
		pager := &fakePager{}
		v := NewViewport(pager, &fakeScroller{}, WithTopBuffer(50))

		assert.False(t, v.Scrolled(ctx, ScrollMetrics{ScrollTop: 51, ScrollHeight: 3000, ClientHeight: 500}))
		assert.True(t, v.Scrolled(ctx, ScrollMetrics{ScrollTop: 50, ScrollHeight: 3000, ClientHeight: 500}))
		assert.Equal(t, 1, pager.requests)
	})

	t.Run("Prepended content keeps the visible messages in place", func(t *testing.T) {
		scroller := &fakeScroller{}
		v := NewViewport(&fakePager{}, scroller)
		v.UserInput(InputMouseDown)
		v.Scrolled(ctx, ScrollMetrics{ScrollTop: 4, ScrollHeight: 2000, ClientHeight: 500})

		v.ContentPrepended(800)
		assert.Equal(t, 804.0, scroller.last())

		v.ContentPrepended(0)
		assert.Len(t, scroller.tops, 1)
	})

	t.Run("ScrollToBottom and Reset lock the viewport", func(t *testing.T) {
		scroller := &fakeScroller{}
		v := NewViewport(&fakePager{}, scroller)
		v.UserInput(InputWheel)
		v.Scrolled(ctx, ScrollMetrics{ScrollTop: 100, ScrollHeight: 2000, ClientHeight: 400})

		v.ScrollToBottom()
		assert.True(t, v.Locked())
		assert.Equal(t, 1600.0, scroller.last())

		v.UserInput(InputWheel)
		v.Reset()
		assert.True(t, v.Locked())
	})

	t.Run("Content shorter than the viewport stays at the top", func(t *testing.T) {
		scroller := &fakeScroller{}
		v := NewViewport(nil, scroller)

		v.ContentAppended(ScrollMetrics{ScrollHeight: 300, ClientHeight: 500})
		assert.Equal(t, 0.0, scroller.last())
		assert.False(t, v.Scrolled(ctx, ScrollMetrics{ScrollHeight: 300, ClientHeight: 500}))
	})
}
