package chatsync

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxReplyAttempts bounds how often one missing reply target is
// requested from the server.
const DefaultMaxReplyAttempts = 3

// ReplyResolver links reply messages to the messages they quote. Targets
// found in the cache are linked at once; the rest are requested in one
// batched lookup and linked when they arrive. A replier displayed before its
// target is queued and linked as soon as the target passes through.
type ReplyResolver struct {
	client   *Client
	cache    *Cache
	renderer Renderer
	session  *Session
	logger   *slog.Logger
	metrics  *Metrics
	lock     sync.Locker
	sf       singleflight.Group

	maxAttempts int

	// Guarded by lock.
	targets     map[string]Message            // resolved targets not kept in a channel log
	queued      map[string]map[string]Message // target id -> replier id -> replier
	linked      map[string]struct{}           // replier ids linked in the current view
	attempts    map[string]int
	inflight    map[string]struct{}
	unavailable map[string]struct{}
	orphans     map[string]map[string]Message // unavailable target id -> replier id -> replier
}

// ReplyOption configures a ReplyResolver.
type ReplyOption func(*ReplyResolver)

// WithMaxReplyAttempts bounds lookups per missing target.
func WithMaxReplyAttempts(n int) ReplyOption {
	return func(r *ReplyResolver) { r.maxAttempts = n }
}

// withRenderLock shares the caller's render lock so resolver output is
// serialized with the caller's own renderer calls.
func withRenderLock(l sync.Locker) ReplyOption {
	return func(r *ReplyResolver) { r.lock = l }
}

func withReplyLogger(l *slog.Logger, m *Metrics) ReplyOption {
	return func(r *ReplyResolver) {
		r.logger = l
		r.metrics = m
	}
}

// NewReplyResolver creates a resolver drawing on cache and client.
func NewReplyResolver(client *Client, cache *Cache, renderer Renderer, session *Session, opts ...ReplyOption) *ReplyResolver {
	r := &ReplyResolver{
		client:      client,
		cache:       cache,
		renderer:    renderer,
		session:     session,
		logger:      slog.Default(),
		lock:        &sync.Mutex{},
		maxAttempts: DefaultMaxReplyAttempts,
		targets:     make(map[string]Message),
		queued:      make(map[string]map[string]Message),
		linked:      make(map[string]struct{}),
		attempts:    make(map[string]int),
		inflight:    make(map[string]struct{}),
		unavailable: make(map[string]struct{}),
		orphans:     make(map[string]map[string]Message),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Process links a displayed batch and fetches whatever is still missing.
// It blocks until the lookup, if any, has been applied.
func (r *ReplyResolver) Process(ctx context.Context, view View, batch []Message) {
	r.lock.Lock()
	missing := r.link(view, batch)
	r.lock.Unlock()
	if len(missing) > 0 {
		r.fetch(ctx, view, missing)
	}
}

// Reset forgets per-view state. Resolved targets stay cached.
func (r *ReplyResolver) Reset() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.reset()
}

func (r *ReplyResolver) reset() {
	r.queued = make(map[string]map[string]Message)
	r.linked = make(map[string]struct{})
	r.orphans = make(map[string]map[string]Message)
}

// link attaches repliers to known targets, backfills queued or unavailable
// repliers whose target is in batch, and returns the target ids worth
// requesting. Caller holds the render lock.
func (r *ReplyResolver) link(view View, batch []Message) []string {
	for _, m := range batch {
		if _, gone := r.unavailable[m.ID]; gone {
			delete(r.unavailable, m.ID)
			delete(r.attempts, m.ID)
		}
		if orphans, ok := r.orphans[m.ID]; ok {
			delete(r.orphans, m.ID)
			for _, replier := range orphans {
				r.renderer.LinkReply(replier.ID, m)
			}
			r.metrics.replyLookup("backfill", len(orphans))
		}
		if waiting, ok := r.queued[m.ID]; ok {
			delete(r.queued, m.ID)
			for _, replier := range waiting {
				r.attach(replier, m)
			}
			r.metrics.replyLookup("backfill", len(waiting))
		}
	}

	var missing []string
	seen := make(map[string]bool)
	for _, m := range batch {
		if !m.IsReply() {
			continue
		}
		if _, done := r.linked[m.ID]; done {
			continue
		}
		if target, ok := r.lookup(view, m.ReplyToID); ok {
			r.attach(m, target)
			r.metrics.replyLookup("cache", 1)
			continue
		}
		if _, gone := r.unavailable[m.ReplyToID]; gone {
			r.markUnavailable(m)
			continue
		}

		q, ok := r.queued[m.ReplyToID]
		if !ok {
			q = make(map[string]Message)
			r.queued[m.ReplyToID] = q
		}
		q[m.ID] = m

		if seen[m.ReplyToID] {
			continue
		}
		seen[m.ReplyToID] = true
		if _, busy := r.inflight[m.ReplyToID]; busy {
			continue
		}
		if r.attempts[m.ReplyToID] >= r.maxAttempts {
			continue
		}
		missing = append(missing, m.ReplyToID)
	}
	sort.Strings(missing)
	return missing
}

func (r *ReplyResolver) lookup(view View, id string) (Message, bool) {
	if m, ok := r.cache.Message(view.cacheGuild(), view.ChannelID, id); ok {
		return m, true
	}
	if m, ok := r.targets[id]; ok {
		return m, true
	}
	return r.cache.FindMessage(id)
}

// markUnavailable shows replier's target as missing and keeps the replier so
// it can still be linked if the target turns up later.
func (r *ReplyResolver) markUnavailable(replier Message) {
	r.linked[replier.ID] = struct{}{}
	r.renderer.MarkReplyUnavailable(replier.ID, replier.ReplyToID)
	o, ok := r.orphans[replier.ReplyToID]
	if !ok {
		o = make(map[string]Message)
		r.orphans[replier.ReplyToID] = o
	}
	o[replier.ID] = replier
}

func (r *ReplyResolver) attach(replier, target Message) {
	if _, done := r.linked[replier.ID]; done {
		return
	}
	r.linked[replier.ID] = struct{}{}
	r.renderer.LinkReply(replier.ID, target)
}

// fetch issues one bulk lookup for ids and applies the result.
func (r *ReplyResolver) fetch(ctx context.Context, view View, ids []string) {
	r.lock.Lock()
	for _, id := range ids {
		r.attempts[id]++
		r.inflight[id] = struct{}{}
	}
	r.lock.Unlock()

	event := EventGetBulkReply
	params := Params{"guildId": view.GuildID, "channelId": view.ChannelID, "ids": strings.Join(ids, ",")}
	if view.IsDM {
		event = EventGetBulkReplyDM
		delete(params, "guildId")
	}

	v, err, _ := r.sf.Do(view.Key()+":"+params["ids"], func() (any, error) {
		return requestJSON[BulkReplyResponse](ctx, r.client, event, params, nil)
	})

	r.lock.Lock()
	defer r.lock.Unlock()
	for _, id := range ids {
		delete(r.inflight, id)
	}
	if err != nil {
		r.logger.Warn("reply lookup failed", "ids", ids, "error", err)
		return
	}
	resp := v.(*BulkReplyResponse)

	stale := r.session != nil && r.session.Current().Key() != view.Key()
	returned := make(map[string]bool, len(resp.Replies))
	for _, target := range resp.Replies {
		returned[target.ID] = true
		r.targets[target.ID] = target
		if stale {
			continue
		}
		if waiting, ok := r.queued[target.ID]; ok {
			delete(r.queued, target.ID)
			for _, replier := range waiting {
				r.attach(replier, target)
			}
		}
	}
	r.metrics.replyLookup("network", len(resp.Replies))

	for _, id := range ids {
		if returned[id] {
			continue
		}
		r.unavailable[id] = struct{}{}
		if stale {
			continue
		}
		for _, replier := range r.queued[id] {
			r.markUnavailable(replier)
		}
		delete(r.queued, id)
	}
}
