package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// DefaultPendingTimeout is how long an optimistic send may wait for its
// confirmation before CheckPending marks it failed.
const DefaultPendingTimeout = 30 * time.Second

// ============================================================================
// Synchronizer
// ============================================================================

// Synchronizer keeps the cache and the rendered view in step with history
// fetches, live pushes and the user's own sends. Results for a channel the
// user has left are cached but never rendered.
type Synchronizer struct {
	client   *Client
	cache    *Cache
	renderer Renderer
	notifier Notifier
	session  *Session
	replies  *ReplyResolver
	logger   *slog.Logger
	metrics  *Metrics
	sf       singleflight.Group

	pendingTimeout time.Duration
	replyOpts      []ReplyOption

	// mu serializes renderer calls and guards the fields below.
	mu       sync.Mutex
	shown    *channelLog // messages currently drawn, in channel order
	shownKey string
	pending  map[string]*pendingSend
	newest   map[string]time.Time

	pageMu   sync.Mutex
	fetching map[string]bool
	atStart  map[string]bool

	sendMu sync.Mutex
}

type pendingSend struct {
	msg    Message
	view   View
	sentAt time.Time
	failed bool
}

// SyncOption configures a Synchronizer.
type SyncOption func(*Synchronizer)

// WithNotifier sets the hook fired for messages the user is not looking at.
func WithNotifier(n Notifier) SyncOption {
	return func(s *Synchronizer) { s.notifier = n }
}

// WithSession shares an existing session.
func WithSession(sess *Session) SyncOption {
	return func(s *Synchronizer) { s.session = sess }
}

func WithSyncLogger(l *slog.Logger) SyncOption {
	return func(s *Synchronizer) { s.logger = l }
}

func WithSyncMetrics(m *Metrics) SyncOption {
	return func(s *Synchronizer) { s.metrics = m }
}

// WithPendingTimeout sets how long a send may stay unconfirmed.
func WithPendingTimeout(d time.Duration) SyncOption {
	return func(s *Synchronizer) { s.pendingTimeout = d }
}

// WithReplyOptions passes options through to the reply resolver.
func WithReplyOptions(opts ...ReplyOption) SyncOption {
	return func(s *Synchronizer) { s.replyOpts = append(s.replyOpts, opts...) }
}

// NewSynchronizer creates a synchronizer drawing into renderer. A nil
// renderer discards output.
func NewSynchronizer(client *Client, cache *Cache, renderer Renderer, opts ...SyncOption) *Synchronizer {
	if renderer == nil {
		renderer = NopRenderer{}
	}
	s := &Synchronizer{
		client:         client,
		cache:          cache,
		renderer:       renderer,
		notifier:       nopNotifier{},
		logger:         slog.Default(),
		pendingTimeout: DefaultPendingTimeout,
		shown:          newChannelLog(),
		pending:        make(map[string]*pendingSend),
		newest:         make(map[string]time.Time),
		fetching:       make(map[string]bool),
		atStart:        make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.session == nil {
		s.session = NewSession("")
	}
	ropts := append([]ReplyOption{withRenderLock(&s.mu), withReplyLogger(s.logger, s.metrics)}, s.replyOpts...)
	s.replies = NewReplyResolver(client, cache, renderer, s.session, ropts...)
	return s
}

// Session returns the session the synchronizer reads the selection from.
func (s *Synchronizer) Session() *Session { return s.session }

// Cache returns the underlying entity cache.
func (s *Synchronizer) Cache() *Cache { return s.cache }

// Replies returns the reply resolver.
func (s *Synchronizer) Replies() *ReplyResolver { return s.replies }

// ============================================================================
// Bootstrap
// ============================================================================

// Bootstrap fetches GET_INIT_DATA, retrying until it succeeds or ctx ends,
// and loads it into the cache. Call it again after every reconnect.
func (s *Synchronizer) Bootstrap(ctx context.Context) error {
	data, err := requestJSON[InitData](ctx, s.client, EventGetInitData, nil, nil)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	s.ApplyInit(data)
	return nil
}

// ApplyInit loads a bootstrap payload. Guilds missing from it are dropped.
func (s *Synchronizer) ApplyInit(data *InitData) {
	if data.UserID != "" {
		s.session.SetUser(data.UserID, data.Nickname)
	}

	keep := make(map[string]bool, len(data.Guilds))
	for _, g := range data.Guilds {
		if g.ID == "" {
			s.logger.Warn("skipping guild without id")
			continue
		}
		keep[g.ID] = true
		s.cache.PutGuild(g.Guild)

		channels := make([]Channel, 0, len(g.Channels))
		for _, ch := range g.Channels {
			if ch.ID == "" {
				continue
			}
			ch.GuildID = g.ID
			channels = append(channels, ch)
		}
		s.cache.SetChannels(g.ID, channels)
		s.cache.SetMemberIDs(g.ID, g.MemberIDs)
		s.cache.SetEmojis(g.ID, g.Emojis)
		for channelID, users := range g.VoiceMembers {
			s.cache.SetVoiceMembers(g.ID, channelID, users)
		}
	}
	for _, g := range s.cache.Guilds() {
		if !keep[g.ID] {
			s.cache.RemoveGuild(g.ID)
		}
	}

	s.cache.SetFriends(data.Friends)
	if len(data.DMUsers) > 0 {
		s.cache.UpdateMembers(DMGuildID, data.DMUsers)
	}
	for _, userID := range data.OnlineUsers {
		s.cache.SetPresence(userID, StatusOnline)
	}
	s.logger.Info("bootstrap applied", "user", data.UserID, "guilds", len(keep), "friends", len(data.Friends))
}

// ============================================================================
// View selection and history
// ============================================================================

// SelectChannel switches to a guild channel. A channel already in the cache
// is redrawn from it; otherwise its history is fetched.
func (s *Synchronizer) SelectChannel(ctx context.Context, guildID, channelID string) error {
	return s.Select(ctx, View{GuildID: guildID, ChannelID: channelID})
}

// SelectDM switches to the direct message channel with friendID.
func (s *Synchronizer) SelectDM(ctx context.Context, friendID, channelID string) error {
	return s.Select(ctx, View{ChannelID: channelID, IsDM: true, FriendID: friendID})
}

// Select switches the current view.
func (s *Synchronizer) Select(ctx context.Context, v View) error {
	if err := v.validate(); err != nil {
		return err
	}
	s.session.Select(v)
	s.replies.Reset()
	if !v.Empty() && s.cache.HasMessages(v.cacheGuild(), v.ChannelID) {
		s.redraw(ctx, v)
		return nil
	}

	s.mu.Lock()
	s.renderer.Clear()
	s.shown = newChannelLog()
	s.shownKey = ""
	s.mu.Unlock()
	if v.Empty() {
		return nil
	}
	return s.LoadHistory(ctx, v)
}

// FetchMessages loads the history of a channel in the background. The
// result lands through the renderer.
func (s *Synchronizer) FetchMessages(ctx context.Context, channelID string, isDM bool) {
	v := s.session.Current()
	if v.ChannelID != channelID || v.IsDM != isDM {
		v = View{ChannelID: channelID, IsDM: isDM}
		if !isDM {
			v.GuildID = s.session.Current().GuildID
		}
	}
	go func() {
		if err := s.LoadHistory(ctx, v); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("history fetch failed", "channel", channelID, "error", err)
		}
	}()
}

// LoadHistory fetches the latest page of a channel and applies it.
func (s *Synchronizer) LoadHistory(ctx context.Context, v View) error {
	event, params := historyRequest(v, false)
	resp, err := requestJSON[HistoryResponse](ctx, s.client, event, params, nil)
	if err != nil {
		return err
	}
	s.ApplyHistory(ctx, v, resp)
	return nil
}

// ApplyHistory replaces the channel's cached messages with a full history
// page and, when v is still the current view, redraws it.
func (s *Synchronizer) ApplyHistory(ctx context.Context, v View, resp *HistoryResponse) {
	guildID := v.cacheGuild()
	msgs := ownMessages(v, resp.Messages)
	if kept := s.cache.ReplaceHistory(guildID, v.ChannelID, msgs); len(kept) > 0 {
		s.logger.Debug("kept live messages newer than history", "channel", v.ChannelID, "count", len(kept))
	}
	if resp.OldestMessageDate != nil {
		s.cache.SetOldestKnown(guildID, v.ChannelID, *resp.OldestMessageDate)
	}

	// Optimistic sends survive a wholesale replace until they are confirmed.
	s.mu.Lock()
	for _, p := range s.pending {
		if p.view.Key() == v.Key() {
			s.cache.AddMessage(p.msg)
		}
	}
	s.mu.Unlock()

	s.setAtStart(v.Key(), s.reachedStart(v, msgs))
	if newest, ok := s.cache.NewestMessage(guildID, v.ChannelID); ok {
		s.mu.Lock()
		s.newest[v.Key()] = newest.CreatedAt
		s.mu.Unlock()
	}

	if s.session.Current().Key() != v.Key() {
		s.logger.Debug("caching history for inactive channel", "channel", v.ChannelID)
		return
	}
	s.redraw(ctx, v)
}

// redraw clears the view and draws every cached message of v.
func (s *Synchronizer) redraw(ctx context.Context, v View) {
	msgs := s.cache.Messages(v.cacheGuild(), v.ChannelID)

	s.mu.Lock()
	if s.session.Current().Key() != v.Key() {
		s.mu.Unlock()
		return
	}
	s.renderer.Clear()
	s.shown = newChannelLog()
	s.shownKey = v.Key()
	for _, m := range msgs {
		s.display(m)
	}
	if s.AtStart(v) {
		s.renderer.ShowStartOfChannel()
	}
	missing := s.replies.link(v, msgs)
	s.mu.Unlock()

	if len(missing) > 0 {
		s.replies.fetch(ctx, v, missing)
	}
}

// reachedStart reports whether msgs include the channel's first message.
func (s *Synchronizer) reachedStart(v View, msgs []Message) bool {
	if len(msgs) == 0 {
		return true
	}
	oldest, ok := s.cache.OldestKnown(v.cacheGuild(), v.ChannelID)
	if !ok {
		return false
	}
	first := msgs[0]
	for _, m := range msgs[1:] {
		if m.Before(first) {
			first = m
		}
	}
	return first.CreatedAt.Equal(oldest)
}

// display draws m after its displayed predecessor. Caller holds s.mu.
func (s *Synchronizer) display(m Message) {
	if s.shown.index(m.ID) >= 0 {
		return
	}
	s.shown.put(m)
	s.renderer.DisplayMessage(m, s.predecessor(m.ID))
}

func (s *Synchronizer) predecessor(id string) string {
	i := s.shown.index(id)
	if i <= 0 {
		return ""
	}
	return s.shown.msgs[i-1].ID
}

// Displayed reports whether a message is drawn in the current view.
func (s *Synchronizer) Displayed(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shown.index(messageID) >= 0
}

// LastMessageAt returns the timestamp of the newest known message of a
// channel, used to detect gaps after a reconnect.
func (s *Synchronizer) LastMessageAt(v View) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.newest[v.Key()]
	return t, ok
}

func historyRequest(v View, older bool) (EventName, Params) {
	params := Params{"channelId": v.ChannelID}
	if v.IsDM {
		if v.FriendID != "" {
			params["friendId"] = v.FriendID
		}
		if older {
			return EventScrollHistoryDM, params
		}
		return EventGetHistoryDM, params
	}
	params["guildId"] = v.GuildID
	if older {
		return EventScrollHistoryGuild, params
	}
	return EventGetHistoryGuild, params
}

// ownMessages stamps messages with the channel they were fetched for.
func ownMessages(v View, msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID == "" {
			continue
		}
		m.ChannelID = v.ChannelID
		if v.IsDM {
			m.GuildID = ""
		} else {
			m.GuildID = v.GuildID
		}
		out = append(out, m)
	}
	return out
}

// ============================================================================
// Backward pagination
// ============================================================================

// RequestOlder starts loading the page before the oldest displayed message
// in the background. It reports false when a fetch is already in flight or
// the channel start has been reached.
func (s *Synchronizer) RequestOlder(ctx context.Context) bool {
	v := s.session.Current()
	if v.Empty() || !s.beginPage(v.Key()) {
		s.metrics.pagination("skipped")
		return false
	}
	go func() {
		defer s.endPage(v.Key())
		if err := s.loadOlder(ctx, v); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("loading older messages failed", "channel", v.ChannelID, "error", err)
		}
	}()
	return true
}

// LoadOlder is the blocking form of RequestOlder.
func (s *Synchronizer) LoadOlder(ctx context.Context) error {
	v := s.session.Current()
	if v.Empty() || !s.beginPage(v.Key()) {
		s.metrics.pagination("skipped")
		return nil
	}
	defer s.endPage(v.Key())
	return s.loadOlder(ctx, v)
}

// Fetching reports whether a backward fetch is in flight for the current
// view.
func (s *Synchronizer) Fetching() bool {
	key := s.session.Current().Key()
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	return s.fetching[key]
}

// AtStart reports whether the first message of v's channel is loaded.
func (s *Synchronizer) AtStart(v View) bool {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	return s.atStart[v.Key()]
}

func (s *Synchronizer) beginPage(key string) bool {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	if s.fetching[key] || s.atStart[key] {
		return false
	}
	s.fetching[key] = true
	return true
}

func (s *Synchronizer) endPage(key string) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	delete(s.fetching, key)
}

func (s *Synchronizer) setAtStart(key string, reached bool) {
	s.pageMu.Lock()
	defer s.pageMu.Unlock()
	if reached {
		s.atStart[key] = true
	} else {
		delete(s.atStart, key)
	}
}

func (s *Synchronizer) loadOlder(ctx context.Context, v View) error {
	oldest, ok := s.cache.OldestMessage(v.cacheGuild(), v.ChannelID)
	if !ok {
		s.metrics.pagination("empty")
		return nil
	}
	resp, err := s.scrollPage(ctx, v, oldest.CreatedAt, oldest.ID)
	if err != nil {
		s.metrics.pagination("error")
		return err
	}
	s.metrics.pagination("ok")
	s.ApplyOlder(ctx, v, resp)
	return nil
}

func (s *Synchronizer) scrollPage(ctx context.Context, v View, before time.Time, messageID string) (*HistoryResponse, error) {
	event, params := historyRequest(v, true)
	params["date"] = before.UTC().Format(time.RFC3339Nano)
	if messageID != "" {
		params["messageId"] = messageID
	}
	return requestJSON[HistoryResponse](ctx, s.client, event, params, nil)
}

// ApplyOlder adds an older page to the cache and, when v is still current,
// draws it above the displayed messages.
func (s *Synchronizer) ApplyOlder(ctx context.Context, v View, resp *HistoryResponse) {
	guildID := v.cacheGuild()
	msgs := ownMessages(v, resp.Messages)
	s.cache.AddMessages(guildID, v.ChannelID, msgs)
	if resp.OldestMessageDate != nil {
		s.cache.SetOldestKnown(guildID, v.ChannelID, *resp.OldestMessageDate)
	}
	reached := s.reachedStart(v, msgs)
	if reached {
		s.setAtStart(v.Key(), true)
	}

	s.mu.Lock()
	if s.shownKey != v.Key() || s.session.Current().Key() != v.Key() {
		s.mu.Unlock()
		return
	}
	s.renderer.ClearStartOfChannel()
	for _, m := range msgs {
		s.display(m)
	}
	if reached {
		s.renderer.ShowStartOfChannel()
	}
	missing := s.replies.link(v, msgs)
	s.mu.Unlock()

	if len(missing) > 0 {
		s.replies.fetch(ctx, v, missing)
	}
}

// ============================================================================
// Live pushes
// ============================================================================

// HandleMessageCreated applies a pushed message. It is always cached; it is
// drawn only when it belongs to the current view.
func (s *Synchronizer) HandleMessageCreated(ctx context.Context, e MessageCreated) {
	m := e.Message
	m.ChannelID = e.ChannelID
	m.GuildID = e.GuildID
	v := View{GuildID: e.GuildID, ChannelID: e.ChannelID, IsDM: e.IsDM}

	if m.TemporaryID != "" && s.reconcile(m) {
		return
	}
	fresh := s.cache.AddMessage(m)

	s.mu.Lock()
	if m.CreatedAt.After(s.newest[v.Key()]) {
		s.newest[v.Key()] = m.CreatedAt
	}
	var missing []string
	cur := s.session.Current()
	if cur.Key() == v.Key() && s.shownKey == v.Key() {
		s.display(m)
		missing = s.replies.link(cur, []Message{m})
	}
	s.mu.Unlock()

	if len(missing) > 0 {
		go s.replies.fetch(ctx, cur, missing)
	}

	if fresh && m.AuthorID != s.session.UserID() && !s.session.IsActivelyViewing(e.GuildID, e.ChannelID, e.IsDM) {
		s.notifier.Notify(m)
	}
}

// HandleMessageEdited applies an edit to a cached message.
func (s *Synchronizer) HandleMessageEdited(e MessageEdited) {
	v := View{GuildID: e.GuildID, ChannelID: e.ChannelID, IsDM: e.IsDM}
	m, ok := s.cache.EditMessage(v.cacheGuild(), e.ChannelID, e.MessageID, e.Content, e.LastEdited)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shownKey == v.Key() && s.shown.index(m.ID) >= 0 {
		s.shown.put(m)
		s.renderer.UpdateMessage(m)
	}
}

// HandleMessageDeleted removes a message. Removing the newest message moves
// the channel's newest-message marker back.
func (s *Synchronizer) HandleMessageDeleted(e MessageDeleted) {
	v := View{GuildID: e.GuildID, ChannelID: e.ChannelID, IsDM: e.IsDM}
	removed, ok := s.cache.RemoveMessage(v.cacheGuild(), e.ChannelID, e.MessageID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shownKey == v.Key() {
		if _, drawn := s.shown.remove(e.MessageID); drawn {
			s.renderer.RemoveMessage(e.MessageID)
		}
	}
	if !ok {
		return
	}
	if last, tracked := s.newest[v.Key()]; tracked && !removed.CreatedAt.Before(last) {
		if m, has := s.cache.NewestMessage(v.cacheGuild(), e.ChannelID); has {
			s.newest[v.Key()] = m.CreatedAt
		} else {
			delete(s.newest, v.Key())
		}
	}
}

// ============================================================================
// Sending
// ============================================================================

// SendMessage posts content to the current view. The message is cached and
// drawn at once under a temporary id and re-keyed when the server confirms
// it. Sends are delivered one at a time in submission order.
func (s *Synchronizer) SendMessage(ctx context.Context, content, replyToID string) (Message, error) {
	v := s.session.Current()
	if v.Empty() {
		return Message{}, fmt.Errorf("%w: no channel selected", ErrMissingParam)
	}
	if err := v.validate(); err != nil {
		return Message{}, err
	}

	tmp := uuid.NewString()
	m := Message{
		ID:          tmp,
		TemporaryID: tmp,
		ChannelID:   v.ChannelID,
		AuthorID:    s.session.UserID(),
		Content:     content,
		CreatedAt:   time.Now().UTC(),
		ReplyToID:   replyToID,
		Pending:     true,
	}
	if !v.IsDM {
		m.GuildID = v.GuildID
	}
	s.cache.AddMessage(m)

	s.mu.Lock()
	s.pending[tmp] = &pendingSend{msg: m, view: v, sentAt: m.CreatedAt}
	s.metrics.setPending(len(s.pending))
	if s.shownKey == v.Key() {
		s.display(m)
	}
	s.mu.Unlock()
	s.metrics.send("pending")

	return s.deliver(ctx, tmp, v)
}

// RetrySend re-submits an unconfirmed send. Sends are never retried
// without an explicit call.
func (s *Synchronizer) RetrySend(ctx context.Context, tempID string) (Message, error) {
	s.mu.Lock()
	p, ok := s.pending[tempID]
	if !ok {
		s.mu.Unlock()
		return Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, tempID)
	}
	p.failed = false
	p.sentAt = time.Now().UTC()
	p.msg.Failed = false
	p.msg.Pending = true
	s.mu.Unlock()

	s.cache.SetMessageFailed(p.view.cacheGuild(), p.view.ChannelID, tempID, false)
	s.metrics.send("retried")
	return s.deliver(ctx, tempID, p.view)
}

func (s *Synchronizer) deliver(ctx context.Context, tmp string, v View) (Message, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	p, ok := s.pending[tmp]
	s.mu.Unlock()
	if !ok {
		// Confirmed by a push while queued.
		return s.confirmedByTemp(v, tmp), nil
	}

	event := EventSendMessageGuild
	params := Params{"guildId": p.view.GuildID, "channelId": p.view.ChannelID}
	if p.view.IsDM {
		event = EventSendMessageDM
		delete(params, "guildId")
	}
	body := SendMessageRequest{Content: p.msg.Content, ReplyToID: p.msg.ReplyToID, TemporaryID: tmp}

	data, err := s.client.Request(ctx, event, params, body)
	if err != nil {
		s.markFailed(tmp)
		return p.msg, err
	}
	confirmed, err := decodeSent(data)
	if err != nil {
		s.logger.Warn("unreadable send confirmation", "temporaryId", tmp, "error", err)
		return p.msg, nil
	}
	if confirmed == nil || confirmed.ID == "" {
		return p.msg, nil
	}
	confirmed.TemporaryID = tmp
	s.reconcile(*confirmed)
	return s.confirmedByTemp(v, tmp), nil
}

func (s *Synchronizer) confirmedByTemp(v View, tmp string) Message {
	for _, m := range s.cache.Messages(v.cacheGuild(), v.ChannelID) {
		if m.TemporaryID == tmp {
			return m
		}
	}
	return Message{ID: tmp, TemporaryID: tmp, ChannelID: v.ChannelID}
}

// decodeSent accepts either {"message": {...}} or a bare message.
func decodeSent(data json.RawMessage) (*Message, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var wrapped struct {
		Message *Message `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if wrapped.Message != nil {
		return wrapped.Message, nil
	}
	return decodeJSON[Message](data)
}

// reconcile swaps a pending send for its confirmed message. Only the first
// confirmation for a temporary id has any effect.
func (s *Synchronizer) reconcile(confirmed Message) bool {
	tmp := confirmed.TemporaryID

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[tmp]
	if !ok {
		return false
	}
	delete(s.pending, tmp)
	s.metrics.setPending(len(s.pending))

	confirmed.ChannelID = p.view.ChannelID
	if p.view.IsDM {
		confirmed.GuildID = ""
	} else {
		confirmed.GuildID = p.view.GuildID
	}
	if confirmed.AuthorID == "" {
		confirmed.AuthorID = p.msg.AuthorID
	}
	confirmed.Pending = false
	confirmed.Failed = false
	s.cache.RekeyMessage(p.view.cacheGuild(), p.view.ChannelID, tmp, confirmed)

	key := p.view.Key()
	if confirmed.CreatedAt.After(s.newest[key]) {
		s.newest[key] = confirmed.CreatedAt
	}
	if s.shownKey == key {
		before := s.predecessor(tmp)
		_, drawn := s.shown.remove(tmp)
		if s.shown.index(confirmed.ID) >= 0 {
			// Already drawn under its real id.
			if drawn {
				s.renderer.RemoveMessage(tmp)
			}
		} else {
			s.shown.put(confirmed)
			after := s.predecessor(confirmed.ID)
			switch {
			case drawn && after == before:
				s.renderer.RekeyMessage(tmp, confirmed)
			case drawn:
				s.renderer.RemoveMessage(tmp)
				s.renderer.DisplayMessage(confirmed, after)
			default:
				s.renderer.DisplayMessage(confirmed, after)
			}
		}
	}
	s.metrics.send("confirmed")
	s.logger.Debug("send confirmed", "temporaryId", tmp, "messageId", confirmed.ID)
	return true
}

// Pending returns the temporary ids of unconfirmed sends.
func (s *Synchronizer) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.pending))
	for id := range s.pending {
		ids = append(ids, id)
	}
	return ids
}

// CheckPending marks sends older than the pending timeout as failed and
// returns their temporary ids. Failed sends stay until RetrySend.
func (s *Synchronizer) CheckPending(now time.Time) []string {
	s.mu.Lock()
	var expired []string
	for id, p := range s.pending {
		if !p.failed && now.Sub(p.sentAt) >= s.pendingTimeout {
			expired = append(expired, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.markFailed(id)
	}
	return expired
}

func (s *Synchronizer) markFailed(tmp string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[tmp]
	if !ok || p.failed {
		return
	}
	p.failed = true
	p.msg.Failed = true
	p.msg.Pending = false
	s.cache.SetMessageFailed(p.view.cacheGuild(), p.view.ChannelID, tmp, true)
	if s.shownKey == p.view.Key() && s.shown.index(tmp) >= 0 {
		s.renderer.MarkFailed(tmp)
	}
	s.metrics.send("failed")
}

// ============================================================================
// Navigation
// ============================================================================

// GoToMessage focuses a message of the current view, loading the history
// page that ends at it when it is not drawn yet. It returns once the
// message is focused or known to be unreachable.
func (s *Synchronizer) GoToMessage(ctx context.Context, messageID string) error {
	v := s.session.Current()
	if v.Empty() {
		return fmt.Errorf("%w: no channel selected", ErrMissingParam)
	}
	if s.focus(messageID) {
		return nil
	}

	var at time.Time
	if m, ok := s.cache.Message(v.cacheGuild(), v.ChannelID, messageID); ok {
		at = m.CreatedAt
	} else {
		if v.IsDM {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
		res, err, _ := s.sf.Do("date:"+v.Key()+":"+messageID, func() (any, error) {
			return requestJSON[MessageDateResponse](ctx, s.client, EventGetMessageDate,
				Params{"guildId": v.GuildID, "channelId": v.ChannelID, "messageId": messageID}, nil)
		})
		if err != nil {
			return err
		}
		at = res.(*MessageDateResponse).Date
		if at.IsZero() {
			return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
		}
	}

	resp, err := s.scrollPage(ctx, v, at, messageID)
	if err != nil {
		return err
	}
	s.ApplyOlder(ctx, v, resp)
	if s.focus(messageID) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
}

func (s *Synchronizer) focus(messageID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown.index(messageID) < 0 {
		return false
	}
	s.renderer.FocusMessage(messageID)
	return true
}
