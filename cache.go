package chatsync

import (
	"sort"
	"sync"
	"time"
)

// ============================================================================
// Stores
// ============================================================================

type channelLog struct {
	msgs   []Message // ascending by (CreatedAt, ID)
	ids    map[string]struct{}
	oldest *time.Time // absolute oldest message date reported by the server
}

func newChannelLog() *channelLog {
	return &channelLog{ids: make(map[string]struct{})}
}

func (l *channelLog) index(id string) int {
	if _, ok := l.ids[id]; !ok {
		return -1
	}
	for i := range l.msgs {
		if l.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func (l *channelLog) remove(id string) (Message, bool) {
	i := l.index(id)
	if i < 0 {
		return Message{}, false
	}
	m := l.msgs[i]
	l.msgs = append(l.msgs[:i], l.msgs[i+1:]...)
	delete(l.ids, id)
	return m, true
}

// put inserts m at its ordered position, replacing an entry with the same id.
func (l *channelLog) put(m Message) bool {
	_, existed := l.remove(m.ID)
	i := sort.Search(len(l.msgs), func(i int) bool { return m.Before(l.msgs[i]) })
	l.msgs = append(l.msgs, Message{})
	copy(l.msgs[i+1:], l.msgs[i:])
	l.msgs[i] = m
	l.ids[m.ID] = struct{}{}
	return !existed
}

type guildStore struct {
	guild     Guild
	channels  map[string]*Channel
	order     []string // channel display order
	memberIDs map[string]struct{}
	members   map[string]Member
	logs      map[string]*channelLog
	emojis    map[string]Emoji
	pinned    map[string]map[string]Message
	invite    string
}

func newGuildStore(id string) *guildStore {
	return &guildStore{
		guild:     Guild{ID: id},
		channels:  make(map[string]*Channel),
		memberIDs: make(map[string]struct{}),
		members:   make(map[string]Member),
		logs:      make(map[string]*channelLog),
		emojis:    make(map[string]Emoji),
		pinned:    make(map[string]map[string]Message),
	}
}

func (g *guildStore) log(channelID string) *channelLog {
	l, ok := g.logs[channelID]
	if !ok {
		l = newChannelLog()
		g.logs[channelID] = l
	}
	return l
}

// ============================================================================
// Cache
// ============================================================================

// Cache is the goroutine-safe, memory-only entity cache. Guilds are created
// lazily on first reference; every mutation is idempotent.
type Cache struct {
	mu      sync.RWMutex
	guilds  map[string]*guildStore
	gorder  []string
	friends map[string]Friend
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		guilds:  make(map[string]*guildStore),
		friends: make(map[string]Friend),
	}
}

func guildKey(guildID string) string {
	if guildID == "" {
		return DMGuildID
	}
	return guildID
}

// store returns the guild store, creating it. Caller holds the write lock.
func (c *Cache) store(guildID string) *guildStore {
	guildID = guildKey(guildID)
	g, ok := c.guilds[guildID]
	if !ok {
		g = newGuildStore(guildID)
		c.guilds[guildID] = g
		if guildID != DMGuildID {
			c.gorder = append(c.gorder, guildID)
		}
	}
	return g
}

// peek returns the guild store without creating it. Caller holds a lock.
func (c *Cache) peek(guildID string) *guildStore {
	return c.guilds[guildKey(guildID)]
}

// ── Guilds ───────────────────────────────────────────────

// Guild returns the guild record, creating an empty one if the id has never
// been seen.
func (c *Cache) Guild(id string) Guild {
	if id == "" {
		return Guild{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(id).guild
}

// LookupGuild returns the guild without creating it.
func (c *Cache) LookupGuild(id string) (Guild, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if g := c.peek(id); g != nil {
		return g.guild, true
	}
	return Guild{}, false
}

// HasGuild reports whether the guild is cached.
func (c *Cache) HasGuild(id string) bool {
	_, ok := c.LookupGuild(id)
	return ok
}

// Guilds returns all cached guilds in the order they were first seen.
func (c *Cache) Guilds() []Guild {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Guild, 0, len(c.gorder))
	for _, id := range c.gorder {
		out = append(out, c.guilds[id].guild)
	}
	return out
}

// PutGuild upserts the guild's descriptive fields.
func (c *Cache) PutGuild(g Guild) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(g.ID).guild = g
}

// RemoveGuild drops the guild and everything it owns.
func (c *Cache) RemoveGuild(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	id = guildKey(id)
	if _, ok := c.guilds[id]; !ok {
		return false
	}
	delete(c.guilds, id)
	for i, gid := range c.gorder {
		if gid == id {
			c.gorder = append(c.gorder[:i], c.gorder[i+1:]...)
			break
		}
	}
	return true
}

// SetGuildName renames a guild.
func (c *Cache) SetGuildName(id, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(id).guild.Name = name
}

// SetGuildVersion records a new guild image version.
func (c *Cache) SetGuildVersion(id, version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(id).guild.Version = version
}

// SetGuildOwner sets the owner of the guild.
func (c *Cache) SetGuildOwner(id, ownerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(id).guild.OwnerID = ownerID
}

// SetRootChannel sets the channel a guild opens on.
func (c *Cache) SetRootChannel(id, channelID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(id).guild.RootChannelID = channelID
}

// ── Channels ─────────────────────────────────────────────

// Channels returns the guild's channels in display order.
func (c *Cache) Channels(guildID string) []Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return []Channel{}
	}
	out := make([]Channel, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, copyChannel(*g.channels[id]))
	}
	return out
}

// Channel returns a channel by id.
func (c *Cache) Channel(guildID, channelID string) (Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return Channel{}, false
	}
	ch, ok := g.channels[channelID]
	if !ok {
		return Channel{}, false
	}
	return copyChannel(*ch), true
}

// SetChannels replaces the guild's channel list.
func (c *Cache) SetChannels(guildID string, channels []Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	g.channels = make(map[string]*Channel, len(channels))
	g.order = g.order[:0]
	for _, ch := range channels {
		putChannel(g, ch)
	}
}

// AddChannel upserts a channel; an existing id keeps its position and takes
// the latest fields.
func (c *Cache) AddChannel(guildID string, ch Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	putChannel(c.store(guildID), ch)
}

func putChannel(g *guildStore, ch Channel) {
	ch.GuildID = g.guild.ID
	if ch.Kind == "" {
		ch.Kind = ChannelText
	}
	if _, ok := g.channels[ch.ID]; !ok {
		g.order = append(g.order, ch.ID)
	}
	ch = copyChannel(ch)
	g.channels[ch.ID] = &ch
}

// EditChannel renames a channel. Unknown channels are ignored.
func (c *Cache) EditChannel(guildID, channelID, name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	ch, ok := g.channels[channelID]
	if !ok {
		return false
	}
	ch.Name = name
	return true
}

// RemoveChannel drops a channel along with its cached messages.
func (c *Cache) RemoveChannel(guildID, channelID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	if _, ok := g.channels[channelID]; !ok {
		return false
	}
	delete(g.channels, channelID)
	delete(g.logs, channelID)
	delete(g.pinned, channelID)
	for i, id := range g.order {
		if id == channelID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// MarkChannelRead records the last read time of a channel.
func (c *Cache) MarkChannelRead(guildID, channelID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return
	}
	if ch, ok := g.channels[channelID]; ok {
		ch.LastReadAt = &at
	}
}

func copyMessage(m Message) Message {
	if m.Attachments != nil {
		m.Attachments = append([]Attachment(nil), m.Attachments...)
	}
	return m
}

func copyMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = copyMessage(m)
	}
	return out
}

func copyChannel(ch Channel) Channel {
	if ch.VoiceMembers != nil {
		ch.VoiceMembers = append([]string(nil), ch.VoiceMembers...)
	}
	return ch
}

// ── Voice ────────────────────────────────────────────────

// SetVoiceMembers replaces the user list of a voice channel.
func (c *Cache) SetVoiceMembers(guildID, channelID string, userIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	ch, ok := g.channels[channelID]
	if !ok {
		putChannel(g, Channel{ID: channelID, Kind: ChannelVoice})
		ch = g.channels[channelID]
	}
	ch.VoiceMembers = dedupe(userIDs)
}

// AddVoiceMember adds a user to a voice channel.
func (c *Cache) AddVoiceMember(guildID, channelID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	ch, ok := g.channels[channelID]
	if !ok {
		putChannel(g, Channel{ID: channelID, Kind: ChannelVoice})
		ch = g.channels[channelID]
	}
	for _, id := range ch.VoiceMembers {
		if id == userID {
			return
		}
	}
	ch.VoiceMembers = append(ch.VoiceMembers, userID)
}

// RemoveVoiceMember removes a user from every voice channel of the guild.
func (c *Cache) RemoveVoiceMember(guildID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return
	}
	for _, ch := range g.channels {
		for i, id := range ch.VoiceMembers {
			if id == userID {
				ch.VoiceMembers = append(ch.VoiceMembers[:i], ch.VoiceMembers[i+1:]...)
				break
			}
		}
	}
}

// VoiceMembers returns the users in a voice channel.
func (c *Cache) VoiceMembers(guildID, channelID string) []string {
	ch, ok := c.Channel(guildID, channelID)
	if !ok || ch.VoiceMembers == nil {
		return []string{}
	}
	return ch.VoiceMembers
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// ── Members ──────────────────────────────────────────────

// Members returns the guild's member records sorted by user id.
func (c *Cache) Members(guildID string) []Member {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return []Member{}
	}
	out := make([]Member, 0, len(g.memberIDs))
	for id := range g.memberIDs {
		m, ok := g.members[id]
		if !ok {
			m = Member{UserID: id, Status: StatusOffline}
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// HasMember reports whether userID belongs to the guild.
func (c *Cache) HasMember(guildID, userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	_, ok := g.memberIDs[userID]
	return ok
}

// SetMemberIDs replaces the membership id set, dropping records of users no
// longer present.
func (c *Cache) SetMemberIDs(guildID string, userIDs []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	g.memberIDs = make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		g.memberIDs[id] = struct{}{}
	}
	for id := range g.members {
		if _, ok := g.memberIDs[id]; !ok {
			delete(g.members, id)
		}
	}
}

// SetMembers replaces the member list wholesale.
func (c *Cache) SetMembers(guildID string, members []Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	g.memberIDs = make(map[string]struct{}, len(members))
	g.members = make(map[string]Member, len(members))
	for _, m := range members {
		g.memberIDs[m.UserID] = struct{}{}
		g.members[m.UserID] = m
	}
}

// UpdateMembers upserts the given records and keeps every other member.
func (c *Cache) UpdateMembers(guildID string, members []Member) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	for _, m := range members {
		g.memberIDs[m.UserID] = struct{}{}
		g.members[m.UserID] = m
	}
}

// AddMember upserts one member.
func (c *Cache) AddMember(guildID string, m Member) {
	c.UpdateMembers(guildID, []Member{m})
}

// RemoveMember removes a member from both the id set and the records.
func (c *Cache) RemoveMember(guildID, userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	if _, ok := g.memberIDs[userID]; !ok {
		return false
	}
	delete(g.memberIDs, userID)
	delete(g.members, userID)
	return true
}

// SetPresence updates a user's status in every guild they belong to and in
// the friend list.
func (c *Cache) SetPresence(userID string, status PresenceStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.guilds {
		if m, ok := g.members[userID]; ok {
			m.Status = status
			g.members[userID] = m
		} else if _, ok := g.memberIDs[userID]; ok {
			g.members[userID] = Member{UserID: userID, Status: status}
		}
	}
	if f, ok := c.friends[userID]; ok {
		f.Status = status
		c.friends[userID] = f
	}
}

// SetNickname updates a user's nickname wherever a record exists.
func (c *Cache) SetNickname(userID, nick string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, g := range c.guilds {
		if m, ok := g.members[userID]; ok {
			m.Nickname = nick
			g.members[userID] = m
		}
	}
	if f, ok := c.friends[userID]; ok {
		f.Nickname = nick
		c.friends[userID] = f
	}
}

// ── Messages ─────────────────────────────────────────────

// Messages returns a channel's cached messages in ascending order.
func (c *Cache) Messages(guildID, channelID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return []Message{}
	}
	l, ok := g.logs[channelID]
	if !ok {
		return []Message{}
	}
	return copyMessages(l.msgs)
}

// HasMessages reports whether any messages are cached for the channel.
func (c *Cache) HasMessages(guildID, channelID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	l, ok := g.logs[channelID]
	return ok && len(l.msgs) > 0
}

// Message returns a cached message by id.
func (c *Cache) Message(guildID, channelID, messageID string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return Message{}, false
	}
	l, ok := g.logs[channelID]
	if !ok {
		return Message{}, false
	}
	if i := l.index(messageID); i >= 0 {
		return copyMessage(l.msgs[i]), true
	}
	return Message{}, false
}

// FindMessage searches every cached channel for a message id.
func (c *Cache) FindMessage(messageID string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, g := range c.guilds {
		for _, l := range g.logs {
			if i := l.index(messageID); i >= 0 {
				return copyMessage(l.msgs[i]), true
			}
		}
	}
	return Message{}, false
}

// AddMessage upserts a message at its ordered position. It reports whether
// the id was new.
func (c *Cache) AddMessage(m Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store(m.GuildID).log(m.ChannelID).put(m)
}

// AddMessages upserts a batch into one channel.
func (c *Cache) AddMessages(guildID, channelID string, msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.store(guildID).log(channelID)
	for _, m := range msgs {
		l.put(m)
	}
}

// ReplaceHistory replaces a channel's messages with a full history page.
// Cached messages newer than the page's newest message arrived while the
// page was in flight; they are kept and returned. An empty page keeps every
// cached message.
func (c *Cache) ReplaceHistory(guildID, channelID string, page []Message) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	old := g.logs[channelID]
	l := newChannelLog()
	for _, m := range page {
		l.put(m)
	}

	var kept []Message
	if old != nil {
		l.oldest = old.oldest
		var newest *Message
		if len(l.msgs) > 0 {
			newest = &l.msgs[len(l.msgs)-1]
		}
		for _, m := range old.msgs {
			if _, ok := l.ids[m.ID]; ok {
				continue
			}
			if newest == nil || newest.Before(m) {
				kept = append(kept, m)
			}
		}
		for _, m := range kept {
			l.put(m)
		}
	}
	g.logs[channelID] = l
	return copyMessages(kept)
}

// EditMessage replaces the content of a cached message.
func (c *Cache) EditMessage(guildID, channelID, messageID, content string, editedAt time.Time) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return Message{}, false
	}
	l, ok := g.logs[channelID]
	if !ok {
		return Message{}, false
	}
	i := l.index(messageID)
	if i < 0 {
		return Message{}, false
	}
	l.msgs[i].Content = content
	l.msgs[i].LastEdited = &editedAt
	return copyMessage(l.msgs[i]), true
}

// RemoveMessage deletes a message; unknown ids are a no-op.
func (c *Cache) RemoveMessage(guildID, channelID, messageID string) (Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return Message{}, false
	}
	l, ok := g.logs[channelID]
	if !ok {
		return Message{}, false
	}
	m, ok := l.remove(messageID)
	if ok {
		if pins, ok := g.pinned[channelID]; ok {
			delete(pins, messageID)
		}
	}
	return m, ok
}

// RekeyMessage replaces the optimistic entry stored under tempID with the
// confirmed message. It reports whether the temporary entry existed.
func (c *Cache) RekeyMessage(guildID, channelID, tempID string, confirmed Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	l := c.store(guildID).log(channelID)
	_, had := l.remove(tempID)
	confirmed.Pending = false
	confirmed.Failed = false
	l.put(confirmed)
	return had
}

// SetMessageFailed flags an optimistic message as undelivered.
func (c *Cache) SetMessageFailed(guildID, channelID, messageID string, failed bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	l, ok := g.logs[channelID]
	if !ok {
		return false
	}
	i := l.index(messageID)
	if i < 0 {
		return false
	}
	l.msgs[i].Failed = failed
	l.msgs[i].Pending = !failed
	return true
}

// NewestMessage returns the latest cached message of a channel.
func (c *Cache) NewestMessage(guildID, channelID string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if l := c.logFor(guildID, channelID); l != nil && len(l.msgs) > 0 {
		return copyMessage(l.msgs[len(l.msgs)-1]), true
	}
	return Message{}, false
}

// OldestMessage returns the earliest cached message of a channel.
func (c *Cache) OldestMessage(guildID, channelID string) (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if l := c.logFor(guildID, channelID); l != nil && len(l.msgs) > 0 {
		return copyMessage(l.msgs[0]), true
	}
	return Message{}, false
}

// SetOldestKnown records the absolute oldest message date of a channel.
func (c *Cache) SetOldestKnown(guildID, channelID string, at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(guildID).log(channelID).oldest = &at
}

// OldestKnown returns the absolute oldest message date of a channel.
func (c *Cache) OldestKnown(guildID, channelID string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if l := c.logFor(guildID, channelID); l != nil && l.oldest != nil {
		return *l.oldest, true
	}
	return time.Time{}, false
}

func (c *Cache) logFor(guildID, channelID string) *channelLog {
	g := c.peek(guildID)
	if g == nil {
		return nil
	}
	return g.logs[channelID]
}

// ── Emojis ───────────────────────────────────────────────

// Emojis returns the guild's emojis sorted by name.
func (c *Cache) Emojis(guildID string) []Emoji {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return []Emoji{}
	}
	out := make([]Emoji, 0, len(g.emojis))
	for _, e := range g.emojis {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// SetEmojis replaces the guild's emoji set.
func (c *Cache) SetEmojis(guildID string, emojis []Emoji) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	g.emojis = make(map[string]Emoji, len(emojis))
	for _, e := range emojis {
		g.emojis[e.ID] = e
	}
}

// AddEmojis upserts emojis.
func (c *Cache) AddEmojis(guildID string, emojis []Emoji) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	for _, e := range emojis {
		g.emojis[e.ID] = e
	}
}

// RemoveEmoji deletes an emoji.
func (c *Cache) RemoveEmoji(guildID, emojiID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	if _, ok := g.emojis[emojiID]; !ok {
		return false
	}
	delete(g.emojis, emojiID)
	return true
}

// ── Invites & pins ───────────────────────────────────────

// SetInvite stores the guild's current invite id.
func (c *Cache) SetInvite(guildID, inviteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store(guildID).invite = inviteID
}

// Invite returns the guild's invite id.
func (c *Cache) Invite(guildID string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil || g.invite == "" {
		return "", false
	}
	return g.invite, true
}

// SetPinned replaces the pinned messages of a channel.
func (c *Cache) SetPinned(guildID, channelID string, msgs []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	pins := make(map[string]Message, len(msgs))
	for _, m := range msgs {
		m.IsPinned = true
		pins[m.ID] = m
	}
	g.pinned[channelID] = pins
}

// AddPinned pins a message.
func (c *Cache) AddPinned(guildID, channelID string, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.store(guildID)
	pins, ok := g.pinned[channelID]
	if !ok {
		pins = make(map[string]Message)
		g.pinned[channelID] = pins
	}
	m.IsPinned = true
	pins[m.ID] = m
	if l, ok := g.logs[channelID]; ok {
		if i := l.index(m.ID); i >= 0 {
			l.msgs[i].IsPinned = true
		}
	}
}

// RemovePinned unpins a message.
func (c *Cache) RemovePinned(guildID, channelID, messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	g := c.peek(guildID)
	if g == nil {
		return false
	}
	if l, ok := g.logs[channelID]; ok {
		if i := l.index(messageID); i >= 0 {
			l.msgs[i].IsPinned = false
		}
	}
	pins, ok := g.pinned[channelID]
	if !ok {
		return false
	}
	if _, ok := pins[messageID]; !ok {
		return false
	}
	delete(pins, messageID)
	return true
}

// Pinned returns a channel's pinned messages in channel order.
func (c *Cache) Pinned(guildID, channelID string) []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g := c.peek(guildID)
	if g == nil {
		return []Message{}
	}
	out := make([]Message, 0, len(g.pinned[channelID]))
	for _, m := range g.pinned[channelID] {
		out = append(out, copyMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ── Friends ──────────────────────────────────────────────

// Friends returns the friend list sorted by user id.
func (c *Cache) Friends() []Friend {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Friend, 0, len(c.friends))
	for _, f := range c.friends {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Friend returns one friend entry.
func (c *Cache) Friend(userID string) (Friend, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.friends[userID]
	return f, ok
}

// SetFriends replaces the friend list.
func (c *Cache) SetFriends(friends []Friend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.friends = make(map[string]Friend, len(friends))
	for _, f := range friends {
		c.friends[f.UserID] = f
	}
}

// AddFriend upserts a friend entry.
func (c *Cache) AddFriend(f Friend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.friends[f.UserID] = f
}

// RemoveFriend deletes a friend entry.
func (c *Cache) RemoveFriend(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.friends[userID]; !ok {
		return false
	}
	delete(c.friends, userID)
	return true
}
