package chatsync

import (
	"fmt"
	"sync"
)

// View identifies the channel currently shown to the user.
type View struct {
	GuildID   string
	ChannelID string
	IsDM      bool
	FriendID  string
}

// Key returns the cache key of the view's channel.
func (v View) Key() string {
	if v.IsDM {
		return DMGuildID + "/" + v.ChannelID
	}
	return guildKey(v.GuildID) + "/" + v.ChannelID
}

// Empty reports whether no channel is selected.
func (v View) Empty() bool { return v.ChannelID == "" }

// validate rejects a guild view without a guild id, whose key would
// collide with the DM channel of the same id.
func (v View) validate() error {
	if !v.Empty() && !v.IsDM && v.GuildID == "" {
		return fmt.Errorf("%w: guildId for channel %s", ErrMissingParam, v.ChannelID)
	}
	return nil
}

// cacheGuild is the guild key the view's messages are cached under.
func (v View) cacheGuild() string {
	if v.IsDM {
		return DMGuildID
	}
	return v.GuildID
}

// Matches reports whether a message for (guildID, channelID) belongs to v.
func (v View) Matches(guildID, channelID string, isDM bool) bool {
	if v.ChannelID == "" || v.ChannelID != channelID || v.IsDM != isDM {
		return false
	}
	return isDM || v.GuildID == guildID
}

// Session holds the current user and selection. It replaces the global
// "current guild / current channel" state of a browser client and is
// passed explicitly to the components that need it.
type Session struct {
	mu      sync.RWMutex
	userID  string
	nick    string
	view    View
	focused bool
}

// NewSession creates a session for userID with the window focused.
func NewSession(userID string) *Session {
	return &Session{userID: userID, focused: true}
}

// UserID returns the signed-in user.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// Nickname returns the signed-in user's nickname.
func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nick
}

// SetUser records the signed-in user.
func (s *Session) SetUser(userID, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
	s.nick = nick
}

// Current returns the selected view.
func (s *Session) Current() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Select changes the selected view and returns the previous one.
func (s *Session) Select(v View) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.view
	s.view = v
	return prev
}

// SetFocused records whether the client window is visible and focused.
func (s *Session) SetFocused(focused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.focused = focused
}

// IsActivelyViewing reports whether the user is looking at this exact
// channel right now.
func (s *Session) IsActivelyViewing(guildID, channelID string, isDM bool) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.focused && s.view.Matches(guildID, channelID, isDM)
}
