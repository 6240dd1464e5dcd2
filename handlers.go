package chatsync

import "context"

// handle adapts a typed handler to the bus. Events of another type are
// ignored.
func handle[T Event](fn func(T)) EventHandler {
	return func(ev Event) {
		if e, ok := ev.(T); ok {
			fn(e)
		}
	}
}

// Register subscribes the synchronizer to every push it understands. ctx
// bounds the reply lookups started from push handlers.
func (s *Synchronizer) Register(ctx context.Context, bus *Bus) {
	created := handle(func(e MessageCreated) { s.HandleMessageCreated(ctx, e) })
	bus.On(EventGuildMessage, created)
	bus.On(EventDMMessage, created)

	edited := handle(s.HandleMessageEdited)
	bus.On(EventEditMessageGuild, edited)
	bus.On(EventEditMessageDM, edited)

	deleted := handle(s.HandleMessageDeleted)
	bus.On(EventDeleteMessageGuild, deleted)
	bus.On(EventDeleteMessageDM, deleted)

	bus.On(EventUpdateChannel, handle(s.HandleChannelUpdated))
	bus.On(EventJoinVoiceChannel, handle(s.HandleVoiceJoined))
	bus.On(EventVoiceChannelLeave, handle(s.HandleVoiceLeft))
	bus.On(EventUserStatus, handle(s.HandleUserStatus))
	bus.On(EventUpdateUser, handle(s.HandleUserUpdated))
	bus.On(EventUpdateGuildName, handle(func(e GuildRenamed) { s.cache.SetGuildName(e.GuildID, e.GuildName) }))
	bus.On(EventUpdateGuildImage, handle(func(e GuildImageUpdated) { s.cache.SetGuildVersion(e.GuildID, e.GuildVersion) }))
	bus.On(EventGuildDeleted, handle(s.HandleGuildRemoved))
	bus.On(EventUpdateMembers, handle(s.HandleMembersUpdated))

	pinned := handle(s.HandleMessagePinned)
	bus.On(EventMessagePinned, pinned)
	bus.On(EventMessageUnpinned, pinned)
}

// HandleChannelUpdated creates, renames or removes a channel. Removing the
// channel in view clears the view.
func (s *Synchronizer) HandleChannelUpdated(e ChannelUpdated) {
	switch e.Type {
	case ChannelCreate:
		s.cache.AddChannel(e.GuildID, e.Channel())
	case ChannelEdit:
		s.cache.EditChannel(e.GuildID, e.ChannelID, e.ChannelName)
	case ChannelRemove:
		s.cache.RemoveChannel(e.GuildID, e.ChannelID)
		if s.session.Current().Matches(e.GuildID, e.ChannelID, false) {
			s.leaveView(View{GuildID: e.GuildID})
		}
	}
}

// HandleVoiceJoined replaces a voice channel's user list.
func (s *Synchronizer) HandleVoiceJoined(e VoiceJoined) {
	s.cache.SetVoiceMembers(e.GuildID, e.ChannelID, e.UsersList)
}

// HandleVoiceLeft removes a user from voice in a guild.
func (s *Synchronizer) HandleVoiceLeft(e VoiceLeft) {
	s.cache.RemoveVoiceMember(e.GuildID, e.UserID)
}

// HandleUserStatus records a presence change.
func (s *Synchronizer) HandleUserStatus(e UserStatusChanged) {
	s.cache.SetPresence(e.UserID, e.Presence())
}

// HandleUserUpdated records a nickname change.
func (s *Synchronizer) HandleUserUpdated(e UserUpdated) {
	if e.Nickname == "" {
		return
	}
	s.cache.SetNickname(e.UserID, e.Nickname)
	if e.UserID == s.session.UserID() {
		s.session.SetUser(e.UserID, e.Nickname)
	}
}

// HandleGuildRemoved drops a guild the user no longer belongs to.
func (s *Synchronizer) HandleGuildRemoved(e GuildRemoved) {
	s.cache.RemoveGuild(e.GuildID)
	if cur := s.session.Current(); !cur.IsDM && cur.GuildID == e.GuildID {
		s.leaveView(View{})
	}
}

// HandleMembersUpdated applies member additions and removals.
func (s *Synchronizer) HandleMembersUpdated(e MembersUpdated) {
	if len(e.Added) > 0 {
		s.cache.UpdateMembers(e.GuildID, e.Added)
	}
	for _, userID := range e.Removed {
		s.cache.RemoveMember(e.GuildID, userID)
	}
}

// HandleMessagePinned pins or unpins a message and redraws it when shown.
func (s *Synchronizer) HandleMessagePinned(e MessagePinned) {
	if e.Pinned {
		m := e.Message
		m.ID = e.MessageID
		m.ChannelID = e.ChannelID
		m.GuildID = e.GuildID
		if cached, ok := s.cache.Message(e.GuildID, e.ChannelID, e.MessageID); ok {
			m = cached
		}
		s.cache.AddPinned(e.GuildID, e.ChannelID, m)
	} else {
		s.cache.RemovePinned(e.GuildID, e.ChannelID, e.MessageID)
	}

	m, ok := s.cache.Message(e.GuildID, e.ChannelID, e.MessageID)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shown.index(m.ID) >= 0 {
		s.shown.put(m)
		s.renderer.UpdateMessage(m)
	}
}

// leaveView switches to v without loading anything.
func (s *Synchronizer) leaveView(v View) {
	s.session.Select(v)
	s.replies.Reset()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.renderer.Clear()
	s.shown = newChannelLog()
	s.shownKey = ""
}
