package chatsync

import (
	"context"
	"fmt"
	"time"
)

// Response shapes of the actions below.
type (
	// JoinGuildResponse is the payload of JOIN_GUILD.
	JoinGuildResponse struct {
		Success         bool      `json:"success"`
		Guild           InitGuild `json:"guild"`
		JoinedChannelID string    `json:"joinedChannelId"`
	}

	// InvitesResponse is the payload of GET_INVITES.
	InvitesResponse struct {
		GuildID   string   `json:"guildId"`
		InviteID  string   `json:"inviteId,omitempty"`
		InviteIDs []string `json:"inviteIds,omitempty"`
	}

	// PinnedResponse is the payload of GET_PINNED_MESSAGES.
	PinnedResponse struct {
		GuildID   string    `json:"guildId"`
		ChannelID string    `json:"channelId"`
		Messages  []Message `json:"messages"`
	}

	// FriendsResponse is the payload of GET_FRIENDS.
	FriendsResponse struct {
		Friends []Friend `json:"friends"`
	}
)

// ============================================================================
// Messages
// ============================================================================

// EditMessage changes the content of one of the user's messages in the
// current view and applies the edit locally once the server accepts it.
func (s *Synchronizer) EditMessage(ctx context.Context, messageID, content string) error {
	v := s.session.Current()
	event, params := messageRequest(v, EventEditMessageGuild, EventEditMessageDM, messageID)
	if _, err := s.client.Request(ctx, event, params, map[string]string{"content": content}); err != nil {
		return err
	}
	s.HandleMessageEdited(MessageEdited{
		IsDM: v.IsDM, GuildID: v.GuildID, ChannelID: v.ChannelID,
		MessageID: messageID, Content: content, LastEdited: time.Now().UTC(),
	})
	return nil
}

// DeleteMessage deletes a message of the current view.
func (s *Synchronizer) DeleteMessage(ctx context.Context, messageID string) error {
	v := s.session.Current()
	event, params := messageRequest(v, EventDeleteMessageGuild, EventDeleteMessageDM, messageID)
	if _, err := s.client.Request(ctx, event, params, nil); err != nil {
		return err
	}
	s.HandleMessageDeleted(MessageDeleted{IsDM: v.IsDM, GuildID: v.GuildID, ChannelID: v.ChannelID, MessageID: messageID})
	return nil
}

func messageRequest(v View, guildEvent, dmEvent EventName, messageID string) (EventName, Params) {
	params := Params{"channelId": v.ChannelID, "messageId": messageID}
	if v.IsDM {
		return dmEvent, params
	}
	params["guildId"] = v.GuildID
	return guildEvent, params
}

// PinMessage pins a message of the current guild channel.
func (s *Synchronizer) PinMessage(ctx context.Context, messageID string) error {
	return s.setPinned(ctx, messageID, true)
}

// UnpinMessage unpins a message of the current guild channel.
func (s *Synchronizer) UnpinMessage(ctx context.Context, messageID string) error {
	return s.setPinned(ctx, messageID, false)
}

func (s *Synchronizer) setPinned(ctx context.Context, messageID string, pinned bool) error {
	v := s.session.Current()
	event := EventUnpinMessage
	if pinned {
		event = EventPinMessage
	}
	params := Params{"guildId": v.GuildID, "channelId": v.ChannelID, "messageId": messageID}
	if _, err := s.client.Request(ctx, event, params, nil); err != nil {
		return err
	}
	s.HandleMessagePinned(MessagePinned{Pinned: pinned, GuildID: v.GuildID, ChannelID: v.ChannelID, MessageID: messageID})
	return nil
}

// FetchPinned loads the pinned messages of a guild channel.
func (s *Synchronizer) FetchPinned(ctx context.Context, guildID, channelID string) ([]Message, error) {
	resp, err := requestJSON[PinnedResponse](ctx, s.client, EventGetPinnedMessages,
		Params{"guildId": guildID, "channelId": channelID}, nil)
	if err != nil {
		return nil, err
	}
	s.cache.SetPinned(guildID, channelID, resp.Messages)
	return s.cache.Pinned(guildID, channelID), nil
}

// MarkRead records that the user has read a channel up to now.
func (s *Synchronizer) MarkRead(ctx context.Context, guildID, channelID string) error {
	if _, err := s.client.Request(ctx, EventReadMessage, Params{"guildId": guildID, "channelId": channelID}, nil); err != nil {
		return err
	}
	s.cache.MarkChannelRead(guildID, channelID, time.Now().UTC())
	return nil
}

// ============================================================================
// Guilds and channels
// ============================================================================

// CreateChannel creates a channel. The cache is updated by the response or,
// failing that, by the UPDATE_CHANNEL push.
func (s *Synchronizer) CreateChannel(ctx context.Context, guildID, name string, isText bool) (Channel, error) {
	body := map[string]any{"guildId": guildID, "channelName": name, "isTextChannel": isText}
	resp, err := requestJSON[ChannelUpdated](ctx, s.client, EventCreateChannel, Params{"guildId": guildID}, body)
	if err != nil {
		return Channel{}, err
	}
	if resp.ChannelID == "" {
		return Channel{}, nil
	}
	resp.GuildID = guildID
	if resp.ChannelName == "" {
		resp.ChannelName = name
	}
	resp.IsTextChannel = isText
	ch := resp.Channel()
	s.cache.AddChannel(guildID, ch)
	return ch, nil
}

// DeleteChannel deletes a channel.
func (s *Synchronizer) DeleteChannel(ctx context.Context, guildID, channelID string) error {
	if _, err := s.client.Request(ctx, EventDeleteChannel, Params{"guildId": guildID, "channelId": channelID}, nil); err != nil {
		return err
	}
	s.HandleChannelUpdated(ChannelUpdated{Type: ChannelRemove, GuildID: guildID, ChannelID: channelID})
	return nil
}

// JoinGuild joins the guild behind an invite and caches it.
func (s *Synchronizer) JoinGuild(ctx context.Context, inviteID string) (Guild, error) {
	resp, err := requestJSON[JoinGuildResponse](ctx, s.client, EventJoinGuild, Params{"inviteId": inviteID}, nil)
	if err != nil {
		return Guild{}, err
	}
	if !resp.Success || resp.Guild.ID == "" {
		return Guild{}, fmt.Errorf("join %s: %w", inviteID, ErrInviteRejected)
	}
	g := resp.Guild
	s.cache.PutGuild(g.Guild)
	for _, ch := range g.Channels {
		ch.GuildID = g.ID
		s.cache.AddChannel(g.ID, ch)
	}
	if len(g.MemberIDs) > 0 {
		s.cache.SetMemberIDs(g.ID, g.MemberIDs)
	}
	s.cache.AddMember(g.ID, Member{UserID: s.session.UserID(), Nickname: s.session.Nickname(), Status: StatusOnline})
	return s.cache.Guild(g.ID), nil
}

// LeaveGuild leaves a guild and drops it from the cache.
func (s *Synchronizer) LeaveGuild(ctx context.Context, guildID string) error {
	if _, err := s.client.Request(ctx, EventLeaveGuild, Params{"guildId": guildID}, nil); err != nil {
		return err
	}
	s.HandleGuildRemoved(GuildRemoved{GuildID: guildID})
	return nil
}

// DeleteGuild deletes a guild the user owns.
func (s *Synchronizer) DeleteGuild(ctx context.Context, guildID string) error {
	if _, err := s.client.Request(ctx, EventDeleteGuild, Params{"guildId": guildID}, nil); err != nil {
		return err
	}
	s.HandleGuildRemoved(GuildRemoved{GuildID: guildID})
	return nil
}

// RenameGuild changes a guild's name.
func (s *Synchronizer) RenameGuild(ctx context.Context, guildID, name string) error {
	if _, err := s.client.Request(ctx, EventChangeGuildName, Params{"guildId": guildID}, map[string]string{"guildName": name}); err != nil {
		return err
	}
	s.cache.SetGuildName(guildID, name)
	return nil
}

// FetchMembers loads the member list of a guild.
func (s *Synchronizer) FetchMembers(ctx context.Context, guildID string) ([]Member, error) {
	resp, err := requestJSON[MembersResponse](ctx, s.client, EventGetMembers, Params{"guildId": guildID}, nil)
	if err != nil {
		return nil, err
	}
	s.cache.SetMembers(guildID, resp.Members)
	return s.cache.Members(guildID), nil
}

// FetchInvite returns the invite id of a guild, asking the server when none
// is cached.
func (s *Synchronizer) FetchInvite(ctx context.Context, guildID, channelID string) (string, error) {
	if id, ok := s.cache.Invite(guildID); ok {
		return id, nil
	}
	resp, err := requestJSON[InvitesResponse](ctx, s.client, EventGetInvites, Params{"guildId": guildID, "channelId": channelID}, nil)
	if err != nil {
		return "", err
	}
	id := resp.InviteID
	if id == "" && len(resp.InviteIDs) > 0 {
		id = resp.InviteIDs[0]
	}
	if id != "" {
		s.cache.SetInvite(guildID, id)
	}
	return id, nil
}

// ============================================================================
// Voice
// ============================================================================

// JoinVoice joins a voice channel. The full user list arrives with the
// JOIN_VOICE_CHANNEL push.
func (s *Synchronizer) JoinVoice(ctx context.Context, guildID, channelID string) error {
	if _, err := s.client.Request(ctx, EventJoinVoiceChannel, Params{"guildId": guildID, "channelId": channelID}, nil); err != nil {
		return err
	}
	s.cache.AddVoiceMember(guildID, channelID, s.session.UserID())
	return nil
}

// LeaveVoice leaves voice in a guild.
func (s *Synchronizer) LeaveVoice(ctx context.Context, guildID, channelID string) error {
	if _, err := s.client.Request(ctx, EventLeaveVoiceChannel, Params{"guildId": guildID, "channelId": channelID}, nil); err != nil {
		return err
	}
	s.cache.RemoveVoiceMember(guildID, s.session.UserID())
	return nil
}

// ============================================================================
// Friends and profile
// ============================================================================

// FetchFriends reloads the friend list.
func (s *Synchronizer) FetchFriends(ctx context.Context) ([]Friend, error) {
	data, err := s.client.Request(ctx, EventGetFriends, nil, nil)
	if err != nil {
		return nil, err
	}
	// The server answers with either a bare list or {"friends": [...]}.
	if list, err := decodeJSON[[]Friend](data); err == nil {
		s.cache.SetFriends(*list)
	} else {
		resp, err := decodeJSON[FriendsResponse](data)
		if err != nil {
			return nil, err
		}
		s.cache.SetFriends(resp.Friends)
	}
	return s.cache.Friends(), nil
}

// AddFriend sends a friend request by nickname, or by user id when byID is
// set, then reloads the friend list.
func (s *Synchronizer) AddFriend(ctx context.Context, target string, byID bool) error {
	event, body := EventAddFriend, map[string]string{"friendName": target}
	if byID {
		event, body = EventAddFriendID, map[string]string{"friendId": target}
	}
	return s.friendAction(ctx, event, nil, body)
}

// AcceptFriend accepts a pending request.
func (s *Synchronizer) AcceptFriend(ctx context.Context, friendID string) error {
	return s.friendAction(ctx, EventAcceptFriend, Params{"friendId": friendID}, nil)
}

// DenyFriend declines a pending request.
func (s *Synchronizer) DenyFriend(ctx context.Context, friendID string) error {
	if err := s.friendAction(ctx, EventDenyFriend, Params{"friendId": friendID}, nil); err != nil {
		return err
	}
	s.cache.RemoveFriend(friendID)
	return nil
}

// RemoveFriend ends a friendship.
func (s *Synchronizer) RemoveFriend(ctx context.Context, friendID string) error {
	if err := s.friendAction(ctx, EventRemoveFriend, Params{"friendId": friendID}, nil); err != nil {
		return err
	}
	s.cache.RemoveFriend(friendID)
	return nil
}

func (s *Synchronizer) friendAction(ctx context.Context, event EventName, params Params, body any) error {
	if _, err := s.client.Request(ctx, event, params, body); err != nil {
		return err
	}
	if _, err := s.FetchFriends(ctx); err != nil {
		s.logger.Warn("friend list refresh failed", "after", event, "error", err)
	}
	return nil
}

// AddDM opens a direct message channel with a friend.
func (s *Synchronizer) AddDM(ctx context.Context, friendID string) error {
	_, err := s.client.Request(ctx, EventAddDM, Params{"friendId": friendID}, nil)
	if err != nil {
		return err
	}
	if f, ok := s.cache.Friend(friendID); ok {
		s.cache.AddMember(DMGuildID, Member{UserID: f.UserID, Nickname: f.Nickname, Status: f.Status})
	} else {
		s.cache.AddMember(DMGuildID, Member{UserID: friendID, Status: StatusOffline})
	}
	return nil
}

// ChangeNickname changes the signed-in user's nickname.
func (s *Synchronizer) ChangeNickname(ctx context.Context, nick string) error {
	if _, err := s.client.Request(ctx, EventChangeNick, nil, map[string]string{"nickName": nick}); err != nil {
		return err
	}
	s.HandleUserUpdated(UserUpdated{UserID: s.session.UserID(), Nickname: nick})
	return nil
}
