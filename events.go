package chatsync

import (
	"encoding/json"
	"fmt"
	"time"
)

// Server push events.
const (
	EventGuildMessage      EventName = "GUILD_MESSAGE"
	EventDMMessage         EventName = "DM_MESSAGE"
	EventUpdateUser        EventName = "UPDATE_USER"
	EventUserStatus        EventName = "USER_STATUS"
	EventUpdateChannel     EventName = "UPDATE_CHANNEL"
	EventUpdateGuildName   EventName = "UPDATE_GUILD_NAME"
	EventUpdateGuildImage  EventName = "UPDATE_GUILD_IMAGE"
	EventUpdateMembers     EventName = "UPDATE_MEMBERS"
	EventMessagePinned     EventName = "MESSAGE_PINNED"
	EventMessageUnpinned   EventName = "MESSAGE_UNPINNED"
	EventGuildDeleted      EventName = "GUILD_DELETED"
	EventVoiceChannelLeave EventName = "VOICE_CHANNEL_LEAVE"
)

// Event is one of the closed set of decoded push payloads.
type Event interface {
	EventName() EventName
}

// MessageCreated is a new message in a guild channel or DM.
type MessageCreated struct {
	GuildID   string  `json:"guildId"`
	ChannelID string  `json:"channelId"`
	IsDM      bool    `json:"-"`
	Message   Message `json:"message"`
}

func (e MessageCreated) EventName() EventName {
	if e.IsDM {
		return EventDMMessage
	}
	return EventGuildMessage
}

// MessageEdited replaces a message's content.
type MessageEdited struct {
	IsDM       bool      `json:"isDm"`
	GuildID    string    `json:"guildId"`
	ChannelID  string    `json:"channelId"`
	MessageID  string    `json:"messageId"`
	Content    string    `json:"content"`
	LastEdited time.Time `json:"lastEdited"`
}

func (e MessageEdited) EventName() EventName {
	if e.IsDM {
		return EventEditMessageDM
	}
	return EventEditMessageGuild
}

// MessageDeleted removes a message.
type MessageDeleted struct {
	IsDM      bool       `json:"-"`
	GuildID   string     `json:"guildId"`
	ChannelID string     `json:"channelId"`
	MessageID string     `json:"messageId"`
	Date      *time.Time `json:"msgdate,omitempty"`
}

func (e MessageDeleted) EventName() EventName {
	if e.IsDM {
		return EventDeleteMessageDM
	}
	return EventDeleteMessageGuild
}

// ChannelUpdateKind is the sub-type of a channel update.
type ChannelUpdateKind string

const (
	ChannelCreate ChannelUpdateKind = "create"
	ChannelEdit   ChannelUpdateKind = "edit"
	ChannelRemove ChannelUpdateKind = "remove"
)

// ChannelUpdated creates, renames or removes a channel.
type ChannelUpdated struct {
	Type          ChannelUpdateKind `json:"type"`
	GuildID       string            `json:"guildId"`
	ChannelID     string            `json:"channelId"`
	ChannelName   string            `json:"channelName"`
	IsTextChannel bool              `json:"isTextChannel"`
}

func (ChannelUpdated) EventName() EventName { return EventUpdateChannel }

// Channel returns the channel record carried by the update.
func (e ChannelUpdated) Channel() Channel {
	kind := ChannelVoice
	if e.IsTextChannel {
		kind = ChannelText
	}
	return Channel{ID: e.ChannelID, GuildID: e.GuildID, Name: e.ChannelName, Kind: kind}
}

// VoiceJoined carries the full user list of a voice channel after a join.
type VoiceJoined struct {
	GuildID   string   `json:"guildId"`
	ChannelID string   `json:"channelId"`
	UsersList []string `json:"usersList"`
}

func (VoiceJoined) EventName() EventName { return EventJoinVoiceChannel }

// VoiceLeft reports a user leaving voice in a guild.
type VoiceLeft struct {
	GuildID string `json:"guildId"`
	UserID  string `json:"userId"`
}

func (VoiceLeft) EventName() EventName { return EventVoiceChannelLeave }

// UserStatusChanged reports a presence change.
type UserStatusChanged struct {
	UserID   string         `json:"userId"`
	IsOnline bool           `json:"isOnline"`
	Status   PresenceStatus `json:"status,omitempty"`
}

func (UserStatusChanged) EventName() EventName { return EventUserStatus }

// Presence resolves the reported status.
func (e UserStatusChanged) Presence() PresenceStatus {
	if e.Status != "" {
		return e.Status
	}
	if e.IsOnline {
		return StatusOnline
	}
	return StatusOffline
}

// UserUpdated reports a profile change.
type UserUpdated struct {
	UserID   string `json:"userId"`
	Nickname string `json:"nickName,omitempty"`
	Username string `json:"username,omitempty"`
}

func (UserUpdated) EventName() EventName { return EventUpdateUser }

// GuildRenamed reports a new guild name.
type GuildRenamed struct {
	GuildID   string `json:"guildId"`
	GuildName string `json:"guildName"`
}

func (GuildRenamed) EventName() EventName { return EventUpdateGuildName }

// GuildImageUpdated reports a new guild image version.
type GuildImageUpdated struct {
	GuildID      string `json:"guildId"`
	GuildVersion string `json:"guildVersion"`
}

func (GuildImageUpdated) EventName() EventName { return EventUpdateGuildImage }

// GuildRemoved reports that the current user no longer belongs to a guild.
type GuildRemoved struct {
	GuildID string `json:"guildId"`
}

func (GuildRemoved) EventName() EventName { return EventGuildDeleted }

// MembersUpdated carries added and removed guild members.
type MembersUpdated struct {
	GuildID string   `json:"guildId"`
	Added   []Member `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
}

func (MembersUpdated) EventName() EventName { return EventUpdateMembers }

// MessagePinned pins or unpins a message.
type MessagePinned struct {
	Pinned    bool    `json:"-"`
	GuildID   string  `json:"guildId"`
	ChannelID string  `json:"channelId"`
	MessageID string  `json:"messageId"`
	Message   Message `json:"message"`
}

func (e MessagePinned) EventName() EventName {
	if e.Pinned {
		return EventMessagePinned
	}
	return EventMessageUnpinned
}

// ============================================================================
// Decoding
// ============================================================================

// DecodeEvent normalizes key casing, decodes the payload into its variant
// and validates required fields. Unknown names return ErrUnknownEvent;
// invalid payloads return ErrMalformedPayload.
func DecodeEvent(name EventName, raw []byte) (Event, error) {
	data, err := normalizeKeys(raw)
	if err != nil {
		return nil, err
	}
	return decodeNormalized(name, data)
}

// decodeNormalized decodes a payload whose keys are already camelCase.
func decodeNormalized(name EventName, data []byte) (Event, error) {
	switch name {
	case EventGuildMessage, EventDMMessage:
		var e MessageCreated
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		e.IsDM = name == EventDMMessage
		if e.ChannelID == "" {
			e.ChannelID = e.Message.ChannelID
		}
		if e.Message.ChannelID == "" {
			e.Message.ChannelID = e.ChannelID
		}
		if e.IsDM {
			e.GuildID = ""
		} else if e.GuildID == "" {
			e.GuildID = e.Message.GuildID
		}
		e.Message.GuildID = e.GuildID
		if err := requireFields(name, "channelId", e.ChannelID, "message.messageId", e.Message.ID); err != nil {
			return nil, err
		}
		if !e.IsDM {
			if err := requireFields(name, "guildId", e.GuildID); err != nil {
				return nil, err
			}
		}
		return e, nil

	case EventEditMessageGuild, EventEditMessageDM:
		var e MessageEdited
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		e.IsDM = name == EventEditMessageDM || e.IsDM
		if e.IsDM {
			e.GuildID = ""
		}
		if err := requireFields(name, "channelId", e.ChannelID, "messageId", e.MessageID); err != nil {
			return nil, err
		}
		if e.LastEdited.IsZero() {
			e.LastEdited = time.Now().UTC()
		}
		return e, nil

	case EventDeleteMessageGuild, EventDeleteMessageDM:
		var e MessageDeleted
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		e.IsDM = name == EventDeleteMessageDM
		if e.IsDM {
			e.GuildID = ""
		}
		if err := requireFields(name, "channelId", e.ChannelID, "messageId", e.MessageID); err != nil {
			return nil, err
		}
		return e, nil

	case EventUpdateChannel:
		var e ChannelUpdated
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		switch e.Type {
		case ChannelCreate, ChannelEdit, ChannelRemove:
		default:
			return nil, fmt.Errorf("%w: %s: bad type %q", ErrMalformedPayload, name, e.Type)
		}
		if err := requireFields(name, "guildId", e.GuildID, "channelId", e.ChannelID); err != nil {
			return nil, err
		}
		return e, nil

	case EventJoinVoiceChannel:
		var e VoiceJoined
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "guildId", e.GuildID, "channelId", e.ChannelID); err != nil {
			return nil, err
		}
		return e, nil

	case EventVoiceChannelLeave:
		var e VoiceLeft
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "guildId", e.GuildID, "userId", e.UserID); err != nil {
			return nil, err
		}
		return e, nil

	case EventUserStatus:
		var e UserStatusChanged
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "userId", e.UserID); err != nil {
			return nil, err
		}
		return e, nil

	case EventUpdateUser:
		var e UserUpdated
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "userId", e.UserID); err != nil {
			return nil, err
		}
		return e, nil

	case EventUpdateGuildName:
		var e GuildRenamed
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "guildId", e.GuildID, "guildName", e.GuildName); err != nil {
			return nil, err
		}
		return e, nil

	case EventUpdateGuildImage:
		var e GuildImageUpdated
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "guildId", e.GuildID); err != nil {
			return nil, err
		}
		return e, nil

	case EventGuildDeleted:
		var e GuildRemoved
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "guildId", e.GuildID); err != nil {
			return nil, err
		}
		return e, nil

	case EventUpdateMembers:
		var e MembersUpdated
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		if err := requireFields(name, "guildId", e.GuildID); err != nil {
			return nil, err
		}
		return e, nil

	case EventMessagePinned, EventMessageUnpinned:
		var e MessagePinned
		if err := unmarshalPayload(data, &e); err != nil {
			return nil, err
		}
		e.Pinned = name == EventMessagePinned
		if e.MessageID == "" {
			e.MessageID = e.Message.ID
		}
		if err := requireFields(name, "channelId", e.ChannelID, "messageId", e.MessageID); err != nil {
			return nil, err
		}
		return e, nil
	}

	return nil, fmt.Errorf("%w: %s", ErrUnknownEvent, name)
}

func unmarshalPayload(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// requireFields checks name/value pairs for empty values.
func requireFields(event EventName, kv ...string) error {
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == "" {
			return fmt.Errorf("%w: %s: missing %s", ErrMalformedPayload, event, kv[i])
		}
	}
	return nil
}
