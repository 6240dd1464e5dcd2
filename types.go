package chatsync

import "time"

// ============================================================================
// Entities
// ============================================================================

// DMGuildID is the reserved guild key under which direct-message channels
// and their messages are cached.
const DMGuildID = "@me"

// ChannelKind distinguishes text channels from voice channels.
type ChannelKind string

const (
	ChannelText  ChannelKind = "text"
	ChannelVoice ChannelKind = "voice"
)

// Guild is a named container owning channels, members and emojis.
type Guild struct {
	ID            string `json:"guildId"`
	Name          string `json:"guildName"`
	OwnerID       string `json:"ownerId"`
	Version       string `json:"guildVersion,omitempty"`
	RootChannelID string `json:"rootChannel,omitempty"`
	IsPublic      bool   `json:"isGuildPublic,omitempty"`
}

// Channel is a text or voice stream inside a guild.
type Channel struct {
	ID           string      `json:"channelId"`
	GuildID      string      `json:"guildId,omitempty"`
	Name         string      `json:"channelName"`
	Kind         ChannelKind `json:"kind"`
	LastReadAt   *time.Time  `json:"lastReadDatetime,omitempty"`
	VoiceMembers []string    `json:"voiceMembers,omitempty"`
}

// IsText reports whether messages can be posted to the channel.
func (c Channel) IsText() bool { return c.Kind != ChannelVoice }

// Attachment is a file reference carried by a message.
type Attachment struct {
	ID        string `json:"fileId"`
	Name      string `json:"fileName"`
	Size      int64  `json:"fileSize,omitempty"`
	IsImage   bool   `json:"isImageFile,omitempty"`
	IsSpoiler bool   `json:"isSpoiler,omitempty"`
}

// Message is a single chat message. Confirmed messages are keyed by ID;
// optimistic sends carry a TemporaryID until the server confirms them.
type Message struct {
	ID          string       `json:"messageId"`
	ChannelID   string       `json:"channelId"`
	GuildID     string       `json:"guildId,omitempty"`
	AuthorID    string       `json:"userId"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"date"`
	LastEdited  *time.Time   `json:"lastEdited,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReplyToID   string       `json:"replyToId,omitempty"`
	IsBot       bool         `json:"isBot,omitempty"`
	IsSystem    bool         `json:"isSystemMessage,omitempty"`
	IsPinned    bool         `json:"isPinned,omitempty"`
	TemporaryID string       `json:"temporaryId,omitempty"`

	// Client-side delivery state of an optimistic send.
	Pending bool `json:"-"`
	Failed  bool `json:"-"`
}

// Before reports whether m sorts before o in channel order: ascending by
// creation time, ties broken by id.
func (m Message) Before(o Message) bool {
	if !m.CreatedAt.Equal(o.CreatedAt) {
		return m.CreatedAt.Before(o.CreatedAt)
	}
	return m.ID < o.ID
}

// IsReply reports whether the message quotes another message.
func (m Message) IsReply() bool { return m.ReplyToID != "" }

// PresenceStatus is a member's presence.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusIdle    PresenceStatus = "idle"
	StatusDND     PresenceStatus = "dnd"
	StatusOffline PresenceStatus = "offline"
)

// Member is a user's membership record in a guild.
type Member struct {
	UserID   string         `json:"userId"`
	Nickname string         `json:"nickName"`
	Status   PresenceStatus `json:"status"`
}

// Emoji is a custom guild emoji.
type Emoji struct {
	ID      string `json:"fileId"`
	Name    string `json:"fileName"`
	GuildID string `json:"guildId"`
	UserID  string `json:"userId,omitempty"`
}

// FriendStatus is the state of a friendship.
type FriendStatus string

const (
	FriendPending  FriendStatus = "pending"
	FriendAccepted FriendStatus = "accepted"
)

// Friend is an entry in the current user's friend list.
type Friend struct {
	UserID   string         `json:"userId"`
	Nickname string         `json:"nickName"`
	Status   PresenceStatus `json:"status,omitempty"`
	State    FriendStatus   `json:"friendStatus"`
	Outgoing bool           `json:"isFriendsRequestToUser,omitempty"`
}

// ============================================================================
// Wire payloads
// ============================================================================

// InitData is the bootstrap payload returned by GET_INIT_DATA.
type InitData struct {
	UserID          string              `json:"userId"`
	Nickname        string              `json:"nickName"`
	Guilds          []InitGuild         `json:"guilds"`
	Friends         []Friend            `json:"friends,omitempty"`
	DMUsers         []Member            `json:"dmUsers,omitempty"`
	OnlineUsers     []string            `json:"onlineUsers,omitempty"`
	PermissionsMap  map[string]any      `json:"permissionsMap,omitempty"`
	SharedGuildsMap map[string][]string `json:"sharedGuildsMap,omitempty"`
}

// InitGuild is a guild entry of InitData.
type InitGuild struct {
	Guild
	Channels     []Channel           `json:"guildChannels"`
	MemberIDs    []string            `json:"guildMembers"`
	Emojis       []Emoji             `json:"emojis,omitempty"`
	VoiceMembers map[string][]string `json:"voiceMembers,omitempty"`
}

// HistoryResponse is the payload of a history or scroll-history fetch.
type HistoryResponse struct {
	ChannelID         string     `json:"channelId"`
	GuildID           string     `json:"guildId,omitempty"`
	IsDM              bool       `json:"isDm"`
	IsOldMessages     bool       `json:"isOldMessages"`
	Messages          []Message  `json:"messages"`
	OldestMessageDate *time.Time `json:"oldestMessageDate,omitempty"`
}

// BulkReplyResponse is the payload of GET_BULK_REPLY.
type BulkReplyResponse struct {
	Replies []Message `json:"replies"`
}

// MembersResponse is the payload of GET_MEMBERS.
type MembersResponse struct {
	GuildID string   `json:"guildId"`
	Members []Member `json:"members"`
}

// MessageDateResponse is the payload of GET_MESSAGE_DATE.
type MessageDateResponse struct {
	MessageID string    `json:"messageId"`
	Date      time.Time `json:"messageDate"`
}

// SendMessageRequest is the body posted for SEND_MESSAGE_GUILD / SEND_MESSAGE_DM.
type SendMessageRequest struct {
	Content     string       `json:"content"`
	ReplyToID   string       `json:"replyToId,omitempty"`
	TemporaryID string       `json:"temporaryId"`
	Attachments []Attachment `json:"attachmentUrls,omitempty"`
}

// HistoryRequest carries pagination parameters for history fetches.
type HistoryRequest struct {
	Date      *time.Time `json:"date,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
}

// BulkReplyRequest lists the message ids to resolve.
type BulkReplyRequest struct {
	IDs []string `json:"ids"`
}
