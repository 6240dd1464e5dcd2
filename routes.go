package chatsync

import (
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

// EventName identifies a logical request or a server push.
type EventName string

// Request events. Each maps to one HTTP route.
const (
	EventGetInitData        EventName = "GET_INIT_DATA"
	EventCreateGuild        EventName = "CREATE_GUILD"
	EventDeleteGuild        EventName = "DELETE_GUILD"
	EventDeleteGuildImage   EventName = "DELETE_GUILD_IMAGE"
	EventGetGuilds          EventName = "GET_GUILDS"
	EventJoinGuild          EventName = "JOIN_GUILD"
	EventLeaveGuild         EventName = "LEAVE_GUILD"
	EventChangeGuildName    EventName = "CHANGE_GUILD_NAME"
	EventGetInvites         EventName = "GET_INVITES"
	EventCreateChannel      EventName = "CREATE_CHANNEL"
	EventGetChannels        EventName = "GET_CHANNELS"
	EventDeleteChannel      EventName = "DELETE_CHANNEL"
	EventGetMembers         EventName = "GET_MEMBERS"
	EventGetHistoryGuild    EventName = "GET_HISTORY_GUILD"
	EventGetHistoryDM       EventName = "GET_HISTORY_DM"
	EventScrollHistoryGuild EventName = "GET_SCROLL_HISTORY_GUILD"
	EventScrollHistoryDM    EventName = "GET_SCROLL_HISTORY_DM"
	EventGetBulkReply       EventName = "GET_BULK_REPLY"
	EventGetBulkReplyDM     EventName = "GET_BULK_REPLY_DM"
	EventGetMessageDate     EventName = "GET_MESSAGE_DATE"
	EventSendMessageGuild   EventName = "SEND_MESSAGE_GUILD"
	EventSendMessageDM      EventName = "SEND_MESSAGE_DM"
	EventEditMessageGuild   EventName = "EDIT_MESSAGE_GUILD"
	EventEditMessageDM      EventName = "EDIT_MESSAGE_DM"
	EventDeleteMessageGuild EventName = "DELETE_MESSAGE_GUILD"
	EventDeleteMessageDM    EventName = "DELETE_MESSAGE_DM"
	EventGetPinnedMessages  EventName = "GET_PINNED_MESSAGES"
	EventPinMessage         EventName = "PIN_MESSAGE"
	EventUnpinMessage       EventName = "UNPIN_MESSAGE"
	EventReadMessage        EventName = "READ_MESSAGE"
	EventStartTyping        EventName = "START_TYPING"
	EventStopTyping         EventName = "STOP_TYPING"
	EventGetFriends         EventName = "GET_FRIENDS"
	EventAddFriend          EventName = "ADD_FRIEND"
	EventAddFriendID        EventName = "ADD_FRIEND_ID"
	EventAcceptFriend       EventName = "ACCEPT_FRIEND"
	EventDenyFriend         EventName = "DENY_FRIEND"
	EventRemoveFriend       EventName = "REMOVE_FRIEND"
	EventAddDM              EventName = "ADD_DM"
	EventChangeNick         EventName = "CHANGE_NICK"
	EventJoinVoiceChannel   EventName = "JOIN_VOICE_CHANNEL"
	EventLeaveVoiceChannel  EventName = "LEAVE_VOICE_CHANNEL"
)

// Route is the HTTP binding of a request event.
type Route struct {
	Method   string
	Template string
}

// BasePath prefixes every route.
const BasePath = "/api"

var routes = map[EventName]Route{
	EventGetInitData:        {http.MethodGet, "/init"},
	EventCreateGuild:        {http.MethodPost, "/guilds"},
	EventDeleteGuild:        {http.MethodDelete, "/guilds/{guildId}"},
	EventDeleteGuildImage:   {http.MethodDelete, "/guilds/{guildId}/image"},
	EventGetGuilds:          {http.MethodGet, "/guilds"},
	EventJoinGuild:          {http.MethodPost, "/guilds/{inviteId}/members"},
	EventLeaveGuild:         {http.MethodDelete, "/guilds/{guildId}/members"},
	EventChangeGuildName:    {http.MethodPut, "/guilds/{guildId}"},
	EventGetInvites:         {http.MethodGet, "/guilds/{guildId}/channels/{channelId}/invites"},
	EventCreateChannel:      {http.MethodPost, "/guilds/{guildId}/channels"},
	EventGetChannels:        {http.MethodGet, "/guilds/{guildId}/channels"},
	EventDeleteChannel:      {http.MethodDelete, "/guilds/{guildId}/channels/{channelId}"},
	EventGetMembers:         {http.MethodGet, "/guilds/{guildId}/members"},
	EventGetHistoryGuild:    {http.MethodGet, "/guilds/{guildId}/channels/{channelId}/messages"},
	EventGetHistoryDM:       {http.MethodGet, "/dms/channels/{channelId}/messages"},
	EventScrollHistoryGuild: {http.MethodGet, "/guilds/{guildId}/channels/{channelId}/messages"},
	EventScrollHistoryDM:    {http.MethodGet, "/dms/channels/{channelId}/messages"},
	EventGetBulkReply:       {http.MethodGet, "/guilds/{guildId}/channels/{channelId}/messages/reply"},
	EventGetBulkReplyDM:     {http.MethodGet, "/dms/channels/{channelId}/messages/reply"},
	EventGetMessageDate:     {http.MethodGet, "/guilds/{guildId}/channels/{channelId}/messages/date"},
	EventSendMessageGuild:   {http.MethodPost, "/guilds/{guildId}/channels/{channelId}/messages"},
	EventSendMessageDM:      {http.MethodPost, "/dms/channels/{channelId}/messages"},
	EventEditMessageGuild:   {http.MethodPut, "/guilds/{guildId}/channels/{channelId}/messages/{messageId}"},
	EventEditMessageDM:      {http.MethodPut, "/dms/channels/{channelId}/messages/{messageId}"},
	EventDeleteMessageGuild: {http.MethodDelete, "/guilds/{guildId}/channels/{channelId}/messages/{messageId}"},
	EventDeleteMessageDM:    {http.MethodDelete, "/dms/channels/{channelId}/messages/{messageId}"},
	EventGetPinnedMessages:  {http.MethodGet, "/guilds/{guildId}/channels/{channelId}/messages/pinned"},
	EventPinMessage:         {http.MethodPost, "/guilds/{guildId}/channels/{channelId}/messages/{messageId}/pin"},
	EventUnpinMessage:       {http.MethodDelete, "/guilds/{guildId}/channels/{channelId}/messages/{messageId}/pin"},
	EventReadMessage:        {http.MethodPost, "/guilds/{guildId}/channels/{channelId}/messages/read"},
	EventStartTyping:        {http.MethodPost, "/guilds/{guildId}/channels/{channelId}/typing/start"},
	EventStopTyping:         {http.MethodPost, "/guilds/{guildId}/channels/{channelId}/typing/stop"},
	EventGetFriends:         {http.MethodGet, "/friends"},
	EventAddFriend:          {http.MethodPost, "/friends"},
	EventAddFriendID:        {http.MethodPost, "/friends"},
	EventAcceptFriend:       {http.MethodPost, "/friends/{friendId}/accept"},
	EventDenyFriend:         {http.MethodPost, "/friends/{friendId}/deny"},
	EventRemoveFriend:       {http.MethodDelete, "/friends/{friendId}"},
	EventAddDM:              {http.MethodPost, "/dm/{friendId}"},
	EventChangeNick:         {http.MethodPut, "/nicks"},
	EventJoinVoiceChannel:   {http.MethodPost, "/guilds/{guildId}/channels/{channelId}/voice"},
	EventLeaveVoiceChannel:  {http.MethodPut, "/guilds/{guildId}/channels/{channelId}/voice"},
}

// RouteFor returns the HTTP binding of a request event.
func RouteFor(event EventName) (Route, bool) {
	r, ok := routes[event]
	return r, ok
}

// Params fills route placeholders; leftovers become the query string of
// GET requests.
type Params map[string]string

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z]+)\}`)

// BuildURL resolves an event to its method and path. Every placeholder must
// have a non-empty value.
func BuildURL(event EventName, params Params) (string, string, error) {
	r, ok := routes[event]
	if !ok {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownEvent, event)
	}

	used := make(map[string]bool)
	var missing []string
	path := placeholderPattern.ReplaceAllStringFunc(r.Template, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := params[key]
		if !ok || v == "" {
			missing = append(missing, key)
			return m
		}
		used[key] = true
		return url.PathEscape(v)
	})
	if len(missing) > 0 {
		return "", "", fmt.Errorf("%w: %s needs %s", ErrMissingParam, event, strings.Join(missing, ", "))
	}

	if r.Method == http.MethodGet {
		q := url.Values{}
		keys := make([]string, 0, len(params))
		for k := range params {
			if !used[k] && params[k] != "" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			q.Set(k, params[k])
		}
		if len(q) > 0 {
			path += "?" + q.Encode()
		}
	}
	return r.Method, BasePath + path, nil
}
