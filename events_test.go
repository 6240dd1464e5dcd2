package chatsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	t.Run("Guild message in PascalCase", func(t *testing.T) {
		ev, err := DecodeEvent(EventGuildMessage, []byte(`{
			"GuildId": "g1",
			"ChannelId": "c1",
			"Message": {"MessageId": "m1", "UserId": "u1", "Content": "hi", "Date": "2024-03-01T12:00:00Z", "ReplyToId": "m0"}
		}`))
		require.NoError(t, err)

		e, ok := ev.(MessageCreated)
		require.True(t, ok)
		assert.Equal(t, EventGuildMessage, e.EventName())
		assert.Equal(t, "g1", e.GuildID)
		assert.Equal(t, "m1", e.Message.ID)
		assert.Equal(t, "c1", e.Message.ChannelID)
		assert.Equal(t, "g1", e.Message.GuildID)
		assert.Equal(t, "m0", e.Message.ReplyToID)
		assert.True(t, e.Message.CreatedAt.Equal(epoch))
	})

	t.Run("Direct message drops any guild id", func(t *testing.T) {
		ev, err := DecodeEvent(EventDMMessage, []byte(`{"guildId":"g1","message":{"messageId":"m1","channelId":"d1"}}`))
		require.NoError(t, err)

		e := ev.(MessageCreated)
		assert.True(t, e.IsDM)
		assert.Equal(t, EventDMMessage, e.EventName())
		assert.Empty(t, e.GuildID)
		assert.Equal(t, "d1", e.ChannelID)
	})

	t.Run("Message without id is malformed", func(t *testing.T) {
		_, err := DecodeEvent(EventGuildMessage, []byte(`{"guildId":"g1","channelId":"c1","message":{"content":"x"}}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("Guild message without guild is malformed", func(t *testing.T) {
		_, err := DecodeEvent(EventGuildMessage, []byte(`{"channelId":"c1","message":{"messageId":"m1"}}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("Invalid JSON", func(t *testing.T) {
		_, err := DecodeEvent(EventUserStatus, []byte(`{"userId":`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("Wrong field type", func(t *testing.T) {
		_, err := DecodeEvent(EventUserStatus, []byte(`{"userId":42}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("Unknown event", func(t *testing.T) {
		_, err := DecodeEvent("SOMETHING_NEW", []byte(`{}`))
		assert.ErrorIs(t, err, ErrUnknownEvent)
	})

	t.Run("Edit fills a missing edit time", func(t *testing.T) {
		before := time.Now().UTC()
		ev, err := DecodeEvent(EventEditMessageDM, []byte(`{"channelId":"d1","messageId":"m1","content":"new"}`))
		require.NoError(t, err)

		e := ev.(MessageEdited)
		assert.True(t, e.IsDM)
		assert.Equal(t, "new", e.Content)
		assert.False(t, e.LastEdited.Before(before))
	})

	t.Run("Delete", func(t *testing.T) {
		ev, err := DecodeEvent(EventDeleteMessageGuild, []byte(`{"guildId":"g1","channelId":"c1","messageId":"m1"}`))
		require.NoError(t, err)
		assert.Equal(t, MessageDeleted{GuildID: "g1", ChannelID: "c1", MessageID: "m1"}, ev)
	})

	t.Run("Channel update", func(t *testing.T) {
		ev, err := DecodeEvent(EventUpdateChannel, []byte(`{"type":"create","guildId":"g1","channelId":"c2","channelName":"talk","isTextChannel":false}`))
		require.NoError(t, err)

		ch := ev.(ChannelUpdated).Channel()
		assert.Equal(t, Channel{ID: "c2", GuildID: "g1", Name: "talk", Kind: ChannelVoice}, ch)

		_, err = DecodeEvent(EventUpdateChannel, []byte(`{"type":"explode","guildId":"g1","channelId":"c2"}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})

	t.Run("User status", func(t *testing.T) {
		ev, err := DecodeEvent(EventUserStatus, []byte(`{"UserId":"u1","IsOnline":true}`))
		require.NoError(t, err)
		assert.Equal(t, StatusOnline, ev.(UserStatusChanged).Presence())

		ev, err = DecodeEvent(EventUserStatus, []byte(`{"userId":"u1","status":"dnd"}`))
		require.NoError(t, err)
		assert.Equal(t, StatusDND, ev.(UserStatusChanged).Presence())

		ev, err = DecodeEvent(EventUserStatus, []byte(`{"userId":"u1"}`))
		require.NoError(t, err)
		assert.Equal(t, StatusOffline, ev.(UserStatusChanged).Presence())
	})

	t.Run("Pin takes the id from the message", func(t *testing.T) {
		ev, err := DecodeEvent(EventMessagePinned, []byte(`{"guildId":"g1","channelId":"c1","message":{"messageId":"m3"}}`))
		require.NoError(t, err)

		e := ev.(MessagePinned)
		assert.True(t, e.Pinned)
		assert.Equal(t, "m3", e.MessageID)

		ev, err = DecodeEvent(EventMessageUnpinned, []byte(`{"guildId":"g1","channelId":"c1","messageId":"m3"}`))
		require.NoError(t, err)
		assert.Equal(t, EventMessageUnpinned, ev.EventName())
	})

	t.Run("Guild and member events", func(t *testing.T) {
		ev, err := DecodeEvent(EventUpdateGuildName, []byte(`{"guildId":"g1","guildName":"New"}`))
		require.NoError(t, err)
		assert.Equal(t, GuildRenamed{GuildID: "g1", GuildName: "New"}, ev)

		_, err = DecodeEvent(EventUpdateGuildName, []byte(`{"guildId":"g1"}`))
		assert.ErrorIs(t, err, ErrMalformedPayload)

		ev, err = DecodeEvent(EventUpdateMembers, []byte(`{"guildId":"g1","added":[{"userId":"u3"}],"removed":["u1"]}`))
		require.NoError(t, err)
		e := ev.(MembersUpdated)
		assert.Equal(t, "u3", e.Added[0].UserID)
		assert.Equal(t, []string{"u1"}, e.Removed)
	})
}

func TestParseEnvelope(t *testing.T) {
	for _, frame := range []string{
		`{"event_type":"USER_STATUS","payload":{"userId":"u1"}}`,
		`{"EventType":"USER_STATUS","Payload":{"userId":"u1"}}`,
		`{"event":"USER_STATUS","data":{"userId":"u1"}}`,
	} {
		env, err := parseEnvelope([]byte(frame))
		require.NoError(t, err, frame)
		assert.Equal(t, EventUserStatus, env.Event, frame)
		assert.JSONEq(t, `{"userId":"u1"}`, string(env.Payload), frame)
	}

	_, err := parseEnvelope([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = parseEnvelope([]byte(`not json`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}
