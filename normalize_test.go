package chatsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCamelKey(t *testing.T) {
	cases := map[string]string{
		"MessageId": "messageId",
		"messageId": "messageId",
		"ID":        "id",
		"URLPath":   "urlPath",
		"IsDM":      "isDM",
		"":          "",
		"_private":  "_private",
	}
	for in, want := range cases {
		assert.Equal(t, want, camelKey(in), "camelKey(%q)", in)
	}
}

func TestNormalizeKeys(t *testing.T) {
	t.Run("Nested objects and arrays", func(t *testing.T) {
		out, err := normalizeKeys([]byte(`{"ChannelId":"c1","Messages":[{"MessageId":"m1","UserId":"u1"}],"Meta":{"GuildId":"g1"}}`))
		require.NoError(t, err)

		var got map[string]any
		require.NoError(t, json.Unmarshal(out, &got))
		assert.Equal(t, "c1", got["channelId"])
		msgs := got["messages"].([]any)
		assert.Equal(t, "m1", msgs[0].(map[string]any)["messageId"])
		assert.Equal(t, "g1", got["meta"].(map[string]any)["guildId"])
	})

	t.Run("camelCase wins a collision", func(t *testing.T) {
		for i := 0; i < 20; i++ {
			out, err := normalizeKeys([]byte(`{"MessageId":"pascal","messageId":"camel"}`))
			require.NoError(t, err)
			var got map[string]string
			require.NoError(t, json.Unmarshal(out, &got))
			assert.Equal(t, "camel", got["messageId"])
		}
	})

	t.Run("Scalars and empty input pass through", func(t *testing.T) {
		out, err := normalizeKeys([]byte(`"text"`))
		require.NoError(t, err)
		assert.JSONEq(t, `"text"`, string(out))

		out, err = normalizeKeys(nil)
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("Malformed input", func(t *testing.T) {
		_, err := normalizeKeys([]byte(`{"a":`))
		assert.ErrorIs(t, err, ErrMalformedPayload)
	})
}
