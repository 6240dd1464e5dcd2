package chatsync

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("Responses are normalized to camelCase", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, "/api/init", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			w.Write([]byte(`{"UserId":"u1","NickName":"neo","Guilds":[{"GuildId":"g1","GuildName":"Home","GuildChannels":[{"ChannelId":"c1"}]}]}`))
		})

		data, err := requestJSON[InitData](ctx, srv.client(), EventGetInitData, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "u1", data.UserID)
		assert.Equal(t, "neo", data.Nickname)
		require.Len(t, data.Guilds, 1)
		assert.Equal(t, "Home", data.Guilds[0].Name)
		assert.Equal(t, "c1", data.Guilds[0].Channels[0].ID)
	})

	t.Run("JSON body is posted", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodPost, guildHistoryPath, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var body SendMessageRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "hello", body.Content)
			assert.Equal(t, "tmp-1", body.TemporaryID)
			w.WriteHeader(http.StatusNoContent)
		})

		data, err := srv.client().Request(ctx, EventSendMessageGuild,
			Params{"guildId": "g1", "channelId": "c1"},
			SendMessageRequest{Content: "hello", TemporaryID: "tmp-1"})
		require.NoError(t, err)
		assert.Nil(t, data)
	})

	t.Run("Failures are retried once", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, guildHistoryPath, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, APIError{Code: "INTERNAL", Message: "db down"})
		})

		_, err := srv.client().Request(ctx, EventGetHistoryGuild, Params{"guildId": "g1", "channelId": "c1"}, nil)
		var re *RequestError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, http.StatusInternalServerError, re.Status)
		require.NotNil(t, re.API)
		assert.Equal(t, "db down", re.API.Message)
		assert.Equal(t, 2, srv.hitCount(http.MethodGet, guildHistoryPath))
	})

	t.Run("The retry can succeed", func(t *testing.T) {
		srv := newTestServer(t)
		var calls atomic.Int32
		srv.handle(http.MethodGet, guildHistoryPath, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			historyPage([]Message{testMessage("g1", "c1", "m1", 1)}, nil)(w, r)
		})

		resp, err := requestJSON[HistoryResponse](ctx, srv.client(), EventGetHistoryGuild, Params{"guildId": "g1", "channelId": "c1"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"m1"}, messageIDs(resp.Messages))
	})

	t.Run("Credential failures are not retried", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, guildHistoryPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})

		_, err := srv.client().Request(ctx, EventGetHistoryGuild, Params{"guildId": "g1", "channelId": "c1"}, nil)
		require.Error(t, err)
		assert.True(t, IsUnauthorized(err))
		assert.Equal(t, 1, srv.hitCount(http.MethodGet, guildHistoryPath))
	})

	t.Run("Missing route parameters fail before any request", func(t *testing.T) {
		srv := newTestServer(t)
		_, err := srv.client().Request(ctx, EventGetHistoryGuild, Params{"channelId": "c1"}, nil)
		assert.ErrorIs(t, err, ErrMissingParam)
	})
}

func TestClientBootstrapRetry(t *testing.T) {
	t.Run("Init is retried until it succeeds", func(t *testing.T) {
		srv := newTestServer(t)
		var calls atomic.Int32
		srv.handle(http.MethodGet, "/api/init", func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) <= 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusOK, InitData{UserID: "u1"})
		})

		data, err := requestJSON[InitData](context.Background(), srv.client(), EventGetInitData, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, "u1", data.UserID)
		assert.Equal(t, 4, srv.hitCount(http.MethodGet, "/api/init"))
	})

	t.Run("Init retries stop with the context", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, "/api/init", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := srv.client().Request(ctx, EventGetInitData, nil, nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Greater(t, srv.hitCount(http.MethodGet, "/api/init"), 2)
	})

	t.Run("Init gives up on rejected credentials", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, "/api/init", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})

		_, err := srv.client().Request(context.Background(), EventGetInitData, nil, nil)
		assert.True(t, IsUnauthorized(err))
		assert.Equal(t, 1, srv.hitCount(http.MethodGet, "/api/init"))
	})
}

func TestClientHooks(t *testing.T) {
	t.Run("Error hooks and alert fire once after retries", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, "/api/friends", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		var alerts []EventName
		var hooked []int
		client := srv.client(WithAlert(func(event EventName, err error) { alerts = append(alerts, event) }))
		client.OnError(EventGetFriends, func(re *RequestError) { hooked = append(hooked, re.Status) })
		client.OnError(EventGetMembers, func(*RequestError) { t.Error("hook for another event fired") })

		_, err := client.Request(context.Background(), EventGetFriends, nil, nil)
		require.Error(t, err)
		assert.Equal(t, []int{http.StatusInternalServerError}, hooked)
		assert.Equal(t, []EventName{EventGetFriends}, alerts)
	})

	t.Run("Send publishes the response", func(t *testing.T) {
		srv := newTestServer(t)
		srv.handle(http.MethodGet, "/api/guilds/g1/members", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"GuildId":"g1","Members":[{"UserId":"u1"}]}`))
		})

		client := srv.client()
		got := make(chan json.RawMessage, 1)
		client.On(EventGetMembers, func(_ EventName, payload json.RawMessage) { got <- payload })
		client.Send(context.Background(), EventGetMembers, Params{"guildId": "g1"}, nil)

		select {
		case payload := <-got:
			resp, err := decodeJSON[MembersResponse](payload)
			require.NoError(t, err)
			assert.Equal(t, "u1", resp.Members[0].UserID)
		case <-time.After(2 * time.Second):
			t.Fatal("response was not published")
		}
	})
}
