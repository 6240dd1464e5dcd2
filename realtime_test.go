package chatsync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// socketServer accepts websocket connections and hands each one to serve.
func socketServer(t *testing.T, serve func(n int32, conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		serve(conns.Add(1), conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// drain reads until the peer goes away so control frames are answered.
func drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.Read(context.Background()); err != nil {
			return
		}
	}
}

func newTestRealtime(t *testing.T, url string, bus *Bus, cfg *RealtimeConfig) *Realtime {
	t.Helper()
	rt := NewRealtime(url, bus, cfg, WithRealtimeLogger(discardLogger()))
	t.Cleanup(func() { rt.Disconnect() })
	return rt
}

func TestRealtime(t *testing.T) {
	t.Run("Sending while disconnected is refused", func(t *testing.T) {
		rt := NewRealtime("http://127.0.0.1:1", NewBus(), nil, WithRealtimeLogger(discardLogger()))
		assert.Equal(t, StateDisconnected, rt.State())
		err := rt.Send(context.Background(), EventStartTyping, map[string]string{"channelId": "c1"})
		assert.ErrorIs(t, err, ErrNotConnected)
	})

	t.Run("Frames are dispatched in arrival order", func(t *testing.T) {
		tokens := make(chan string, 1)
		srv := socketServer(t, func(_ int32, conn *websocket.Conn, r *http.Request) {
			tokens <- r.URL.Query().Get("token")
			ctx := context.Background()
			conn.Write(ctx, websocket.MessageText, []byte(`{"event_type":"GUILD_MESSAGE","payload":{"guildId":"g1","channelId":"c1","message":{"messageId":"m1"}}}`))
			conn.Write(ctx, websocket.MessageText, []byte(`garbage`))
			conn.Write(ctx, websocket.MessageText, []byte(`{"EventType":"GUILD_MESSAGE","Payload":{"GuildId":"g1","ChannelId":"c1","Message":{"MessageId":"m2"}}}`))
			drain(conn)
		})

		bus := NewBus(WithBusLogger(discardLogger()))
		got := make(chan string, 2)
		bus.On(EventGuildMessage, func(ev Event) { got <- ev.(MessageCreated).Message.ID })

		rt := newTestRealtime(t, srv.URL, bus, &RealtimeConfig{Token: "secret", Path: "/socket"})
		require.NoError(t, rt.Connect(context.Background()))
		assert.Equal(t, StateConnected, rt.State())
		assert.Equal(t, "secret", <-tokens)

		var ids []string
		for len(ids) < 2 {
			select {
			case id := <-got:
				ids = append(ids, id)
			case <-time.After(2 * time.Second):
				t.Fatalf("received %v before timing out", ids)
			}
		}
		assert.Equal(t, []string{"m1", "m2"}, ids)
	})

	t.Run("Frames are written as envelopes", func(t *testing.T) {
		frames := make(chan []byte, 1)
		srv := socketServer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
			_, data, err := conn.Read(context.Background())
			if err == nil {
				frames <- data
			}
			drain(conn)
		})

		rt := newTestRealtime(t, srv.URL, NewBus(), nil)
		require.NoError(t, rt.Connect(context.Background()))
		require.NoError(t, rt.Send(context.Background(), EventStartTyping, map[string]string{"channelId": "c1"}))

		select {
		case data := <-frames:
			assert.JSONEq(t, `{"event_type":"START_TYPING","payload":{"channelId":"c1"}}`, string(data))
		case <-time.After(2 * time.Second):
			t.Fatal("no frame received")
		}
	})

	t.Run("A dropped connection is re-established", func(t *testing.T) {
		srv := socketServer(t, func(n int32, conn *websocket.Conn, _ *http.Request) {
			if n == 1 {
				conn.Close(websocket.StatusGoingAway, "restart")
				return
			}
			drain(conn)
		})

		rt := newTestRealtime(t, srv.URL, NewBus(), &RealtimeConfig{
			ReconnectBaseDelay: 5 * time.Millisecond,
			ReconnectMaxDelay:  20 * time.Millisecond,
		})
		var states []ConnState
		stateCh := make(chan ConnState, 16)
		rt.OnStateChange(func(s ConnState) { stateCh <- s })
		reconnected := make(chan struct{}, 1)
		rt.OnReconnected(func() { reconnected <- struct{}{} })
		attempts := make(chan int, 4)
		rt.OnReconnecting(func(attempt int, _ time.Duration) { attempts <- attempt })

		require.NoError(t, rt.Connect(context.Background()))

		select {
		case <-reconnected:
		case <-time.After(3 * time.Second):
			t.Fatal("did not reconnect")
		}
		assert.Equal(t, StateConnected, rt.State())
		assert.Equal(t, 1, <-attempts)

	collect:
		for {
			select {
			case s := <-stateCh:
				states = append(states, s)
			default:
				break collect
			}
		}
		assert.Contains(t, states, StateReconnecting)
		assert.Equal(t, StateConnected, states[len(states)-1])
	})

	t.Run("A clean close from the server disconnects", func(t *testing.T) {
		var conns atomic.Int32
		srv := socketServer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
			conns.Add(1)
			conn.Close(websocket.StatusNormalClosure, "bye")
		})

		rt := newTestRealtime(t, srv.URL, NewBus(), &RealtimeConfig{ReconnectBaseDelay: time.Millisecond})
		stateCh := make(chan ConnState, 16)
		rt.OnStateChange(func(s ConnState) { stateCh <- s })
		require.NoError(t, rt.Connect(context.Background()))

		require.Eventually(t, func() bool { return rt.State() == StateDisconnected }, 3*time.Second, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), conns.Load())

		var states []ConnState
	collect:
		for {
			select {
			case s := <-stateCh:
				states = append(states, s)
			default:
				break collect
			}
		}
		assert.Equal(t, []ConnState{StateConnecting, StateConnected, StateDisconnected}, states)
	})

	t.Run("A peer that stops answering pings is reconnected", func(t *testing.T) {
		stop := make(chan struct{})
		srv := socketServer(t, func(n int32, conn *websocket.Conn, _ *http.Request) {
			if n == 1 {
				<-stop
				conn.CloseNow()
				return
			}
			drain(conn)
		})
		t.Cleanup(func() { close(stop) })

		rt := newTestRealtime(t, srv.URL, NewBus(), &RealtimeConfig{
			HeartbeatInterval:  20 * time.Millisecond,
			HeartbeatTimeout:   50 * time.Millisecond,
			ReconnectBaseDelay: 5 * time.Millisecond,
			ReconnectMaxDelay:  20 * time.Millisecond,
		})
		stateCh := make(chan ConnState, 16)
		rt.OnStateChange(func(s ConnState) { stateCh <- s })
		reconnected := make(chan struct{}, 1)
		rt.OnReconnected(func() { reconnected <- struct{}{} })

		require.NoError(t, rt.Connect(context.Background()))

		select {
		case <-reconnected:
		case <-time.After(5 * time.Second):
			t.Fatal("did not reconnect after a missed heartbeat")
		}
		assert.Equal(t, StateConnected, rt.State())

		var states []ConnState
	collect:
		for {
			select {
			case s := <-stateCh:
				states = append(states, s)
			default:
				break collect
			}
		}
		assert.Contains(t, states, StateReconnecting)
	})

	t.Run("Heartbeats stop once disconnected", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		srv := socketServer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
			drain(conn)
		})

		rt := NewRealtime(srv.URL, NewBus(), &RealtimeConfig{HeartbeatInterval: 10 * time.Millisecond},
			WithRealtimeLogger(discardLogger()), WithRealtimeMetrics(NewMetrics(reg)))
		require.NoError(t, rt.Connect(context.Background()))

		pings := func() float64 {
			return metricValue(t, reg, "chatsync_socket_heartbeats_total", map[string]string{"result": "ok"})
		}
		require.Eventually(t, func() bool { return pings() >= 1 }, 2*time.Second, 5*time.Millisecond)

		rt.Disconnect()
		sent := pings()
		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, sent, pings())
	})

	t.Run("Disconnect does not reconnect", func(t *testing.T) {
		var conns atomic.Int32
		srv := socketServer(t, func(_ int32, conn *websocket.Conn, _ *http.Request) {
			conns.Add(1)
			drain(conn)
		})

		rt := newTestRealtime(t, srv.URL, NewBus(), &RealtimeConfig{ReconnectBaseDelay: time.Millisecond})
		require.NoError(t, rt.Connect(context.Background()))
		rt.Disconnect()
		assert.Equal(t, StateDisconnected, rt.State())

		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(1), conns.Load())
		assert.ErrorIs(t, rt.Send(context.Background(), EventStartTyping, nil), ErrNotConnected)
	})

	t.Run("Dial failure leaves the socket disconnected", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		defer srv.Close()

		rt := newTestRealtime(t, srv.URL, NewBus(), nil)
		require.Error(t, rt.Connect(context.Background()))
		assert.Equal(t, StateDisconnected, rt.State())
	})
}
