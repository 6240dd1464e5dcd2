package chatsync

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// metricValue returns the counter or gauge value of the first series of name
// whose labels include labels.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				return c.GetValue()
			}
			return m.GetGauge().GetValue()
		}
	}
	return 0
}

func TestMetrics(t *testing.T) {
	t.Run("Bus counts delivered and dropped events", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		b := NewBus(WithBusLogger(discardLogger()), WithBusMetrics(NewMetrics(reg)))

		_ = b.Dispatch(EventUserStatus, json.RawMessage(`{"userId":"u1","isOnline":true}`))
		_ = b.Dispatch(EventGuildMessage, json.RawMessage(`{"channelId":"c1"}`))
		_ = b.Dispatch("BRAND_NEW", json.RawMessage(`{}`))

		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_events_total", map[string]string{"event": string(EventUserStatus)}))
		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_events_dropped_total",
			map[string]string{"event": string(EventGuildMessage), "reason": "malformed"}))
		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_events_dropped_total",
			map[string]string{"event": "BRAND_NEW", "reason": "unknown"}))
	})

	t.Run("Requests are counted once per logical request", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		srv := newTestServer(t)
		srv.handle(http.MethodGet, "/api/friends", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		client := srv.client(WithMetrics(NewMetrics(reg)))

		_, err := client.Request(context.Background(), EventGetFriends, nil, nil)
		require.Error(t, err)

		assert.Equal(t, 2, srv.hitCount(http.MethodGet, "/api/friends"))
		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_requests_total",
			map[string]string{"event": string(EventGetFriends), "status": "500"}))
	})

	t.Run("Sends and pagination are counted", func(t *testing.T) {
		reg := prometheus.NewRegistry()
		f := newSyncFixture(t, WithSyncMetrics(NewMetrics(reg)))
		f.srv.handle(http.MethodGet, guildHistoryPath, historyPage(pageOf("c1", 1, 1), timePtr(at(1))))
		f.srv.handle(http.MethodPost, guildHistoryPath, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
		})
		require.NoError(t, f.sync.SelectChannel(context.Background(), "g1", "c1"))

		_, err := f.sync.SendMessage(context.Background(), "hello", "")
		require.Error(t, err)
		assert.False(t, f.sync.RequestOlder(context.Background()))

		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_sends_total", map[string]string{"state": "pending"}))
		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_sends_total", map[string]string{"state": "failed"}))
		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_pending_sends", nil))
		assert.Equal(t, 1.0, metricValue(t, reg, "chatsync_pagination_requests_total", map[string]string{"outcome": "skipped"}))
	})

	t.Run("A nil Metrics is a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.eventReceived(EventUserStatus)
			m.eventDropped(EventUserStatus, "malformed")
			m.request(EventGetFriends, 200, time.Millisecond)
			m.reconnect()
			m.state(StateConnected)
			m.pagination("ok")
			m.send("confirmed")
			m.replyLookup("cache", 1)
			m.setPending(0)
		})
	})
}
