package chatsync

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// ============================================================================
// Test Helpers
// ============================================================================

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// at returns a timestamp n minutes after epoch.
func at(n int) time.Time {
	return epoch.Add(time.Duration(n) * time.Minute)
}

func testMessage(guildID, channelID, id string, minute int) Message {
	return Message{
		ID:        id,
		GuildID:   guildID,
		ChannelID: channelID,
		AuthorID:  "u2",
		Content:   "message " + id,
		CreatedAt: at(minute),
	}
}

func replyMessage(guildID, channelID, id, target string, minute int) Message {
	m := testMessage(guildID, channelID, id, minute)
	m.ReplyToID = target
	return m
}

func messageIDs(msgs []Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}

// ── Test server ──────────────────────────────────────────

// testServer routes requests by "METHOD /path" and counts hits.
type testServer struct {
	*httptest.Server

	mu     sync.Mutex
	routes map[string]http.HandlerFunc
	hits   map[string]int
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		routes: make(map[string]http.HandlerFunc),
		hits:   make(map[string]int),
	}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		ts.mu.Lock()
		ts.hits[key]++
		h, ok := ts.routes[key]
		ts.mu.Unlock()
		if !ok {
			http.Error(w, `{"code":"NOT_FOUND","message":"no route"}`, http.StatusNotFound)
			return
		}
		h(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) handle(method, path string, h http.HandlerFunc) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.routes[method+" "+path] = h
}

func (ts *testServer) hitCount(method, path string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.hits[method+" "+path]
}

func (ts *testServer) client(opts ...ClientOption) *Client {
	opts = append([]ClientOption{
		WithToken("test-token"),
		WithRetryDelay(time.Millisecond),
		WithBootstrapInterval(time.Millisecond),
		WithLogger(discardLogger()),
	}, opts...)
	return NewClient(ts.URL, opts...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func historyPage(msgs []Message, oldest *time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, HistoryResponse{Messages: msgs, OldestMessageDate: oldest})
	}
}

func timePtr(t time.Time) *time.Time { return &t }

// ── Fake renderer ────────────────────────────────────────

// fakeRenderer records every call and keeps the drawn order the way a real
// message list would.
type fakeRenderer struct {
	mu          sync.Mutex
	order       []string
	calls       []string
	links       map[string][]string
	unavailable map[string]string
	failed      []string
	focused     []string
	clears      int
	startShown  bool
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		links:       make(map[string][]string),
		unavailable: make(map[string]string),
	}
}

func (r *fakeRenderer) record(format string, args ...any) {
	r.calls = append(r.calls, fmt.Sprintf(format, args...))
}

func (r *fakeRenderer) indexOf(id string) int {
	for i, v := range r.order {
		if v == id {
			return i
		}
	}
	return -1
}

func (r *fakeRenderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("clear")
	r.order = nil
	r.startShown = false
	r.clears++
}

func (r *fakeRenderer) DisplayMessage(m Message, afterID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("display %s after %q", m.ID, afterID)
	pos := 0
	if afterID != "" {
		pos = r.indexOf(afterID) + 1
	}
	r.order = append(r.order, "")
	copy(r.order[pos+1:], r.order[pos:])
	r.order[pos] = m.ID
}

func (r *fakeRenderer) RemoveMessage(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("remove %s", id)
	if i := r.indexOf(id); i >= 0 {
		r.order = append(r.order[:i], r.order[i+1:]...)
	}
}

func (r *fakeRenderer) UpdateMessage(m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("update %s", m.ID)
}

func (r *fakeRenderer) RekeyMessage(tempID string, m Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("rekey %s to %s", tempID, m.ID)
	if i := r.indexOf(tempID); i >= 0 {
		r.order[i] = m.ID
	}
}

func (r *fakeRenderer) MarkFailed(tempID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("failed %s", tempID)
	r.failed = append(r.failed, tempID)
}

func (r *fakeRenderer) LinkReply(replierID string, target Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("link %s to %s", replierID, target.ID)
	r.links[replierID] = append(r.links[replierID], target.ID)
}

func (r *fakeRenderer) MarkReplyUnavailable(replierID, targetID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("unavailable %s", replierID)
	r.unavailable[replierID] = targetID
}

func (r *fakeRenderer) ShowStartOfChannel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("start")
	r.startShown = true
}

func (r *fakeRenderer) ClearStartOfChannel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startShown = false
}

func (r *fakeRenderer) FocusMessage(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record("focus %s", id)
	r.focused = append(r.focused, id)
}

func (r *fakeRenderer) drawn() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.order...)
}

// count returns how many recorded calls equal call.
func (r *fakeRenderer) count(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (r *fakeRenderer) linksOf(replierID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.links[replierID]...)
}

func (r *fakeRenderer) unavailableTarget(replierID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.unavailable[replierID]
	return id, ok
}

func (r *fakeRenderer) startOfChannel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startShown
}

func (r *fakeRenderer) focusedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.focused...)
}

func (r *fakeRenderer) failedIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.failed...)
}

// ── Fake notifier ────────────────────────────────────────

type fakeNotifier struct {
	mu       sync.Mutex
	messages []Message
}

func (n *fakeNotifier) Notify(m Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
}

func (n *fakeNotifier) ids() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return messageIDs(n.messages)
}

// ── Synchronizer fixture ─────────────────────────────────

type syncFixture struct {
	srv      *testServer
	renderer *fakeRenderer
	notifier *fakeNotifier
	cache    *Cache
	sync     *Synchronizer
}

func newSyncFixture(t *testing.T, opts ...SyncOption) *syncFixture {
	t.Helper()
	f := &syncFixture{
		srv:      newTestServer(t),
		renderer: newFakeRenderer(),
		notifier: &fakeNotifier{},
		cache:    NewCache(),
	}
	opts = append([]SyncOption{
		WithSession(NewSession("me")),
		WithNotifier(f.notifier),
		WithSyncLogger(discardLogger()),
	}, opts...)
	f.sync = NewSynchronizer(f.srv.client(), f.cache, f.renderer, opts...)
	return f
}

const (
	guildHistoryPath = "/api/guilds/g1/channels/c1/messages"
	bulkReplyPath    = "/api/guilds/g1/channels/c1/messages/reply"
)
