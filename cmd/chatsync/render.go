package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/liventcord/chatsync"
)

// termRenderer prints messages as lines. A terminal cannot insert above
// printed output, so every message is printed as it arrives and placement
// hints are ignored.
type termRenderer struct {
	mu       sync.Mutex
	w        io.Writer
	nicks    func(userID string) string
	printed  map[string]bool
	showTime bool
}

func newTermRenderer(w io.Writer, nicks func(string) string) *termRenderer {
	if nicks == nil {
		nicks = func(id string) string { return id }
	}
	return &termRenderer{w: w, nicks: nicks, printed: make(map[string]bool), showTime: true}
}

func (r *termRenderer) line(m chatsync.Message) string {
	var b strings.Builder
	if r.showTime {
		b.WriteString(m.CreatedAt.Local().Format(time.DateTime))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "<%s> %s", r.nicks(m.AuthorID), m.Content)
	if m.LastEdited != nil {
		b.WriteString(" (edited)")
	}
	if m.IsPinned {
		b.WriteString(" [pinned]")
	}
	for _, a := range m.Attachments {
		fmt.Fprintf(&b, " [file: %s]", a.Name)
	}
	return b.String()
}

func (r *termRenderer) printf(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *termRenderer) Clear() {
	r.mu.Lock()
	r.printed = make(map[string]bool)
	r.mu.Unlock()
}

func (r *termRenderer) DisplayMessage(m chatsync.Message, _ string) {
	r.mu.Lock()
	seen := r.printed[m.ID]
	r.printed[m.ID] = true
	r.mu.Unlock()
	if seen {
		return
	}
	marker := ""
	if m.Pending {
		marker = " …"
	}
	r.printf("%s%s\n", r.line(m), marker)
}

func (r *termRenderer) RemoveMessage(id string) { r.printf("  (message %s deleted)\n", id) }

func (r *termRenderer) UpdateMessage(m chatsync.Message) { r.printf("~ %s\n", r.line(m)) }

func (r *termRenderer) RekeyMessage(tempID string, m chatsync.Message) {
	r.mu.Lock()
	delete(r.printed, tempID)
	r.printed[m.ID] = true
	r.mu.Unlock()
	r.printf("  (delivered as %s)\n", m.ID)
}

func (r *termRenderer) MarkFailed(tempID string) { r.printf("  ! message %s failed to send\n", tempID) }

func (r *termRenderer) LinkReply(replierID string, target chatsync.Message) {
	content := target.Content
	if len(content) > 60 {
		content = content[:57] + "..."
	}
	r.printf("  ^ %s replies to <%s> %s\n", replierID, r.nicks(target.AuthorID), content)
}

func (r *termRenderer) MarkReplyUnavailable(replierID, targetID string) {
	r.printf("  ^ %s replies to a message that is unavailable (%s)\n", replierID, targetID)
}

func (r *termRenderer) ShowStartOfChannel() { r.printf("-- start of channel --\n") }

func (r *termRenderer) ClearStartOfChannel() {}

func (r *termRenderer) FocusMessage(id string) { r.printf("> focused %s\n", id) }

// bellNotifier rings the terminal bell for messages in other channels.
type bellNotifier struct {
	w     io.Writer
	nicks func(string) string
}

func (n bellNotifier) Notify(m chatsync.Message) {
	fmt.Fprintf(n.w, "\a* new message from %s in %s\n", n.nicks(m.AuthorID), m.ChannelID)
}
