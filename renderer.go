package chatsync

// Renderer draws the current view. Calls arrive serialized; implementations
// must not call back into the Synchronizer from inside a callback.
type Renderer interface {
	// Clear empties the message area before a new view is drawn.
	Clear()
	// DisplayMessage inserts m directly after the displayed message afterID,
	// or at the top when afterID is empty.
	DisplayMessage(m Message, afterID string)
	RemoveMessage(messageID string)
	UpdateMessage(m Message)
	// RekeyMessage swaps an optimistic entry for its confirmed version.
	RekeyMessage(tempID string, m Message)
	MarkFailed(tempID string)
	LinkReply(replierID string, target Message)
	MarkReplyUnavailable(replierID, targetID string)
	ShowStartOfChannel()
	ClearStartOfChannel()
	FocusMessage(messageID string)
}

// Notifier is told about messages the user is not currently looking at.
type Notifier interface {
	Notify(m Message)
}

// NopRenderer discards every call.
type NopRenderer struct{}

func (NopRenderer) Clear() {}
func (NopRenderer) DisplayMessage(Message, string) {}
func (NopRenderer) RemoveMessage(string) {}
func (NopRenderer) UpdateMessage(Message) {}
func (NopRenderer) RekeyMessage(string, Message) {}
func (NopRenderer) MarkFailed(string) {}
func (NopRenderer) LinkReply(string, Message) {}
func (NopRenderer) MarkReplyUnavailable(string, string) {}
func (NopRenderer) ShowStartOfChannel() {}
func (NopRenderer) ClearStartOfChannel() {}
func (NopRenderer) FocusMessage(string) {}

type nopNotifier struct{}

func (nopNotifier) Notify(Message) {}
