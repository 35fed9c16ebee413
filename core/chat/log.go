package chat

import "sync"

// ApplyResult reports how an authoritative message was merged into the log.
type ApplyResult int

const (
	// ApplyIgnored means the authoritative id was already present.
	ApplyIgnored ApplyResult = iota
	// ApplyReplaced means a pending placeholder was resolved in place.
	ApplyReplaced
	// ApplyAppended means the message was new to this log.
	ApplyAppended
)

// Log holds the ordered message log of every chat the session has seen. It is
// the single owner of message state; callers only ever get copies.
//
// Reconciliation is commutative: for one logical message, any arrival order of
// {optimistic insert, ack, broadcast echo} converges on exactly one entry
// carrying the authoritative id. The ack payload does not echo the temporary id
// back, so pending placeholders are matched by (chatID, senderID, content) on
// the first pending entry instead.
type Log struct {
	mu    sync.RWMutex
	chats map[string][]Message
}

func NewLog() *Log {
	return &Log{chats: make(map[string][]Message)}
}

// Messages returns a copy of a chat's ordered log.
func (l *Log) Messages(chatID string) []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	msgs := l.chats[chatID]
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// AppendPending appends an optimistic entry. If an identical pending entry
// (same sender and content) is already awaiting reconciliation, no second row
// is added and false is returned; the caller may still queue the send.
func (l *Log) AppendPending(msg Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, m := range l.chats[msg.ChatID] {
		if m.Pending && m.SenderID == msg.SenderID && m.Content == msg.Content {
			return false
		}
	}
	l.chats[msg.ChatID] = append(l.chats[msg.ChatID], msg)
	return true
}

// Apply merges an authoritative (server-confirmed) message into the log. It
// serves both the ack and the broadcast path so the two cannot produce two rows
// for one logical message:
//  1. the authoritative id is already present -> ignored;
//  2. a pending placeholder matches by (chatID, senderID, content) -> replaced
//     in place, preserving its ordering position;
//  3. otherwise -> appended.
func (l *Log) Apply(msg Message) ApplyResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.chats[msg.ChatID]
	for _, m := range msgs {
		if m.ID == msg.ID {
			return ApplyIgnored
		}
	}
	for i, m := range msgs {
		if m.Pending && m.SenderID == msg.SenderID && m.Content == msg.Content {
			msg.Pending = false
			msgs[i] = msg
			return ApplyReplaced
		}
	}
	msg.Pending = false
	l.chats[msg.ChatID] = append(msgs, msg)
	return ApplyAppended
}

// RemovePending drops the first pending entry matching (chatID, senderID,
// content) from the log. Used when the server rejects a send; the message
// disappears from history.
func (l *Log) RemovePending(chatID, senderID, content string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	msgs := l.chats[chatID]
	for i, m := range msgs {
		if m.Pending && m.SenderID == senderID && m.Content == content {
			l.chats[chatID] = append(msgs[:i:i], msgs[i+1:]...)
			return true
		}
	}
	return false
}

// HasPending reports whether any entry of the chat is still awaiting
// reconciliation.
func (l *Log) HasPending(chatID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, m := range l.chats[chatID] {
		if m.Pending {
			return true
		}
	}
	return false
}
