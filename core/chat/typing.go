package chat

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/literate-limited/beeline/core"
)

// TypingCoordinator publishes the local user's typing state per chat and
// tracks which peers are typing in each chat.
//
// Publishing is debounced: the first keystroke emits `isTyping=true`, repeats
// within the window only reset the timer, and a "stopped typing" signal is
// emitted automatically after the timeout with no further keystrokes, or
// immediately when the input is cleared.
type TypingCoordinator struct {
	mu      sync.Mutex
	socket  core.Socket
	logger  core.Logger
	timeout time.Duration

	active map[string]bool        // chats where we last emitted isTyping=true
	timers map[string]*time.Timer // per-chat debounce
	peers  map[string]map[string]struct{}
}

func NewTypingCoordinator(socket core.Socket, logger core.Logger, timeout time.Duration) *TypingCoordinator {
	return &TypingCoordinator{
		socket:  socket,
		logger:  logger,
		timeout: timeout,
		active:  make(map[string]bool),
		timers:  make(map[string]*time.Timer),
		peers:   make(map[string]map[string]struct{}),
	}
}

// NotifyTyping is called on every keystroke. isTyping=false means the input
// was cleared to empty and the stop signal goes out immediately.
func (tc *TypingCoordinator) NotifyTyping(chatID string, isTyping bool) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if !isTyping {
		tc.stopLocked(chatID)
		return
	}

	if !tc.active[chatID] {
		tc.active[chatID] = true
		tc.emit(chatID, true)
	}
	// every keystroke resets the timer rather than re-emitting
	if t, ok := tc.timers[chatID]; ok {
		t.Stop()
	}
	tc.timers[chatID] = time.AfterFunc(tc.timeout, func() { tc.Stop(chatID) })
}

// Stop emits the "stopped typing" signal for a chat if one is owed, e.g. when
// a send completes.
func (tc *TypingCoordinator) Stop(chatID string) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.stopLocked(chatID)
}

func (tc *TypingCoordinator) stopLocked(chatID string) {
	if t, ok := tc.timers[chatID]; ok {
		t.Stop()
		delete(tc.timers, chatID)
	}
	if tc.active[chatID] {
		delete(tc.active, chatID)
		tc.emit(chatID, false)
	}
}

func (tc *TypingCoordinator) emit(chatID string, isTyping bool) {
	if err := tc.socket.Emit(core.EventTyping, core.TypingPayload{ChatID: chatID, IsTyping: isTyping}); err != nil {
		tc.logger.Debug("typing: emit failed", err)
	}
}

// HandlePeerTyping updates the per-chat set of currently typing peers.
// Both directions are idempotent.
func (tc *TypingCoordinator) HandlePeerTyping(payload json.RawMessage) {
	var p core.TypingPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		tc.logger.Error("typing: malformed payload", err)
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()
	if p.IsTyping {
		if tc.peers[p.ChatID] == nil {
			tc.peers[p.ChatID] = make(map[string]struct{})
		}
		tc.peers[p.ChatID][p.UserID] = struct{}{}
	} else if set, ok := tc.peers[p.ChatID]; ok {
		delete(set, p.UserID)
		if len(set) == 0 {
			delete(tc.peers, p.ChatID)
		}
	}
}

// TypingPeers returns the ids of peers currently typing in a chat.
func (tc *TypingCoordinator) TypingPeers(chatID string) []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	set := tc.peers[chatID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// Teardown cancels all pending debounce timers without emitting.
func (tc *TypingCoordinator) Teardown() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	for id, t := range tc.timers {
		t.Stop()
		delete(tc.timers, id)
	}
	tc.active = make(map[string]bool)
}
