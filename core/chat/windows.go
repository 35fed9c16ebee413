package chat

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var ErrWindowNotFound = errors.New("chat window not found")

type (
	// ChatResolver resolves (get-or-create) the chat id backing a conversation
	// with a peer. Implemented by the REST backend client; external to this
	// module.
	ChatResolver interface {
		GetOrCreateChat(ctx context.Context, peerID string) (string, error)
	}

	// Window is one open conversation with a peer. ChatID stays empty until it
	// is lazily resolved on first open.
	Window struct {
		PeerID    string
		ChatID    string
		Minimized bool

		// lastActivated is a monotonic counter, not a timestamp: it makes the
		// least-recently-active eviction rule unambiguous.
		lastActivated uint64
	}

	// WindowManager owns the set of open chat windows, one per peer, and
	// enforces the maximum-visible-window capacity: opening or restoring a
	// window beyond capacity minimizes (never closes) the least-recently-active
	// visible one.
	WindowManager struct {
		mu       sync.Mutex
		resolver ChatResolver
		capacity int
		counter  uint64
		windows  map[string]*Window // by peer id
	}
)

func NewWindowManager(resolver ChatResolver, capacity int) *WindowManager {
	return &WindowManager{
		resolver: resolver,
		capacity: capacity,
		windows:  make(map[string]*Window),
	}
}

// Open opens (or re-activates) the window for a peer and returns it. A window
// that already exists is un-minimized and moved to most-recent; a new window
// gets its chat id resolved through the backend.
func (wm *WindowManager) Open(ctx context.Context, peerID string) (Window, error) {
	wm.mu.Lock()
	if win, ok := wm.windows[peerID]; ok {
		win.Minimized = false
		wm.touch(win)
		wm.enforceCapacity()
		w := *win
		wm.mu.Unlock()
		return w, nil
	}
	wm.mu.Unlock()

	// resolve outside the lock; the round trip may suspend
	var chatID string
	if wm.resolver != nil {
		var err error
		if chatID, err = wm.resolver.GetOrCreateChat(ctx, peerID); err != nil {
			return Window{}, errors.Wrapf(err, "resolving chat for peer %s", peerID)
		}
	}

	wm.mu.Lock()
	defer wm.mu.Unlock()
	if win, ok := wm.windows[peerID]; ok { // raced with another open
		win.Minimized = false
		if win.ChatID == "" {
			win.ChatID = chatID
		}
		wm.touch(win)
		wm.enforceCapacity()
		return *win, nil
	}
	win := &Window{PeerID: peerID, ChatID: chatID}
	wm.touch(win)
	wm.windows[peerID] = win
	wm.enforceCapacity()
	return *win, nil
}

// Close removes the window entirely. Chat history is unaffected; the Log keeps
// message state independent of window lifecycle.
func (wm *WindowManager) Close(peerID string) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	delete(wm.windows, peerID)
}

// Minimize hides the window without destroying its state.
func (wm *WindowManager) Minimize(peerID string) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	win, ok := wm.windows[peerID]
	if !ok {
		return ErrWindowNotFound
	}
	win.Minimized = true
	return nil
}

// Restore makes a minimized window visible again, subject to the capacity rule.
func (wm *WindowManager) Restore(peerID string) error {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	win, ok := wm.windows[peerID]
	if !ok {
		return ErrWindowNotFound
	}
	win.Minimized = false
	wm.touch(win)
	wm.enforceCapacity()
	return nil
}

// Get returns the window for a peer.
func (wm *WindowManager) Get(peerID string) (Window, bool) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	win, ok := wm.windows[peerID]
	if !ok {
		return Window{}, false
	}
	return *win, true
}

// Visible returns the currently visible windows, most recently active first.
func (wm *WindowManager) Visible() []Window {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	out := make([]Window, 0, len(wm.windows))
	for _, win := range wm.windows {
		if !win.Minimized {
			out = append(out, *win)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lastActivated > out[j].lastActivated })
	return out
}

// Windows returns all open windows, most recently active first.
func (wm *WindowManager) Windows() []Window {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	out := make([]Window, 0, len(wm.windows))
	for _, win := range wm.windows {
		out = append(out, *win)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].lastActivated > out[j].lastActivated })
	return out
}

// Touch marks a window as most recently active, e.g. when the user focuses it.
func (wm *WindowManager) Touch(peerID string) {
	wm.mu.Lock()
	defer wm.mu.Unlock()
	if win, ok := wm.windows[peerID]; ok {
		wm.touch(win)
	}
}

func (wm *WindowManager) touch(win *Window) {
	wm.counter++
	win.lastActivated = wm.counter
}

// enforceCapacity minimizes least-recently-active visible windows until the
// visible count fits. Callers must hold the lock.
func (wm *WindowManager) enforceCapacity() {
	if wm.capacity <= 0 {
		return
	}
	for {
		var visible []*Window
		for _, win := range wm.windows {
			if !win.Minimized {
				visible = append(visible, win)
			}
		}
		if len(visible) <= wm.capacity {
			return
		}
		oldest := visible[0]
		for _, win := range visible[1:] {
			if win.lastActivated < oldest.lastActivated {
				oldest = win
			}
		}
		oldest.Minimized = true
	}
}
