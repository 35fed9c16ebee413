package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeResolver struct {
	calls map[string]int
}

func (r *fakeResolver) GetOrCreateChat(_ context.Context, peerID string) (string, error) {
	if r.calls == nil {
		r.calls = make(map[string]int)
	}
	r.calls[peerID]++
	return "chat-" + peerID, nil
}

func visiblePeers(wm *WindowManager) []string {
	var out []string
	for _, w := range wm.Visible() {
		out = append(out, w.PeerID)
	}
	return out
}

func TestWindowManagerCapacityEviction(t *testing.T) {
	ctx := context.Background()
	wm := NewWindowManager(&fakeResolver{}, 3)

	for _, peer := range []string{"a", "b", "c"} {
		if _, err := wm.Open(ctx, peer); err != nil {
			t.Fatalf("Open(%s): %v", peer, err)
		}
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, visiblePeers(wm))

	// the fourth open minimizes the least recently active window, never closes it
	if _, err := wm.Open(ctx, "d"); err != nil {
		t.Fatalf("Open(d): %v", err)
	}
	assert.ElementsMatch(t, []string{"b", "c", "d"}, visiblePeers(wm))
	win, ok := wm.Get("a")
	if assert.True(t, ok, "evicted window must stay open") {
		assert.True(t, win.Minimized)
	}
}

func TestWindowManagerTouchChangesEvictionOrder(t *testing.T) {
	ctx := context.Background()
	wm := NewWindowManager(&fakeResolver{}, 3)

	for _, peer := range []string{"a", "b", "c"} {
		wm.Open(ctx, peer)
	}
	wm.Touch("a") // b becomes least recently active

	wm.Open(ctx, "d")
	assert.ElementsMatch(t, []string{"a", "c", "d"}, visiblePeers(wm))
}

func TestWindowManagerReopenReactivates(t *testing.T) {
	ctx := context.Background()
	resolver := &fakeResolver{}
	wm := NewWindowManager(resolver, 3)

	for _, peer := range []string{"a", "b", "c", "d"} {
		wm.Open(ctx, peer)
	}
	// "a" was evicted; reopening restores it and evicts the current oldest
	win, err := wm.Open(ctx, "a")
	if err != nil {
		t.Fatalf("Open(a): %v", err)
	}
	assert.False(t, win.Minimized)
	assert.Equal(t, "chat-a", win.ChatID, "reopen must keep the resolved chat id")
	assert.Equal(t, 1, resolver.calls["a"], "reopen must not re-resolve")
	assert.ElementsMatch(t, []string{"a", "c", "d"}, visiblePeers(wm))
}

func TestWindowManagerMinimizeRestore(t *testing.T) {
	ctx := context.Background()
	wm := NewWindowManager(&fakeResolver{}, 2)

	wm.Open(ctx, "a")
	wm.Open(ctx, "b")
	if err := wm.Minimize("a"); err != nil {
		t.Fatalf("Minimize(a): %v", err)
	}
	wm.Open(ctx, "c")
	assert.ElementsMatch(t, []string{"b", "c"}, visiblePeers(wm))

	// restoring over capacity evicts the least recently active visible window
	if err := wm.Restore("a"); err != nil {
		t.Fatalf("Restore(a): %v", err)
	}
	assert.ElementsMatch(t, []string{"a", "c"}, visiblePeers(wm))

	assert.Equal(t, ErrWindowNotFound, wm.Minimize("nope"))
	assert.Equal(t, ErrWindowNotFound, wm.Restore("nope"))
}

func TestWindowManagerCloseLeavesLogAlone(t *testing.T) {
	ctx := context.Background()
	wm := NewWindowManager(&fakeResolver{}, 3)
	log := NewLog()

	wm.Open(ctx, "a")
	log.Apply(Message{ID: "m1", ChatID: "chat-a", SenderID: "a", Content: "hello"})

	wm.Close("a")
	if _, ok := wm.Get("a"); ok {
		t.Fatal("closed window still present")
	}
	assert.Len(t, log.Messages("chat-a"), 1, "closing a window must not touch chat history")
}
