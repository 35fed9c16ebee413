package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/core/call"
	"github.com/literate-limited/beeline/services/logsvc"
	"github.com/literate-limited/beeline/services/notifsvc"
	dummysock "github.com/literate-limited/beeline/services/socketsvc/dummy"
)

type stubResolver struct{}

func (stubResolver) GetOrCreateChat(_ context.Context, peerID string) (string, error) {
	return "chat-" + peerID, nil
}

type sessionTest struct {
	sess     *Session
	sock     *dummysock.Socket
	notifier interface{ Sent() []string }
}

func newSessionTest(t *testing.T, tweak func(conf *core.Config)) *sessionTest {
	t.Helper()

	conf := *core.Conf
	conf.Chat.CallNotifyDelay = 50 * time.Millisecond
	if tweak != nil {
		tweak(&conf)
	}

	token, err := SignToken("alice", "Alice", conf.SecretKey, time.Hour)
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}

	st := &sessionTest{sock: dummysock.Open()}
	notifier := notifsvc.NewConsoleServiceMock()
	st.notifier = notifier
	st.sess, err = New(token, Options{
		Conf:     &conf,
		Socket:   st.sock,
		Logger:   logsvc.NewConsoleLoggerMock(),
		Notifier: notifier,
		Resolver: stubResolver{},
	})
	if err != nil {
		t.Fatalf("creating session: %v", err)
	}
	t.Cleanup(func() { st.sess.Teardown() })
	return st
}

func joinedChats(t *testing.T, sock *dummysock.Socket) []string {
	t.Helper()
	var out []string
	for _, e := range sock.EmissionsOf(core.EventJoinChat) {
		var p core.JoinChatPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			t.Fatalf("unmarshaling join emission: %v", err)
		}
		out = append(out, p.ChatID)
	}
	return out
}

func TestSessionRejectsInvalidToken(t *testing.T) {
	_, err := New("not-a-token", Options{
		Conf:   core.Conf,
		Socket: dummysock.Open(),
		Logger: logsvc.NewConsoleLoggerMock(),
	})
	assert.Error(t, err)
}

func TestSessionClaims(t *testing.T) {
	st := newSessionTest(t, nil)
	assert.Equal(t, "alice", st.sess.UserID())
	assert.Equal(t, "Alice", st.sess.Username())
}

func TestSessionJoinChatIdempotent(t *testing.T) {
	st := newSessionTest(t, nil)

	st.sess.JoinChat("chat-1")
	st.sess.JoinChat("chat-1")
	st.sess.JoinChat("chat-1")

	assert.Equal(t, []string{"chat-1"}, joinedChats(t, st.sock))
}

func TestSessionRejoinsOnReconnect(t *testing.T) {
	st := newSessionTest(t, nil)

	st.sess.JoinChat("chat-b")
	st.sess.JoinChat("chat-a")
	st.sock.Receive(core.EventOnlineUsers, core.OnlineUsersPayload{UserIDs: []string{"bob"}})
	st.sock.Reset()

	st.sock.FireConnect()

	assert.Equal(t, []string{"chat-a", "chat-b"}, joinedChats(t, st.sock))
	// the stale presence set is dropped until the next snapshot arrives
	assert.Empty(t, st.sess.Presence().Online())
}

func TestSessionOpenChatJoinsRoom(t *testing.T) {
	st := newSessionTest(t, nil)

	win, err := st.sess.OpenChat(context.Background(), "bob")
	if err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	assert.Equal(t, "chat-bob", win.ChatID)
	assert.Equal(t, []string{"chat-bob"}, joinedChats(t, st.sock))

	// reopening must not emit a second join
	if _, err = st.sess.OpenChat(context.Background(), "bob"); err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	assert.Equal(t, []string{"chat-bob"}, joinedChats(t, st.sock))
}

func TestSessionPresenceRouting(t *testing.T) {
	st := newSessionTest(t, nil)

	st.sock.Receive(core.EventOnlineUsers, core.OnlineUsersPayload{UserIDs: []string{"bob", "carol"}})
	assert.Equal(t, []string{"bob", "carol"}, st.sess.Presence().Online())

	st.sock.Receive(core.EventUserOffline, core.PresencePayload{UserID: "bob"})
	st.sock.Receive(core.EventUserOnline, core.PresencePayload{UserID: "dave"})
	assert.Equal(t, []string{"carol", "dave"}, st.sess.Presence().Online())
}

func TestSessionSendMessageClearsTyping(t *testing.T) {
	st := newSessionTest(t, nil)

	st.sess.Typing().NotifyTyping("chat-1", true)
	if _, err := st.sess.SendMessage("chat-1", "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	emitted := st.sock.EmissionsOf(core.EventTyping)
	if assert.Len(t, emitted, 2) {
		var p core.TypingPayload
		assert.NoError(t, json.Unmarshal(emitted[1].Payload, &p))
		assert.False(t, p.IsTyping, "a completed send counts as stopped typing")
	}
}

func TestSessionIncomingCallNotification(t *testing.T) {
	st := newSessionTest(t, nil)

	st.sock.Receive(core.EventIncomingCall, core.IncomingCallPayload{
		ChatID:   "chat-1",
		CallerID: "bob",
		CallType: "video",
	})
	assert.Equal(t, call.StateIncomingRinging, st.sess.Calls().State("chat-1"))

	// the notification fires only after the delay, while still ringing
	assert.Empty(t, st.notifier.Sent())
	assert.Eventually(t, func() bool {
		return len(st.notifier.Sent()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionNotificationCancelledOnReject(t *testing.T) {
	st := newSessionTest(t, nil)

	st.sock.Receive(core.EventIncomingCall, core.IncomingCallPayload{
		ChatID:   "chat-1",
		CallerID: "bob",
		CallType: "audio",
	})
	if err := st.sess.Calls().Reject("chat-1"); err != nil {
		t.Fatalf("Reject() error = %v", err)
	}

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, st.notifier.Sent(), "a rejected call must not notify")
}

func TestSessionRejectionNoticeDoesNotNotify(t *testing.T) {
	st := newSessionTest(t, nil)

	// a rejection relayed back to the caller is not a fresh offer
	st.sock.Receive(core.EventIncomingCall, core.IncomingCallPayload{
		ChatID: "chat-1",
		Status: core.CallStatusRejected,
	})

	time.Sleep(150 * time.Millisecond)
	assert.Empty(t, st.notifier.Sent())
}
