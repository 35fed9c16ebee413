package socketsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/services/logsvc"
)

// wsTestServer is a minimal websocket peer for exercising the client: it
// records inbound envelopes and answers emissions through a scriptable Reply.
type wsTestServer struct {
	*httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []Envelope
	auth     []string

	// Reply scripts the response to an inbound envelope; nil means ack ok
	// when an id is present.
	Reply func(conn *websocket.Conn, env Envelope)
}

func newWSTestServer(t *testing.T) *wsTestServer {
	t.Helper()
	s := &wsTestServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrading: %v", err)
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.auth = append(s.auth, r.Header.Get("Authorization"))
		s.mu.Unlock()

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			s.mu.Lock()
			s.received = append(s.received, env)
			reply := s.Reply
			s.mu.Unlock()

			if reply != nil {
				reply(conn, env)
			} else if env.ID != "" {
				_ = conn.WriteJSON(Envelope{Event: "ack", ID: env.ID, Status: core.AckStatusOK})
			}
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(s.Server.URL, "http")
}

func (s *wsTestServer) push(env Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.WriteJSON(env)
	}
}

func (s *wsTestServer) dropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		_ = conn.Close()
	}
	s.conns = nil
}

func (s *wsTestServer) receivedOf(event string) []Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Envelope
	for _, env := range s.received {
		if env.Event == event {
			out = append(out, env)
		}
	}
	return out
}

func newTestClient(t *testing.T, srv *wsTestServer) *Client {
	t.Helper()
	c := NewClient(Options{
		URL:         srv.url(),
		AuthToken:   "test-token",
		Logger:      logsvc.NewConsoleLoggerMock(),
		MaxInterval: 100 * time.Millisecond,
	})
	t.Cleanup(func() { c.Close() })
	return c
}

func waitConnected(t *testing.T, c *Client) {
	t.Helper()
	assert.Eventually(t, c.Connected, 2*time.Second, 10*time.Millisecond, "client never connected")
}

func TestClientConnectSendsBearerToken(t *testing.T) {
	srv := newWSTestServer(t)
	c := newTestClient(t, srv)

	c.Connect()
	waitConnected(t, c)

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if assert.Len(t, srv.auth, 1) {
		assert.Equal(t, "Bearer test-token", srv.auth[0])
	}
}

func TestClientEmitNotConnected(t *testing.T) {
	srv := newWSTestServer(t)
	c := newTestClient(t, srv)

	err := c.Emit("typing", core.TypingPayload{ChatID: "chat-1", IsTyping: true})
	assert.Equal(t, core.ErrNotConnected, err)
}

func TestClientEmitAckRoundTrip(t *testing.T) {
	srv := newWSTestServer(t)
	srv.Reply = func(conn *websocket.Conn, env Envelope) {
		if env.ID == "" {
			return
		}
		data, _ := json.Marshal(map[string]string{"id": "msg-1"})
		_ = conn.WriteJSON(Envelope{Event: "ack", ID: env.ID, Status: core.AckStatusOK, Data: data})
	}
	c := newTestClient(t, srv)
	c.Connect()
	waitConnected(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ack, err := c.EmitWithAck(ctx, "send_message", core.SendMessagePayload{ChatID: "chat-1", Content: "hi"})
	if err != nil {
		t.Fatalf("EmitWithAck() error = %v", err)
	}
	assert.True(t, ack.OK())

	var data map[string]string
	assert.NoError(t, json.Unmarshal(ack.Data, &data))
	assert.Equal(t, "msg-1", data["id"])

	got := srv.receivedOf("send_message")
	if assert.Len(t, got, 1) {
		assert.NotEmpty(t, got[0].ID, "emissions awaiting an ack must carry a correlation id")
	}
}

func TestClientEmitWithAckTimeout(t *testing.T) {
	srv := newWSTestServer(t)
	srv.Reply = func(*websocket.Conn, Envelope) {} // swallow everything
	c := newTestClient(t, srv)
	c.Connect()
	waitConnected(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.EmitWithAck(ctx, "send_message", core.SendMessagePayload{ChatID: "chat-1", Content: "hi"})
	assert.Error(t, err)
}

func TestClientDispatchesInboundEvents(t *testing.T) {
	srv := newWSTestServer(t)
	c := newTestClient(t, srv)

	got := make(chan core.TypingPayload, 1)
	c.Handle(core.EventTyping, func(payload json.RawMessage) {
		var p core.TypingPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			got <- p
		}
	})
	c.Connect()
	waitConnected(t, c)

	data, _ := json.Marshal(core.TypingPayload{ChatID: "chat-1", UserID: "bob", IsTyping: true})
	srv.push(Envelope{Event: core.EventTyping, Payload: data})

	select {
	case p := <-got:
		assert.Equal(t, "bob", p.UserID)
		assert.True(t, p.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestClientReconnects(t *testing.T) {
	srv := newWSTestServer(t)
	c := newTestClient(t, srv)

	var mu sync.Mutex
	connects := 0
	c.OnConnect(func() {
		mu.Lock()
		connects++
		mu.Unlock()
	})
	c.Connect()
	waitConnected(t, c)

	srv.dropConnections()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return connects >= 2
	}, 5*time.Second, 10*time.Millisecond, "client never reconnected")
	waitConnected(t, c)
}

func TestClientCloseStopsReconnecting(t *testing.T) {
	srv := newWSTestServer(t)
	c := newTestClient(t, srv)
	c.Connect()
	waitConnected(t, c)

	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close()) // idempotent
	assert.False(t, c.Connected())

	time.Sleep(200 * time.Millisecond)
	srv.mu.Lock()
	dials := len(srv.auth)
	srv.mu.Unlock()
	assert.Equal(t, 1, dials, "closed client must not redial")
}
