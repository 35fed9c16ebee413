package echostub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/core/chat"
	"github.com/literate-limited/beeline/services/socketsvc"
)

type (
	client struct {
		id   string
		conn *websocket.Conn
		send chan []byte
	}

	// hub relays the full signaling event surface between connected clients:
	// room membership, message echo with server-assigned ids, typing, presence
	// and call signaling. State is in-memory only; this is a development stub,
	// not the production backend.
	hub struct {
		opts Options

		mu      sync.Mutex
		clients map[string]*client            // by user id
		rooms   map[string]map[string]*client // chat id -> members by user id
	}
)

func newHub(opts Options) *hub {
	return &hub{
		opts:    opts,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]*client),
	}
}

func (h *hub) register(userID string, conn *websocket.Conn) *client {
	c := &client{id: userID, conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	h.clients[userID] = c
	online := make([]string, 0, len(h.clients))
	for id := range h.clients {
		online = append(online, id)
	}
	h.mu.Unlock()

	go c.writePump()

	// presence snapshot to the newcomer, delta to everyone else
	h.push(c, core.EventOnlineUsers, core.OnlineUsersPayload{UserIDs: online})
	h.broadcastExcept(userID, core.EventUserOnline, core.PresencePayload{UserID: userID})
	return c
}

func (h *hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	for _, members := range h.rooms {
		delete(members, c.id)
	}
	h.mu.Unlock()

	close(c.send)
	h.broadcastExcept(c.id, core.EventUserOffline, core.PresencePayload{UserID: c.id})
}

// readPump dispatches inbound envelopes until the connection drops.
func (h *hub) readPump(c *client) {
	defer h.unregister(c)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var env socketsvc.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		h.dispatch(c, env)
	}
}

func (h *hub) dispatch(c *client, env socketsvc.Envelope) {
	switch env.Event {
	case core.EventJoinChat:
		var p core.JoinChatPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			h.join(p.ChatID, c)
		}

	case core.EventSendMessage:
		var p core.SendMessagePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.ack(c, env.ID, core.Ack{Status: "error", Message: "malformed payload"})
			return
		}
		if h.opts.DropSendAcks {
			return // the message is lost; the sender's ack wait times out
		}
		msg := chat.Message{
			ID:        uuid.NewString(),
			ChatID:    p.ChatID,
			SenderID:  c.id,
			Content:   p.Content,
			CreatedAt: time.Now().UTC(),
		}
		data, _ := json.Marshal(msg)
		h.ack(c, env.ID, core.Ack{Status: core.AckStatusOK, Data: data})
		h.broadcastRoom(p.ChatID, core.EventNewMessage, msg)

	case core.EventTyping:
		var p core.TypingPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			p.UserID = c.id
			h.broadcastRoomExcept(p.ChatID, c.id, core.EventTyping, p)
		}

	case core.EventAudioCallStarted, core.EventVideoCallStarted:
		var p core.CallStartPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.ack(c, env.ID, core.Ack{Status: "error", Message: "malformed payload"})
			return
		}
		callType := "audio"
		if env.Event == core.EventVideoCallStarted {
			callType = "video"
		}
		h.mu.Lock()
		receiver, online := h.clients[p.ReceiverID]
		h.mu.Unlock()
		if !online {
			h.ack(c, env.ID, core.Ack{Status: "error", Message: "receiver unavailable"})
			return
		}
		h.ack(c, env.ID, core.Ack{Status: core.AckStatusOK})
		h.push(receiver, core.EventIncomingCall, core.IncomingCallPayload{
			SenderID:   c.id,
			CallerID:   c.id,
			ReceiverID: p.ReceiverID,
			ChatID:     p.ChatID,
			CallType:   callType,
		})

	case core.EventCallAccepted:
		var p core.CallAcceptPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			h.ack(c, env.ID, core.Ack{Status: "error", Message: "malformed payload"})
			return
		}
		h.ack(c, env.ID, core.Ack{Status: core.AckStatusOK})
		h.mu.Lock()
		caller, ok := h.clients[p.CallerID]
		h.mu.Unlock()
		if ok {
			h.push(caller, core.EventCallAccepted, p)
		}

	case core.EventAudioCallEnded, core.EventVideoCallEnded:
		var p core.CallEndPayload
		if err := json.Unmarshal(env.Payload, &p); err == nil {
			h.broadcastRoom(p.ChatID, core.EventCallEvent, core.CallEventPayload{
				Type:      env.Event,
				ChatID:    p.ChatID,
				SenderID:  c.id,
				RoomID:    p.RoomID,
				Duration:  p.Duration,
				CreatedAt: time.Now().UTC(),
			})
		}
	}
}

func (h *hub) join(chatID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[chatID] == nil {
		h.rooms[chatID] = make(map[string]*client)
	}
	h.rooms[chatID][c.id] = c
}

func (h *hub) ack(c *client, id string, ack core.Ack) {
	if id == "" {
		return
	}
	h.send(c, socketsvc.Envelope{
		Event:   "ack",
		ID:      id,
		Status:  ack.Status,
		Message: ack.Message,
		Data:    ack.Data,
	})
}

func (h *hub) push(c *client, event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.send(c, socketsvc.Envelope{Event: event, Payload: data})
}

func (h *hub) send(c *client, env socketsvc.Envelope) {
	data, _ := json.Marshal(env)
	select {
	case c.send <- data:
	default: // slow client; drop
	}
}

func (h *hub) broadcastRoom(chatID, event string, payload interface{}) {
	h.broadcastRoomExcept(chatID, "", event, payload)
}

func (h *hub) broadcastRoomExcept(chatID, exceptID, event string, payload interface{}) {
	h.mu.Lock()
	members := make([]*client, 0, len(h.rooms[chatID]))
	for id, m := range h.rooms[chatID] {
		if id != exceptID {
			members = append(members, m)
		}
	}
	h.mu.Unlock()
	for _, m := range members {
		h.push(m, event, payload)
	}
}

func (h *hub) broadcastExcept(exceptID, event string, payload interface{}) {
	h.mu.Lock()
	others := make([]*client, 0, len(h.clients))
	for id, m := range h.clients {
		if id != exceptID {
			others = append(others, m)
		}
	}
	h.mu.Unlock()
	for _, m := range others {
		h.push(m, event, payload)
	}
}

func (c *client) writePump() {
	for data := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, data)
	}
}
