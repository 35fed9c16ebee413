package session

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/literate-limited/beeline/core"
	"github.com/literate-limited/beeline/core/call"
	"github.com/literate-limited/beeline/core/chat"
)

type (
	Options struct {
		// Conf defaults to core.Conf.
		Conf     *core.Config
		Socket   core.Socket
		Logger   core.Logger
		Notifier core.Notifier
		// Resolver resolves peer -> chat id through the REST backend. May be
		// nil; windows then open without a chat id.
		Resolver chat.ChatResolver
		// Conference commands the embedded conferencing widget. May be nil.
		Conference call.Conference
		// Alert surfaces blocking call errors to the user. Defaults to the
		// logger.
		Alert func(msg string)
	}

	// Session is the explicit service object owning the realtime core of one
	// authenticated user: the shared socket, the message log, windows,
	// typing, presence and call signaling. It is created by the top-level
	// bootstrap and passed by reference to whatever needs it; nothing is
	// looked up through ambient globals.
	Session struct {
		conf     *core.Config
		socket   core.Socket
		logger   core.Logger
		notifier core.Notifier
		claims   *Claims

		chatSvc  *chat.Service
		windows  *chat.WindowManager
		typing   *chat.TypingCoordinator
		presence *chat.PresenceTracker
		calls    *call.Machine

		mu          sync.Mutex
		joined      map[string]struct{}
		notifTimers map[string]*time.Timer
	}
)

// New authenticates the token, wires every component onto the shared socket
// and registers the inbound event routes. The socket is not connected yet;
// call Connect.
func New(authToken string, opts Options) (*Session, error) {
	conf := opts.Conf
	if conf == nil {
		conf = core.Conf
	}
	claims, err := ParseToken(authToken, conf.SecretKey)
	if err != nil {
		return nil, err
	}

	alert := opts.Alert
	if alert == nil {
		alert = func(msg string) { opts.Logger.Warn("alert: " + msg) }
	}

	s := &Session{
		conf:        conf,
		socket:      opts.Socket,
		logger:      opts.Logger,
		notifier:    opts.Notifier,
		claims:      claims,
		joined:      make(map[string]struct{}),
		notifTimers: make(map[string]*time.Timer),
	}

	log := chat.NewLog()
	s.chatSvc = chat.NewService(log, opts.Socket, opts.Logger, claims.Subject, conf.Socket.AckTimeout)
	s.windows = chat.NewWindowManager(opts.Resolver, conf.Chat.MaxVisibleWindows)
	s.typing = chat.NewTypingCoordinator(opts.Socket, opts.Logger, conf.Chat.TypingTimeout)
	s.presence = chat.NewPresenceTracker()
	s.calls = call.NewMachine(call.Options{
		Socket:     opts.Socket,
		Logger:     opts.Logger,
		Conference: opts.Conference,
		Alert:      alert,
		OnIdle:     s.cancelCallNotification,
		UserID:     claims.Subject,
		AckTimeout: conf.Socket.AckTimeout,
	})

	s.route()
	return s, nil
}

// route registers every inbound event with its owning component.
func (s *Session) route() {
	s.socket.Handle(core.EventNewMessage, s.chatSvc.HandleNewMessage)
	s.socket.Handle(core.EventCallEvent, s.chatSvc.HandleCallEvent)
	s.socket.Handle(core.EventTyping, s.typing.HandlePeerTyping)
	s.socket.Handle(core.EventCallAccepted, s.calls.HandleAccepted)
	s.socket.Handle(core.EventIncomingCall, s.handleIncomingCall)

	s.socket.Handle(core.EventUserOnline, func(payload json.RawMessage) {
		var p core.PresencePayload
		if err := json.Unmarshal(payload, &p); err == nil {
			s.presence.SetOnline(p.UserID)
		}
	})
	s.socket.Handle(core.EventUserOffline, func(payload json.RawMessage) {
		var p core.PresencePayload
		if err := json.Unmarshal(payload, &p); err == nil {
			s.presence.SetOffline(p.UserID)
		}
	})
	s.socket.Handle(core.EventOnlineUsers, func(payload json.RawMessage) {
		var p core.OnlineUsersPayload
		if err := json.Unmarshal(payload, &p); err == nil {
			s.presence.SetSnapshot(p.UserIDs)
		}
	})

	s.socket.OnConnect(s.handleConnect)
}

// handleConnect restores state lost with the transport: the presence set is
// rebuilt from the next snapshot, and every previously joined chat room is
// re-joined.
func (s *Session) handleConnect() {
	s.presence.Clear()

	s.mu.Lock()
	chatIDs := make([]string, 0, len(s.joined))
	for id := range s.joined {
		chatIDs = append(chatIDs, id)
	}
	s.mu.Unlock()
	sort.Strings(chatIDs)

	for _, id := range chatIDs {
		if err := s.socket.Emit(core.EventJoinChat, core.JoinChatPayload{ChatID: id}); err != nil {
			s.logger.Warn("session: rejoin failed", id, err)
		}
	}
}

func (s *Session) handleIncomingCall(payload json.RawMessage) {
	var p core.IncomingCallPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.logger.Error("session: malformed incoming_call payload", err)
		return
	}
	s.calls.HandleIncoming(payload)
	if p.Status == "" && s.notifier != nil {
		s.scheduleCallNotification(p.ChatID, p.CallerID, p.CallType)
	}
}

// scheduleCallNotification shows a system notification a fixed delay after an
// incoming call, so it never races the in-app prompt. It is cancelled if the
// call reaches a terminal state first.
func (s *Session) scheduleCallNotification(chatID, callerID, callType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.notifTimers[chatID]; ok {
		t.Stop()
	}
	s.notifTimers[chatID] = time.AfterFunc(s.conf.Chat.CallNotifyDelay, func() {
		s.mu.Lock()
		delete(s.notifTimers, chatID)
		s.mu.Unlock()
		if s.calls.State(chatID) == call.StateIncomingRinging {
			s.notifier.Notify("Incoming "+callType+" call", "from "+callerID)
		}
	})
}

func (s *Session) cancelCallNotification(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.notifTimers[chatID]; ok {
		t.Stop()
		delete(s.notifTimers, chatID)
	}
}

// Connect starts the socket's connect loop. Transport errors are recovered
// internally; observe Connected.
func (s *Session) Connect() { s.socket.Connect() }

func (s *Session) Connected() bool { return s.socket.Connected() }

// JoinChat subscribes to a chat room exactly once. Joined ids are remembered
// so room membership survives transport resets.
func (s *Session) JoinChat(chatID string) {
	s.mu.Lock()
	if _, ok := s.joined[chatID]; ok {
		s.mu.Unlock()
		return
	}
	s.joined[chatID] = struct{}{}
	s.mu.Unlock()

	if err := s.socket.Emit(core.EventJoinChat, core.JoinChatPayload{ChatID: chatID}); err != nil {
		// not connected yet; the join is replayed on connect
		s.logger.Debug("session: join deferred", chatID, err)
	}
}

// OpenChat opens (or re-activates) the window for a peer and joins its room.
func (s *Session) OpenChat(ctx context.Context, peerID string) (chat.Window, error) {
	win, err := s.windows.Open(ctx, peerID)
	if err != nil {
		return chat.Window{}, err
	}
	if win.ChatID != "" {
		s.JoinChat(win.ChatID)
	}
	return win, nil
}

// SendMessage sends optimistically and clears the local typing state; a
// completed send always counts as "stopped typing".
func (s *Session) SendMessage(chatID, content string) (chat.Message, error) {
	msg, err := s.chatSvc.Send(chatID, content)
	if err != nil {
		return chat.Message{}, err
	}
	s.typing.Stop(chatID)
	return msg, nil
}

// Component access for the rendering layer; all state is read-only copies.

func (s *Session) UserID() string                  { return s.claims.Subject }
func (s *Session) Username() string                { return s.claims.Username }
func (s *Session) Chat() *chat.Service             { return s.chatSvc }
func (s *Session) Windows() *chat.WindowManager    { return s.windows }
func (s *Session) Typing() *chat.TypingCoordinator { return s.typing }
func (s *Session) Presence() *chat.PresenceTracker { return s.presence }
func (s *Session) Calls() *call.Machine            { return s.calls }

// Teardown disconnects the socket and releases every timer and listener.
func (s *Session) Teardown() error {
	s.typing.Teardown()

	s.mu.Lock()
	for id, t := range s.notifTimers {
		t.Stop()
		delete(s.notifTimers, id)
	}
	s.mu.Unlock()

	return s.socket.Close()
}
