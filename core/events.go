package core

import "time"

// Socket event surface shared by the client session and the signaling server.
const (
	// outbound
	EventJoinChat         = "join_chat"
	EventSendMessage      = "send_message"
	EventTyping           = "typing"
	EventVideoCallStarted = "video_call_started"
	EventAudioCallStarted = "audio_call_started"
	EventVideoCallEnded   = "video_call_ended"
	EventAudioCallEnded   = "audio_call_ended"
	EventCallAccepted     = "call_accepted"

	// inbound
	EventNewMessage   = "new_message"
	EventUserOnline   = "user_online"
	EventUserOffline  = "user_offline"
	EventOnlineUsers  = "online_users"
	EventIncomingCall = "incoming_call"
	EventCallEvent    = "call_event"
)

// CallStatusRejected marks an incoming_call event that is a rejection notice
// relayed back to the original caller rather than a fresh offer.
const CallStatusRejected = "rejected"

type (
	JoinChatPayload struct {
		ChatID string `json:"chatId"`
	}

	SendMessagePayload struct {
		ChatID  string `json:"chatId"`
		Content string `json:"content"`
	}

	TypingPayload struct {
		ChatID   string `json:"chatId"`
		UserID   string `json:"userId,omitempty"` // set by the server on relay
		IsTyping bool   `json:"isTyping"`
	}

	PresencePayload struct {
		UserID string `json:"userId"`
	}

	OnlineUsersPayload struct {
		UserIDs []string `json:"userIds"`
	}

	CallStartPayload struct {
		ChatID     string `json:"chatId"`
		RoomID     string `json:"roomId"`
		ReceiverID string `json:"receiverId"`
	}

	CallEndPayload struct {
		ChatID   string  `json:"chatId"`
		RoomID   string  `json:"roomId"`
		Duration float64 `json:"duration"` // minutes, 2 decimals
	}

	CallAcceptPayload struct {
		ChatID   string `json:"chatId"`
		RoomID   string `json:"roomId"`
		CallerID string `json:"callerId"`
		Type     string `json:"type"`
	}

	IncomingCallPayload struct {
		SenderID   string `json:"senderId"`
		CallerID   string `json:"callerId"`
		ReceiverID string `json:"receiverId"`
		ChatID     string `json:"chatId"`
		CallType   string `json:"callType"`
		Status     string `json:"status,omitempty"`
	}

	CallEventPayload struct {
		Type      string    `json:"type"`
		ChatID    string    `json:"chatId"`
		SenderID  string    `json:"senderId"`
		RoomID    string    `json:"roomId"`
		Duration  float64   `json:"duration,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
	}
)
