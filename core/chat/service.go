package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/literate-limited/beeline/core"
)

type (
	// Service drives the optimistic send/reconcile protocol on top of the
	// shared socket. It is the only writer of the chat Log.
	Service struct {
		log        *Log
		socket     core.Socket
		logger     core.Logger
		userID     string
		ackTimeout time.Duration
	}
)

func NewService(log *Log, socket core.Socket, logger core.Logger, userID string, ackTimeout time.Duration) *Service {
	return &Service{
		log:        log,
		socket:     socket,
		logger:     logger,
		userID:     userID,
		ackTimeout: ackTimeout,
	}
}

// Log exposes the message log for read access.
func (svc *Service) Log() *Log { return svc.log }

// Send appends an optimistic pending entry and requests server
// acknowledgement in the background. The returned Message is the local
// placeholder; it is reconciled (or removed) once the ack or the broadcast
// echo arrives. Send never blocks on the network.
func (svc *Service) Send(chatID, content string) (Message, error) {
	in := SendInput{ChatID: chatID, Content: content}
	if err := in.Validate(); err != nil {
		return Message{}, err
	}

	msg := NewPendingMessage(in.ChatID, svc.userID, in.Content)
	svc.log.AppendPending(msg)
	go svc.awaitAck(msg)
	return msg, nil
}

// awaitAck waits for the server's direct acknowledgement of one send.
// On success the authoritative message replaces the pending entry (unless the
// broadcast echo beat it to it); on failure the pending entry is removed.
// There is no retry; the drop is surfaced through the logger only.
func (svc *Service) awaitAck(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), svc.ackTimeout)
	defer cancel()

	ack, err := svc.socket.EmitWithAck(ctx, core.EventSendMessage, core.SendMessagePayload{
		ChatID:  msg.ChatID,
		Content: msg.Content,
	})
	if err != nil || !ack.OK() {
		svc.log.RemovePending(msg.ChatID, msg.SenderID, msg.Content)
		svc.logger.Warn("chat: send failed, message dropped from history",
			errors.Wrapf(err, "send_message %s", msg.ChatID), ack.Message)
		return
	}

	var authoritative Message
	if err := json.Unmarshal(ack.Data, &authoritative); err != nil {
		svc.log.RemovePending(msg.ChatID, msg.SenderID, msg.Content)
		svc.logger.Error("chat: malformed send ack", errors.Wrap(err, "unmarshaling ack data"))
		return
	}
	svc.log.Apply(authoritative)
}

// HandleNewMessage reconciles a broadcast message into the log. The sender's
// own echo may arrive before, after, or instead of the direct ack; Log.Apply
// keeps the two paths convergent.
func (svc *Service) HandleNewMessage(payload json.RawMessage) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		svc.logger.Error("chat: malformed new_message payload", err)
		return
	}
	svc.log.Apply(msg)
}

// HandleCallEvent appends a synthesized call-start/end entry to the chat log.
func (svc *Service) HandleCallEvent(payload json.RawMessage) {
	var ev core.CallEventPayload
	if err := json.Unmarshal(payload, &ev); err != nil {
		svc.logger.Error("chat: malformed call_event payload", err)
		return
	}
	content := ev.Type
	if ev.Duration > 0 {
		content = fmt.Sprintf("%s (%.2f min)", ev.Type, ev.Duration)
	}
	svc.log.Apply(Message{
		ID:        fmt.Sprintf("call-%s-%d", ev.RoomID, ev.CreatedAt.UnixMilli()),
		ChatID:    ev.ChatID,
		SenderID:  ev.SenderID,
		Content:   content,
		CreatedAt: ev.CreatedAt,
	})
}
