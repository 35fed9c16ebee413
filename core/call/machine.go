package call

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/literate-limited/beeline/core"
)

var nowFunc = time.Now // mockable

type (
	// Conference is the embedded third-party conferencing widget, a black box
	// that accepts exactly one command. Its lifecycle notifications come back
	// through ConferenceJoined, ConferenceLeft and ReadyToClose.
	Conference interface {
		Hangup(chatID string)
	}

	Options struct {
		Socket     core.Socket
		Logger     core.Logger
		Conference Conference
		// Alert surfaces call failures and peer rejections to the local user as
		// a blocking message.
		Alert func(msg string)
		// OnIdle is invoked whenever a chat's call session clears back to IDLE,
		// so pending call UI (prompts, delayed notifications) can be cancelled.
		OnIdle     func(chatID string)
		UserID     string
		AckTimeout time.Duration
	}

	// Machine coordinates call signaling per chat: initiation, incoming offer,
	// accept/reject, active duration tracking and termination. It exclusively
	// owns call session state; callers issue commands and read snapshots.
	Machine struct {
		opts Options

		mu       sync.Mutex
		sessions map[string]*Session // by chat id
	}
)

func NewMachine(opts Options) *Machine {
	if opts.Alert == nil {
		opts.Alert = func(string) {}
	}
	return &Machine{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// State returns the call state for a chat; IDLE when no session exists.
func (m *Machine) State(chatID string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		return sess.State
	}
	return StateIdle
}

// Session returns a snapshot of the chat's call session, if any.
func (m *Machine) Session(chatID string) (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok {
		return *sess, true
	}
	return Session{}, false
}

// StartCall initiates an outgoing call. A second start on a chat with a call
// already in flight is rejected locally without contacting the server.
func (m *Machine) StartCall(ctx context.Context, chatID, peerID string, callType Type) error {
	if peerID == m.opts.UserID {
		return core.NewValidationError(ErrSelfCall,
			core.FieldError{Field: "receiverId", Error: ErrSelfCall.Error()})
	}

	m.mu.Lock()
	if _, ok := m.sessions[chatID]; ok {
		m.mu.Unlock()
		return ErrCallInProgress
	}
	sess := &Session{
		ChatID:   chatID,
		RoomID:   RoomID(chatID),
		CallType: callType,
		PeerID:   peerID,
	}
	if err := sess.transition(StateOutgoingRinging); err != nil {
		m.mu.Unlock()
		return err
	}
	m.sessions[chatID] = sess
	m.mu.Unlock()

	ack, err := m.opts.Socket.EmitWithAck(ctx, callType.StartEvent(), core.CallStartPayload{
		ChatID:     chatID,
		RoomID:     sess.RoomID,
		ReceiverID: peerID,
	})
	if err != nil || !ack.OK() {
		m.clearSession(chatID)
		reason := ack.Message
		if reason == "" {
			reason = "could not reach the signaling server"
		}
		m.opts.Alert("Call failed: " + reason)
		if err == nil {
			err = errors.Errorf("call start rejected: %s", reason)
		}
		return errors.Wrapf(err, "starting %s call on chat %s", callType, chatID)
	}
	return nil
}

// HandleIncoming processes an inbound incoming_call event: either a fresh call
// offer for this user, or a rejection notice relayed back to the original
// caller (status "rejected"), which clears any pending call UI straight to
// IDLE.
func (m *Machine) HandleIncoming(payload json.RawMessage) {
	var p core.IncomingCallPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.opts.Logger.Error("call: malformed incoming_call payload", err)
		return
	}

	if p.Status == core.CallStatusRejected {
		m.mu.Lock()
		sess, ok := m.sessions[p.ChatID]
		wasOutgoing := ok && sess.State == StateOutgoingRinging
		m.mu.Unlock()
		if !ok {
			return
		}
		m.clearSession(p.ChatID)
		if wasOutgoing {
			// the rejection reason belongs to the caller, not the callee
			m.opts.Alert("Call rejected")
		}
		return
	}

	m.mu.Lock()
	if _, ok := m.sessions[p.ChatID]; ok {
		m.mu.Unlock()
		m.opts.Logger.Warn("call: offer ignored, session already in flight", p.ChatID)
		return
	}
	sess := &Session{
		ChatID:   p.ChatID,
		RoomID:   RoomID(p.ChatID),
		CallType: Type(p.CallType),
		PeerID:   p.CallerID,
	}
	if err := sess.transition(StateIncomingRinging); err != nil {
		m.mu.Unlock()
		m.opts.Logger.Error("call: incoming offer", err)
		return
	}
	m.sessions[p.ChatID] = sess
	m.mu.Unlock()
}

// Accept answers an incoming call. On acknowledgement both parties converge on
// the room derived from the chat id.
func (m *Machine) Accept(ctx context.Context, chatID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[chatID]
	if !ok || sess.State != StateIncomingRinging {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	payload := core.CallAcceptPayload{
		ChatID:   chatID,
		RoomID:   sess.RoomID,
		CallerID: sess.PeerID,
		Type:     string(sess.CallType),
	}
	m.mu.Unlock()

	ack, err := m.opts.Socket.EmitWithAck(ctx, core.EventCallAccepted, payload)
	if err != nil || !ack.OK() {
		m.clearSession(chatID)
		reason := ack.Message
		if reason == "" {
			reason = "could not reach the signaling server"
		}
		m.opts.Alert("Could not join the call: " + reason)
		if err == nil {
			err = errors.Errorf("call accept rejected: %s", reason)
		}
		return errors.Wrapf(err, "accepting call on chat %s", chatID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok = m.sessions[chatID]
	if !ok {
		return ErrNoActiveCall
	}
	return sess.transition(StateActive)
}

// HandleAccepted processes the peer's acceptance of our outgoing call.
func (m *Machine) HandleAccepted(payload json.RawMessage) {
	var p core.CallAcceptPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		m.opts.Logger.Error("call: malformed call_accepted payload", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[p.ChatID]
	if !ok || sess.State != StateOutgoingRinging {
		return
	}
	if err := sess.transition(StateActive); err != nil {
		m.opts.Logger.Error("call: peer acceptance", err)
	}
}

// Reject declines an incoming call locally. The rejection relay to the caller
// is owned by the backend.
func (m *Machine) Reject(chatID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[chatID]
	if !ok || sess.State != StateIncomingRinging {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	m.mu.Unlock()
	m.clearSession(chatID)
	return nil
}

// Hangup commands the widget to leave the conference; the widget's own
// lifecycle events then drive the normal ACTIVE -> ENDED transition, so
// duration is reported exactly once through a single code path.
func (m *Machine) Hangup(chatID string) error {
	m.mu.Lock()
	sess, ok := m.sessions[chatID]
	if !ok || sess.State != StateActive {
		m.mu.Unlock()
		return ErrNoActiveCall
	}
	m.mu.Unlock()

	if m.opts.Conference != nil {
		m.opts.Conference.Hangup(chatID)
		return nil
	}
	m.end(chatID)
	return nil
}

// ConferenceJoined marks the moment the widget joined the room. Duration is
// measured from here, not from call start, so ring time is never billed.
func (m *Machine) ConferenceJoined(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[chatID]; ok && sess.JoinedAt.IsZero() {
		sess.JoinedAt = nowFunc()
	}
}

// ConferenceLeft handles the widget's "conference left" notification.
func (m *Machine) ConferenceLeft(chatID string) { m.end(chatID) }

// ReadyToClose handles the widget's "ready to close" notification.
func (m *Machine) ReadyToClose(chatID string) { m.end(chatID) }

// end performs the one-shot ACTIVE -> ENDED -> IDLE teardown. Whichever widget
// event fires first wins; the transition relation itself is the latch, so a
// second event can neither double-report duration nor double-transition.
func (m *Machine) end(chatID string) {
	m.mu.Lock()
	sess, ok := m.sessions[chatID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if err := sess.transition(StateEnded); err != nil {
		m.mu.Unlock()
		return
	}
	var duration float64
	if !sess.JoinedAt.IsZero() {
		duration = roundMinutes(nowFunc().Sub(sess.JoinedAt))
	}
	payload := core.CallEndPayload{ChatID: chatID, RoomID: sess.RoomID, Duration: duration}
	endEvent := sess.CallType.EndEvent()
	m.mu.Unlock()

	if err := m.opts.Socket.Emit(endEvent, payload); err != nil {
		m.opts.Logger.Warn("call: end report failed", errors.Wrapf(err, "chat %s", chatID))
	}
	m.opts.Logger.Info("call ended", chatID, duration)
	m.clearSession(chatID)
}

// clearSession drops the chat's session back to IDLE and fires the idle hook.
func (m *Machine) clearSession(chatID string) {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()
	if m.opts.OnIdle != nil {
		m.opts.OnIdle(chatID)
	}
}

// roundMinutes converts an elapsed duration to minutes, rounded to 2 decimals.
func roundMinutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*100) / 100
}
