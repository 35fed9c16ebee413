package call

import (
	"time"

	"github.com/pkg/errors"

	"github.com/literate-limited/beeline/core"
)

var (
	ErrCallInProgress    = errors.New("a call is already in progress for this chat")
	ErrNoActiveCall      = errors.New("no call session for this chat")
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrSelfCall          = errors.New("cannot call yourself")
)

// State is the lifecycle state of one call session.
type State int

const (
	StateIdle State = iota
	StateOutgoingRinging
	StateIncomingRinging
	StateActive
	StateEnded
)

var stateNames = map[State]string{
	StateIdle:            "IDLE",
	StateOutgoingRinging: "OUTGOING_RINGING",
	StateIncomingRinging: "INCOMING_RINGING",
	StateActive:          "ACTIVE",
	StateEnded:           "ENDED",
}

func (s State) String() string { return stateNames[s] }

// transitions is the full transition relation; anything not listed here is
// structurally unrepresentable.
var transitions = map[State][]State{
	StateIdle:            {StateOutgoingRinging, StateIncomingRinging},
	StateOutgoingRinging: {StateActive, StateIdle},
	StateIncomingRinging: {StateActive, StateIdle},
	StateActive:          {StateEnded},
	StateEnded:           {StateIdle},
}

// Type distinguishes audio from video calls; both run the same handshake.
type Type string

const (
	TypeAudio Type = "audio"
	TypeVideo Type = "video"
)

// StartEvent is the signaling event that initiates a call of this type.
func (t Type) StartEvent() string {
	if t == TypeVideo {
		return core.EventVideoCallStarted
	}
	return core.EventAudioCallStarted
}

// EndEvent is the signaling event that reports a finished call of this type.
func (t Type) EndEvent() string {
	if t == TypeVideo {
		return core.EventVideoCallEnded
	}
	return core.EventAudioCallEnded
}

// Session is one call, at most one per chat. JoinedAt is zero until the
// conferencing widget reports the local user joined; duration is measured from
// that point so ring time is excluded.
type Session struct {
	ChatID   string
	RoomID   string
	CallType Type
	PeerID   string
	State    State
	JoinedAt time.Time
}

// transition moves the session to a new state, rejecting edges outside the
// transition relation.
func (s *Session) transition(to State) error {
	for _, allowed := range transitions[s.State] {
		if allowed == to {
			s.State = to
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidTransition, "%s -> %s (chat %s)", s.State, to, s.ChatID)
}
