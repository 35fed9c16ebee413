package core

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// AckStatusOK is the only ack status that indicates success; anything else is
// treated as a failed operation.
const AckStatusOK = "ok"

var ErrNotConnected = errors.New("socket not connected")

type (
	// Ack is the direct, one-to-one acknowledgement returned to the emitter of
	// a socket event, as opposed to a broadcast delivered to all room members.
	Ack struct {
		Status  string          `json:"status"`
		Message string          `json:"message,omitempty"`
		Data    json.RawMessage `json:"data,omitempty"`
	}

	// EventHandler handles a single inbound socket event payload.
	EventHandler func(payload json.RawMessage)

	// Socket is the one persistent bidirectional connection shared by the whole
	// session. Implementations own reconnection; Connect never surfaces
	// transport errors to the caller, it only flips the Connected flag.
	Socket interface {
		// Connect starts the connection loop and returns immediately.
		Connect()
		Connected() bool
		// Emit sends a fire-and-forget event.
		Emit(event string, payload interface{}) error
		// EmitWithAck sends an event and blocks until the server acknowledges
		// it or ctx expires. Only the calling goroutine waits.
		EmitWithAck(ctx context.Context, event string, payload interface{}) (Ack, error)
		// Handle registers a handler for an inbound event. Handlers registered
		// for the same event are all invoked, in registration order.
		Handle(event string, h EventHandler)
		// OnConnect registers a hook fired after every successful (re)connect.
		OnConnect(h func())
		Close() error
	}
)

func (a Ack) OK() bool { return a.Status == AckStatusOK }
