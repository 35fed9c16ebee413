package dummysock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/literate-limited/beeline/core"
)

type (
	// Emission records one outbound event for inspection.
	Emission struct {
		Event   string
		Payload json.RawMessage
	}

	// Socket is an in-memory core.Socket for tests: it records every emission,
	// answers EmitWithAck through a scriptable AckFunc, and lets tests inject
	// inbound events and connect transitions.
	Socket struct {
		mu        sync.Mutex
		connected bool
		emissions []Emission
		handlers  map[string][]core.EventHandler
		onConnect []func()

		// AckFunc scripts the ack for an emitted event. Defaults to status ok
		// with no data.
		AckFunc func(event string, payload json.RawMessage) core.Ack
	}
)

var _ core.Socket = (*Socket)(nil)

func Open() *Socket {
	return &Socket{
		connected: true,
		handlers:  make(map[string][]core.EventHandler),
	}
}

func (s *Socket) Connect() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.FireConnect()
}

func (s *Socket) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Socket) Emit(event string, payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return core.ErrNotConnected
	}
	s.record(event, payload)
	return nil
}

func (s *Socket) EmitWithAck(ctx context.Context, event string, payload interface{}) (core.Ack, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return core.Ack{}, core.ErrNotConnected
	}
	data := s.record(event, payload)
	ackFn := s.AckFunc
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return core.Ack{}, err
	}
	if ackFn == nil {
		return core.Ack{Status: core.AckStatusOK}, nil
	}
	return ackFn(event, data), nil
}

func (s *Socket) Handle(event string, h core.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

func (s *Socket) OnConnect(h func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onConnect = append(s.onConnect, h)
}

func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.handlers = make(map[string][]core.EventHandler)
	s.onConnect = nil
	return nil
}

// Disconnect simulates a transport loss without releasing listeners.
func (s *Socket) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

// FireConnect invokes the registered connect hooks, like a (re)connect would.
func (s *Socket) FireConnect() {
	s.mu.Lock()
	s.connected = true
	hooks := make([]func(), len(s.onConnect))
	copy(hooks, s.onConnect)
	s.mu.Unlock()
	for _, h := range hooks {
		h()
	}
}

// Receive injects an inbound event, as if the server pushed it.
func (s *Socket) Receive(event string, payload interface{}) {
	data, _ := json.Marshal(payload)
	s.mu.Lock()
	handlers := make([]core.EventHandler, len(s.handlers[event]))
	copy(handlers, s.handlers[event])
	s.mu.Unlock()
	for _, h := range handlers {
		h(data)
	}
}

// Emissions returns a copy of everything emitted so far.
func (s *Socket) Emissions() []Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Emission, len(s.emissions))
	copy(out, s.emissions)
	return out
}

// EmissionsOf returns the recorded emissions of one event.
func (s *Socket) EmissionsOf(event string) []Emission {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Emission
	for _, e := range s.emissions {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears the recorded emissions.
func (s *Socket) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emissions = nil
}

func (s *Socket) record(event string, payload interface{}) json.RawMessage {
	data, _ := json.Marshal(payload)
	s.emissions = append(s.emissions, Emission{Event: event, Payload: data})
	return data
}
