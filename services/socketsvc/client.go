package socketsvc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/literate-limited/beeline/core"
)

// ackEvent is the envelope event name reserved for direct acknowledgements.
const ackEvent = "ack"

type (
	Options struct {
		URL       string
		AuthToken string
		Logger    core.Logger
		// MaxInterval caps the reconnect backoff. Defaults to 30s.
		MaxInterval time.Duration
	}

	// Envelope frames every message on the wire. Acks reuse the envelope with
	// the reserved "ack" event and the correlation id of the emission they
	// answer.
	Envelope struct {
		Event   string          `json:"event"`
		ID      string          `json:"id,omitempty"`
		Payload json.RawMessage `json:"payload,omitempty"`
		Status  string          `json:"status,omitempty"`
		Message string          `json:"message,omitempty"`
		Data    json.RawMessage `json:"data,omitempty"`
	}

	// Client is the gorilla/websocket implementation of core.Socket. It owns
	// the one socket handle for the whole session: a read pump dispatches
	// inbound events to registered handlers, writes are serialized, and a
	// connect loop redials with exponential backoff after any transport error.
	// Transport failures never surface to callers; only the Connected flag
	// flips.
	Client struct {
		opts Options

		mu        sync.Mutex
		conn      *websocket.Conn
		connected bool
		closed    bool
		handlers  map[string][]core.EventHandler
		onConnect []func()
		pending   map[string]chan core.Ack

		writeMu sync.Mutex
		done    chan struct{}
	}
)

var _ core.Socket = (*Client)(nil)

func NewClient(opts Options) *Client {
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = 30 * time.Second
	}
	return &Client{
		opts:     opts,
		handlers: make(map[string][]core.EventHandler),
		pending:  make(map[string]chan core.Ack),
		done:     make(chan struct{}),
	}
}

// Connect starts the connect/reconnect loop and returns immediately.
func (c *Client) Connect() { go c.run() }

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Handle registers a handler for an inbound event.
func (c *Client) Handle(event string, h core.EventHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnConnect registers a hook fired after every successful (re)connect.
func (c *Client) OnConnect(h func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, h)
}

// Emit sends a fire-and-forget event.
func (c *Client) Emit(event string, payload interface{}) error {
	return c.write(Envelope{Event: event}, payload)
}

// EmitWithAck sends an event and waits for the server's direct
// acknowledgement. Only the calling goroutine blocks; the read pump keeps
// running. If the connection drops before the ack arrives, the wait ends with
// ctx.
func (c *Client) EmitWithAck(ctx context.Context, event string, payload interface{}) (core.Ack, error) {
	id := uuid.NewString()
	ch := make(chan core.Ack, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(Envelope{Event: event, ID: id}, payload); err != nil {
		return core.Ack{}, err
	}

	select {
	case ack := <-ch:
		return ack, nil
	case <-ctx.Done():
		return core.Ack{}, errors.Wrapf(ctx.Err(), "awaiting ack for %s", event)
	}
}

// Close tears the connection down for good and releases all listeners.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.handlers = make(map[string][]core.EventHandler)
	c.onConnect = nil
	c.mu.Unlock()

	close(c.done)
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return conn.Close()
	}
	return nil
}

func (c *Client) write(env Envelope, payload interface{}) error {
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrapf(err, "marshaling %s payload", env.Event)
		}
		env.Payload = data
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()
	if !connected || conn == nil {
		return core.ErrNotConnected
	}

	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshaling envelope")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.Wrapf(err, "writing %s", env.Event)
	}
	return nil
}

// run dials, pumps, and redials until Close. Backoff resets after every
// successful connection.
func (c *Client) run() {
	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = c.opts.MaxInterval
	bo.MaxElapsedTime = 0 // retry forever

	for {
		select {
		case <-c.done:
			return
		default:
		}

		conn, err := c.dial()
		if err != nil {
			c.opts.Logger.Debug("socket: dial failed", err)
			select {
			case <-time.After(bo.NextBackOff()):
				continue
			case <-c.done:
				return
			}
		}
		bo.Reset()

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.connected = true
		hooks := make([]func(), len(c.onConnect))
		copy(hooks, c.onConnect)
		c.mu.Unlock()

		c.opts.Logger.Info("socket: connected", c.opts.URL)
		for _, h := range hooks {
			h()
		}

		c.readPump(conn)

		c.mu.Lock()
		c.connected = false
		c.conn = nil
		closed := c.closed
		c.mu.Unlock()
		_ = conn.Close()
		if closed {
			return
		}
		c.opts.Logger.Warn("socket: connection lost, reconnecting")
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if c.opts.AuthToken != "" {
		header.Set("Authorization", "Bearer "+c.opts.AuthToken)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(c.opts.URL, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "dialing %s (%s)", c.opts.URL, resp.Status)
		}
		return nil, errors.Wrapf(err, "dialing %s", c.opts.URL)
	}
	return conn, nil
}

// readPump reads until the connection errors. Acks are routed to their
// waiting emitter; everything else goes to the registered handlers.
func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.opts.Logger.Debug("socket: read error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.opts.Logger.Warn("socket: malformed frame dropped", err)
			continue
		}

		if env.Event == ackEvent {
			c.mu.Lock()
			ch, ok := c.pending[env.ID]
			c.mu.Unlock()
			if ok {
				ch <- core.Ack{Status: env.Status, Message: env.Message, Data: env.Data}
			}
			continue
		}

		c.mu.Lock()
		handlers := make([]core.EventHandler, len(c.handlers[env.Event]))
		copy(handlers, c.handlers[env.Event])
		c.mu.Unlock()
		for _, h := range handlers {
			h(env.Payload)
		}
	}
}
