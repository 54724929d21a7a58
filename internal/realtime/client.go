// Package realtime is the bridge between local board mutations and the
// session's broadcast channel: it publishes local deltas, dispatches
// inbound remote deltas to registered handlers, and tracks connection
// status and presence. Remote events are applied with remote origin so
// they are never re-published (echo suppression).
package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
)

// Status is the user-visible connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
)

// Transport is the named-channel publish/subscribe primitive the client
// rides on. Implementations must deliver per-sender-per-kind in order;
// nothing more is assumed.
type Transport interface {
	// Connect joins the session channel, performing the authorization
	// handshake. It must not return until the presence subscription is
	// established or the handshake is rejected.
	Connect(ctx context.Context, sessionID string, self models.Participant) error
	// Send broadcasts one event to the channel, fire-and-forget.
	Send(Event) error
	// Receive yields inbound events. The channel closes when the
	// transport shuts down.
	Receive() <-chan Event
	// Close releases the channel subscription. Idempotent.
	Close() error
}

// Handler consumes one inbound remote event.
type Handler func(Event)

// Client publishes local mutations and dispatches remote ones for a single
// board session.
type Client struct {
	transport Transport
	sessionID string
	self      models.Participant

	mu       sync.Mutex
	status   Status
	onStatus func(Status)
	handlers map[EventType][]Handler
	closed   bool
	done     chan struct{}
}

// NewClient creates a disconnected client for one session.
func NewClient(transport Transport, sessionID string, self models.Participant) *Client {
	return &Client{
		transport: transport,
		sessionID: sessionID,
		self:      self,
		status:    StatusDisconnected,
		handlers:  make(map[EventType][]Handler),
		done:      make(chan struct{}),
	}
}

// OnStatusChange registers the connection-status observer. Register before
// Connect.
func (c *Client) OnStatusChange(fn func(Status)) {
	c.onStatus = fn
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *Client) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	fn := c.onStatus
	c.mu.Unlock()
	if changed && fn != nil {
		fn(s)
	}
}

// OnRemote registers a handler for one event kind. Register before Connect;
// handlers run on the dispatch goroutine in arrival order.
func (c *Client) OnRemote(t EventType, h Handler) {
	c.handlers[t] = append(c.handlers[t], h)
}

// Connect joins the session channel. A rejected handshake is terminal for
// this attempt: status goes to error and the caller must retry from
// scratch with a fresh Connect.
func (c *Client) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	if err := c.transport.Connect(ctx, c.sessionID, c.self); err != nil {
		c.setStatus(StatusError)
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	c.setStatus(StatusConnected)
	go c.dispatch()

	log.Info().
		Str("session_id", c.sessionID).
		Str("participant_id", c.self.ID).
		Msg("joined board session channel")
	return nil
}

func (c *Client) dispatch() {
	for {
		select {
		case <-c.done:
			return
		case ev, ok := <-c.transport.Receive():
			if !ok {
				c.setStatus(StatusDisconnected)
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Client) handleEvent(ev Event) {
	// Our own events can bounce back on some transports; never re-apply
	// them.
	if ev.SenderID == c.self.ID {
		return
	}
	if ev.SessionID != "" && ev.SessionID != c.sessionID {
		log.Warn().Str("session_id", ev.SessionID).Msg("dropping event for foreign session")
		return
	}
	for _, h := range c.handlers[ev.Type] {
		h(ev)
	}
}

// Publish broadcasts one local mutation. Transport failures are logged and
// dropped: the optimistic local update already reflects the writer's
// intent, and the next gesture frame re-synchronizes stragglers.
func (c *Client) Publish(t EventType, payload any) {
	c.mu.Lock()
	if c.closed || c.status != StatusConnected {
		c.mu.Unlock()
		log.Debug().Str("type", string(t)).Msg("publish skipped: not connected")
		return
	}
	c.mu.Unlock()

	ev, err := NewEvent(c.sessionID, t, c.self.ID, payload)
	if err != nil {
		log.Error().Err(err).Str("type", string(t)).Msg("publish dropped: bad payload")
		return
	}
	if err := c.transport.Send(ev); err != nil {
		log.Warn().Err(err).Str("type", string(t)).Msg("publish dropped: transport error")
	}
}

// Disconnect unsubscribes and releases the channel. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	if err := c.transport.Close(); err != nil {
		log.Warn().Err(err).Msg("transport close failed")
	}
	c.setStatus(StatusDisconnected)
}
