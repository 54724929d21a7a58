// Package gateway hosts the broadcast side of board sessions: a websocket
// hub that relays deltas between a session's participants, tracks presence,
// keeps an authoritative replica per session, bridges events across gateway
// instances over JetStream and hands dirty snapshots to the persistence
// saver.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
)

// ConnectionConfig holds websocket tuning for the hub.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns the hub's default websocket tuning.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  64 * 1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}
}

// broadcastMessage is one event queued for fan-out to a session's
// connections.
type broadcastMessage struct {
	sessionID string
	event     realtime.Event
	// exclude suppresses delivery to the originating connection so a
	// sender never hears its own delta.
	exclude *Connection
}

// Hub manages every websocket connection and session replica on this
// gateway instance.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]map[*Connection]bool
	replicas    map[string]*replica
	upgrader    websocket.Upgrader
	config      ConnectionConfig
	clock       clockwork.Clock
	broadcastCh chan broadcastMessage

	// bridge forwards relayed events to the other gateway instances;
	// nil when running standalone.
	bridge *Bridge
}

// NewHub creates a hub with no sessions.
func NewHub(config ConnectionConfig, clock clockwork.Clock) *Hub {
	return &Hub{
		sessions: make(map[string]map[*Connection]bool),
		replicas: make(map[string]*replica),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		broadcastCh: make(chan broadcastMessage, 1000),
	}
}

// SetBridge attaches the cross-instance event bridge. Call before Start.
func (h *Hub) SetBridge(b *Bridge) { h.bridge = b }

// Start processes broadcast messages until the context is cancelled.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("board hub started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("board hub shutting down")
			return
		case msg := <-h.broadcastCh:
			h.fanOut(msg)
		}
	}
}

// Upgrade turns an authorized HTTP request into a managed websocket
// connection and runs the presence join protocol.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, sessionID string, participant models.Participant) error {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := &Connection{
		id:          uuid.New().String(),
		participant: participant,
		sessionID:   sessionID,
		ws:          ws,
		send:        make(chan []byte, 256),
		hub:         h,
		connectedAt: h.clock.Now(),
	}

	members := h.register(conn)

	go conn.writePump()
	go conn.readPump()

	// Presence snapshot to the joiner, join notice to everyone else.
	h.sendTo(conn, realtime.EventPresenceSnapshot, realtime.PresenceSnapshotPayload{Members: members})
	h.broadcastPresence(sessionID, conn, realtime.EventMemberJoined, realtime.MemberJoinedPayload{Member: participant})

	log.Info().
		Str("connection_id", conn.id).
		Str("participant_id", participant.ID).
		Str("session_id", sessionID).
		Msg("participant joined board session")
	return nil
}

// register adds the connection and returns the resulting member list.
func (h *Hub) register(conn *Connection) []models.Participant {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[conn.sessionID] == nil {
		h.sessions[conn.sessionID] = make(map[*Connection]bool)
	}
	h.sessions[conn.sessionID][conn] = true
	if h.replicas[conn.sessionID] == nil {
		h.replicas[conn.sessionID] = newReplica(conn.sessionID, h.clock)
	}

	members := make([]models.Participant, 0, len(h.sessions[conn.sessionID]))
	for c := range h.sessions[conn.sessionID] {
		members = append(members, c.participant)
	}
	return members
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	conns, ok := h.sessions[conn.sessionID]
	if !ok || !conns[conn] {
		h.mu.Unlock()
		return
	}
	delete(conns, conn)
	close(conn.send)
	empty := len(conns) == 0
	if empty {
		delete(h.sessions, conn.sessionID)
		// replica stays: the saver flushes it, and a rejoin reuses it
	}
	h.mu.Unlock()

	h.broadcastPresence(conn.sessionID, conn, realtime.EventMemberLeft,
		realtime.MemberLeftPayload{ParticipantID: conn.participant.ID})

	log.Info().
		Str("connection_id", conn.id).
		Str("participant_id", conn.participant.ID).
		Str("session_id", conn.sessionID).
		Bool("session_empty", empty).
		Msg("participant left board session")
}

// Relay handles one event received from a client connection: stamp, apply
// to the replica, fan out to the session's other local connections and
// forward to the other gateway instances.
func (h *Hub) Relay(conn *Connection, ev realtime.Event) {
	if ev.Type == "" {
		log.Warn().Str("connection_id", conn.id).Msg("dropping event without type")
		return
	}
	// Never trust the sender identity on the wire over the authenticated
	// connection's.
	ev.SenderID = conn.participant.ID
	ev.SessionID = conn.sessionID
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.clock.Now().UTC()
	}

	h.replica(conn.sessionID).apply(ev)
	h.enqueue(broadcastMessage{sessionID: conn.sessionID, event: ev, exclude: conn})

	if h.bridge != nil {
		h.bridge.Forward(ev)
	}
}

// RelayFromBridge applies and fans out an event that arrived from another
// gateway instance.
func (h *Hub) RelayFromBridge(ev realtime.Event) {
	h.replica(ev.SessionID).apply(ev)
	h.enqueue(broadcastMessage{sessionID: ev.SessionID, event: ev})
}

func (h *Hub) replica(sessionID string) *replica {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.replicas[sessionID]
	if !ok {
		r = newReplica(sessionID, h.clock)
		h.replicas[sessionID] = r
	}
	return r
}

// HasReplica reports whether this instance already tracks the session.
func (h *Hub) HasReplica(sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.replicas[sessionID]
	return ok
}

// SeedSession loads a persisted snapshot into a session replica, typically
// at first join after a gateway restart.
func (h *Hub) SeedSession(state models.BoardState) {
	h.replica(state.SessionID).seed(state)
}

// SessionState returns the replica snapshot served to late joiners.
func (h *Hub) SessionState(sessionID string) models.BoardState {
	state, _ := h.replica(sessionID).snapshot(false)
	return state
}

// DirtySnapshots returns the sessions mutated since the last call,
// clearing their dirty flags. The persistence saver drains this.
func (h *Hub) DirtySnapshots() []models.BoardState {
	h.mu.RLock()
	replicas := make([]*replica, 0, len(h.replicas))
	for _, r := range h.replicas {
		replicas = append(replicas, r)
	}
	h.mu.RUnlock()

	var out []models.BoardState
	for _, r := range replicas {
		if state, dirty := r.snapshot(true); dirty {
			out = append(out, state)
		}
	}
	return out
}

func (h *Hub) enqueue(msg broadcastMessage) {
	select {
	case h.broadcastCh <- msg:
	default:
		log.Warn().Str("session_id", msg.sessionID).Msg("broadcast channel full, dropping event")
	}
}

func (h *Hub) broadcastPresence(sessionID string, exclude *Connection, t realtime.EventType, payload any) {
	ev, err := realtime.NewEvent(sessionID, t, "", payload)
	if err != nil {
		log.Error().Err(err).Msg("presence event marshal failed")
		return
	}
	h.enqueue(broadcastMessage{sessionID: sessionID, event: ev, exclude: exclude})
}

func (h *Hub) sendTo(conn *Connection, t realtime.EventType, payload any) {
	ev, err := realtime.NewEvent(conn.sessionID, t, "", payload)
	if err != nil {
		log.Error().Err(err).Msg("direct event marshal failed")
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case conn.send <- data:
	default:
		log.Warn().Str("connection_id", conn.id).Msg("send buffer full on join")
	}
}

func (h *Hub) fanOut(msg broadcastMessage) {
	h.mu.RLock()
	conns := h.sessions[msg.sessionID]
	targets := make([]*Connection, 0, len(conns))
	for c := range conns {
		if c == msg.exclude {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	data, err := json.Marshal(msg.event)
	if err != nil {
		log.Error().Err(err).Msg("event marshal failed")
		return
	}
	for _, c := range targets {
		select {
		case c.send <- data:
		default:
			log.Warn().
				Str("connection_id", c.id).
				Str("participant_id", c.participant.ID).
				Msg("send buffer full, closing connection")
			h.unregister(c)
			c.ws.Close()
		}
	}
}

// Stats summarizes the hub's live connections.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.sessions {
		total += len(conns)
	}
	return map[string]int{
		"total_connections": total,
		"active_sessions":   len(h.sessions),
	}
}
