package realtime

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
)

// WSTransport rides a single websocket connection to a board gateway. The
// gateway performs the authorization handshake during the HTTP upgrade and
// takes over presence and fan-out from there.
type WSTransport struct {
	gatewayURL string
	authToken  string

	mu     sync.Mutex
	conn   *websocket.Conn
	recv   chan Event
	closed bool

	writeTimeout time.Duration
}

// NewWSTransport creates a transport that will dial the gateway's board
// endpoint, e.g. "ws://gateway:8080". The auth token is the invitation
// token the identity resolver validated.
func NewWSTransport(gatewayURL, authToken string) *WSTransport {
	return &WSTransport{
		gatewayURL:   gatewayURL,
		authToken:    authToken,
		recv:         make(chan Event, 256),
		writeTimeout: 10 * time.Second,
	}
}

// Connect dials the gateway and starts the read loop. A rejected upgrade
// (bad token, unknown session) fails the whole attempt.
func (t *WSTransport) Connect(ctx context.Context, sessionID string, self models.Participant) error {
	u, err := url.Parse(t.gatewayURL + "/ws/board")
	if err != nil {
		return fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	q.Set("session_id", sessionID)
	q.Set("participant_id", self.ID)
	q.Set("display_name", self.DisplayName)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if t.authToken != "" {
		header.Set("Authorization", "Bearer "+t.authToken)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial gateway: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("dial gateway: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *WSTransport) readLoop(conn *websocket.Conn) {
	defer close(t.recv)
	for {
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("gateway connection lost")
			}
			return
		}
		select {
		case t.recv <- ev:
		default:
			log.Warn().Str("type", string(ev.Type)).Msg("inbound buffer full, dropping event")
		}
	}
}

// Send writes one event to the gateway.
func (t *WSTransport) Send(ev Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil || t.closed {
		return fmt.Errorf("%w: not connected", ErrTransport)
	}
	t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	if err := t.conn.WriteJSON(ev); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

// Receive yields events relayed by the gateway.
func (t *WSTransport) Receive() <-chan Event {
	return t.recv
}

// Close tears the connection down. Idempotent.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.conn == nil {
		return nil
	}
	t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return t.conn.Close()
}
