package gateway

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/scrivano/boardsync/internal/models"
	"github.com/scrivano/boardsync/internal/realtime"
)

// Connection is one participant's websocket link into the hub.
type Connection struct {
	id          string
	participant models.Participant
	sessionID   string
	ws          *websocket.Conn
	send        chan []byte
	hub         *Hub
	connectedAt time.Time
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.ws.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", c.id).Msg("ping failed")
				return
			}
		}
	}
}

func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(c.hub.config.MaxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}

		var ev realtime.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Warn().
				Err(err).
				Str("connection_id", c.id).
				Str("participant_id", c.participant.ID).
				Msg("dropping unparseable client message")
			c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
			continue
		}

		c.hub.Relay(c, ev)
		c.ws.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
