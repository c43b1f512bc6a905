package relay

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AmanBang/meshcall/internal/signal"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Enough for WebRTC SDP.
	maxMessageSize = 64 * 1024
)

// Client is one participant's websocket connection to the relay.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger

	roomID      string
	maxPeers    int
	participant signal.Participant

	// send is drained by writePump; the hub owns its lifecycle.
	send chan signal.Frame
}

// trySend queues a frame without blocking the hub. A participant that
// cannot keep up loses frames rather than stalling the room.
func (c *Client) trySend(frame signal.Frame) {
	select {
	case c.send <- frame:
	default:
		c.logger.Warn("dropping frame for slow participant",
			"room", c.roomID, "id", c.participant.ID, "type", frame.Type)
	}
}

// readPump pumps frames from the websocket to the hub. It runs in its
// own goroutine; all reads happen here.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var frame signal.Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", "id", c.participant.ID, "error", err)
			}
			break
		}
		c.hub.inbound <- inboundFrame{client: c, frame: frame}
	}
}

// writePump pumps frames from the hub to the websocket. It runs in its
// own goroutine; all writes happen here.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Warn("websocket write error", "id", c.participant.ID, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
