package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Compile-time interface checks.
var (
	_ Channel  = (*RelayClient)(nil)
	_ Presence = (*RelayClient)(nil)
)

// RelayClient implements Channel and Presence over a single websocket to
// the meshcall-relay. One instance serves both interfaces because the
// relay multiplexes signals and roster updates on the same connection.
//
// Joining happens as a side effect of dialing: the relay registers the
// participant from the connect query and replays stored signals.
type RelayClient struct {
	conn     *websocket.Conn
	self     Participant
	logger   *slog.Logger
	outgoing chan Frame
	done     chan struct{}

	mu       sync.Mutex
	onSignal func(Envelope)
	onRoster func([]Participant)

	// The relay replays stored signals and pushes the first roster as
	// soon as the socket registers, which is before Subscribe and Watch
	// run. Frames arriving without a handler are held here.
	backlog    []Envelope
	lastRoster []Participant
	haveRoster bool

	closeOnce sync.Once
}

// DialRelay connects to the relay websocket endpoint for a room and
// announces self. wsURL comes from Config.WebSocketURL.
func DialRelay(wsURL string, self Participant, logger *slog.Logger) (*RelayClient, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay URL: %w", err)
	}

	q := u.Query()
	q.Set("id", self.ID)
	q.Set("name", self.Name)
	q.Set("muted", strconv.FormatBool(self.Muted))
	q.Set("video", strconv.FormatBool(self.VideoEnabled))
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &RelayClient{
		conn:     conn,
		self:     self,
		logger:   logger,
		outgoing: make(chan Frame, 64),
		done:     make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.readPump()
	go c.writePump()

	return c, nil
}

func (c *RelayClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			return
		}
		c.dispatch(frame)
	}
}

func (c *RelayClient) dispatch(frame Frame) {
	switch frame.Type {
	case FrameSignal:
		msg, err := DecodeMessage(frame.Payload)
		if err != nil {
			c.logger.Warn("dropping malformed signal", "from", frame.From, "error", err)
			return
		}
		env := Envelope{From: frame.From, Msg: msg}
		c.mu.Lock()
		fn := c.onSignal
		if fn == nil {
			c.backlog = append(c.backlog, env)
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		fn(env)

	case FrameRoster:
		c.mu.Lock()
		fn := c.onRoster
		if fn == nil {
			c.lastRoster = frame.Roster
			c.haveRoster = true
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
		fn(frame.Roster)

	case FrameError:
		c.logger.Error("relay error", "error", frame.Error)
	}
}

func (c *RelayClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *RelayClient) enqueue(frame Frame) error {
	select {
	case <-c.done:
		return ErrBusClosed
	default:
	}
	select {
	case c.outgoing <- frame:
		return nil
	case <-c.done:
		return ErrBusClosed
	}
}

func (c *RelayClient) Send(_ context.Context, to string, msg Message) error {
	payload, err := EncodeMessage(msg)
	if err != nil {
		return err
	}
	return c.enqueue(Frame{Type: FrameSignal, To: to, Payload: payload})
}

func (c *RelayClient) Subscribe(_ context.Context, self string, fn func(Envelope)) (func(), error) {
	// Hand over the buffered backlog before installing the handler. The
	// lock keeps live frames behind the replay so delivery order holds.
	c.mu.Lock()
	for _, env := range c.backlog {
		fn(env)
	}
	c.backlog = nil
	c.onSignal = fn
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		c.onSignal = nil
		c.mu.Unlock()
	}
	return cancel, nil
}

func (c *RelayClient) Clear(_ context.Context, _, from string) error {
	return c.enqueue(Frame{Type: FrameClear, From: from})
}

// Join is satisfied by the dial handshake; republish flags anyway so a
// reconnect refreshes them.
func (c *RelayClient) Join(ctx context.Context, p Participant) error {
	return c.Update(ctx, p)
}

func (c *RelayClient) Update(_ context.Context, p Participant) error {
	payload, err := json.Marshal(StatePayload{
		Name:         p.Name,
		Muted:        p.Muted,
		VideoEnabled: p.VideoEnabled,
	})
	if err != nil {
		return err
	}
	return c.enqueue(Frame{Type: FrameState, Payload: payload})
}

// Leave closes the websocket; the relay retracts presence on disconnect.
func (c *RelayClient) Leave(context.Context, string) error {
	c.Close()
	return nil
}

func (c *RelayClient) Watch(_ context.Context, fn func([]Participant)) (func(), error) {
	c.mu.Lock()
	if c.haveRoster {
		fn(c.lastRoster)
		c.lastRoster = nil
		c.haveRoster = false
	}
	c.onRoster = fn
	c.mu.Unlock()

	cancel := func() {
		c.mu.Lock()
		c.onRoster = nil
		c.mu.Unlock()
	}
	return cancel, nil
}

// Close tears down the websocket connection.
func (c *RelayClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}
