package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"time"

	"github.com/AmanBang/meshcall/internal/signal"
)

// Hub routes frames between the participants of every room. A single
// goroutine owns all room state; the websocket handlers only feed the
// channels.
type Hub struct {
	store  Store
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	inbound    chan inboundFrame

	// rooms maps roomID to the connected participants by ID.
	rooms map[string]map[string]*Client
}

type inboundFrame struct {
	client *Client
	frame  signal.Frame
}

func NewHub(store Store, logger *slog.Logger) *Hub {
	return &Hub{
		store:      store,
		logger:     logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundFrame, 64),
		rooms:      make(map[string]map[string]*Client),
	}
}

// Run processes hub events until ctx is canceled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.handleRegister(ctx, client)
		case client := <-h.unregister:
			h.handleUnregister(client)
		case in := <-h.inbound:
			h.handleFrame(ctx, in.client, in.frame)
		}
	}
}

func (h *Hub) handleRegister(ctx context.Context, client *Client) {
	room, ok := h.rooms[client.roomID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[client.roomID] = room
	}

	// A reconnect under the same ID supersedes the old connection. A new
	// participant is turned away once the room is at capacity.
	if old, ok := room[client.participant.ID]; ok {
		close(old.send)
	} else if client.maxPeers > 0 && len(room) >= client.maxPeers {
		h.logger.Warn("room full, rejecting participant",
			"room", client.roomID, "id", client.participant.ID, "limit", client.maxPeers)
		client.trySend(signal.Frame{Type: signal.FrameError, Error: "room full"})
		close(client.send)
		return
	}
	room[client.participant.ID] = client

	h.logger.Info("participant joined",
		"room", client.roomID, "id", client.participant.ID, "name", client.participant.Name)

	// Replay signals that arrived before this participant connected.
	pending, err := h.store.PendingSignals(ctx, client.roomID, client.participant.ID)
	if err != nil {
		h.logger.Error("loading pending signals", "room", client.roomID, "error", err)
	}
	for _, sig := range pending {
		client.trySend(signal.Frame{
			Type:    signal.FrameSignal,
			From:    sig.From,
			Payload: sig.Payload,
		})
	}

	h.broadcastRoster(client.roomID)
}

func (h *Hub) handleUnregister(client *Client) {
	room, ok := h.rooms[client.roomID]
	if !ok {
		return
	}
	current, ok := room[client.participant.ID]
	if !ok || current != client {
		// Already superseded by a reconnect.
		return
	}

	delete(room, client.participant.ID)
	close(client.send)
	if len(room) == 0 {
		delete(h.rooms, client.roomID)
	}

	h.logger.Info("participant left", "room", client.roomID, "id", client.participant.ID)
	h.broadcastRoster(client.roomID)
}

func (h *Hub) handleFrame(ctx context.Context, client *Client, frame signal.Frame) {
	switch frame.Type {
	case signal.FrameSignal:
		h.relaySignal(ctx, client, frame)

	case signal.FrameState:
		var state signal.StatePayload
		if err := json.Unmarshal(frame.Payload, &state); err != nil {
			h.logger.Warn("malformed state frame", "id", client.participant.ID, "error", err)
			return
		}
		client.participant.Name = state.Name
		client.participant.Muted = state.Muted
		client.participant.VideoEnabled = state.VideoEnabled
		h.broadcastRoster(client.roomID)

	case signal.FrameClear:
		err := h.store.ClearSignals(ctx, client.roomID, client.participant.ID, frame.From)
		if err != nil {
			h.logger.Error("clearing signals", "room", client.roomID, "error", err)
		}

	default:
		h.logger.Warn("unknown frame type", "type", frame.Type, "id", client.participant.ID)
	}
}

// relaySignal stores the signal and forwards it if the recipient is
// connected. Storing first keeps the replay-on-join guarantee even when
// the forward races a disconnect.
func (h *Hub) relaySignal(ctx context.Context, client *Client, frame signal.Frame) {
	if frame.To == "" || len(frame.Payload) == 0 {
		client.trySend(signal.Frame{Type: signal.FrameError, Error: "signal frame missing to or payload"})
		return
	}

	err := h.store.StoreSignal(ctx, client.roomID, frame.To, StoredSignal{
		From:     client.participant.ID,
		Payload:  frame.Payload,
		StoredAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("storing signal", "room", client.roomID, "error", err)
	}

	if target, ok := h.rooms[client.roomID][frame.To]; ok {
		target.trySend(signal.Frame{
			Type:    signal.FrameSignal,
			From:    client.participant.ID,
			Payload: frame.Payload,
		})
	}
}

func (h *Hub) broadcastRoster(roomID string) {
	room := h.rooms[roomID]

	roster := make([]signal.Participant, 0, len(room))
	for _, c := range room {
		roster = append(roster, c.participant)
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })

	frame := signal.Frame{Type: signal.FrameRoster, Roster: roster}
	for _, c := range room {
		c.trySend(frame)
	}
}
