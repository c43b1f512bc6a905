package signal

import "encoding/json"

// Frame is the websocket wire unit between clients and the relay. The
// Payload of a signal frame is the Message wire JSON (see message.go).
type Frame struct {
	Type    string          `json:"type"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Roster  []Participant   `json:"roster,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Frame type constants.
const (
	// Client → relay and relay → client: one signaling message.
	FrameSignal = "signal"

	// Client → relay: republished participant flags.
	FrameState = "state"

	// Client → relay: discard stored signals from one sender.
	FrameClear = "clear"

	// Relay → client: full roster snapshot.
	FrameRoster = "roster"

	// Relay → client: terminal error.
	FrameError = "error"
)

// StatePayload is the payload of a state frame.
type StatePayload struct {
	Name         string `json:"name"`
	Muted        bool   `json:"muted"`
	VideoEnabled bool   `json:"videoEnabled"`
}
