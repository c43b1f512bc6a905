// Package signal provides the rendezvous layer for call negotiation:
// per-recipient signaling messages and a live participant roster, scoped
// to one room.
//
// The Channel contract is replay-then-push: Subscribe first delivers
// every message already addressed to the subscriber (a sender may write
// before the recipient subscribes), then every later one. Delivery is
// at-least-once; consumers must tolerate duplicates. Messages from
// different senders are unordered relative to each other.
//
// [MemoryBus] is the in-process implementation used by tests and
// single-process setups. [RelayClient] talks to the meshcall-relay
// service over a websocket.
package signal

import "context"

// Channel exchanges signaling messages within one room.
type Channel interface {
	// Send publishes msg addressed to the identity `to`. A failed send
	// degrades one negotiation; callers log and continue.
	Send(ctx context.Context, to string, msg Message) error

	// Subscribe registers fn for every message addressed to self,
	// replaying stored messages first. fn is called from a single
	// goroutine per subscription, in delivery order. The returned
	// cancel func stops delivery.
	Subscribe(ctx context.Context, self string, fn func(Envelope)) (func(), error)

	// Clear discards stored messages addressed to self from one sender.
	// Best-effort: messages already in flight may still arrive.
	Clear(ctx context.Context, self, from string) error
}

// Participant is one identity in the room roster.
type Participant struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Muted        bool   `json:"muted"`
	VideoEnabled bool   `json:"videoEnabled"`
	Online       bool   `json:"online"`
}

// Presence maintains the room roster. The backing service retracts a
// participant automatically when its connection drops.
type Presence interface {
	// Join announces this identity to the room.
	Join(ctx context.Context, p Participant) error

	// Update republishes this identity's flags (mute, video).
	Update(ctx context.Context, p Participant) error

	// Leave retracts this identity.
	Leave(ctx context.Context, id string) error

	// Watch registers fn for full roster snapshots: one immediately,
	// then one per membership or flag change.
	Watch(ctx context.Context, fn func([]Participant)) (func(), error)
}
