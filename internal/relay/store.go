// Package relay implements the meshcall signaling relay: room management
// over HTTP and signal forwarding over websockets. Signals addressed to a
// participant who is not connected yet are stored and replayed when they
// join, so negotiation survives join-order races.
package relay

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Store errors.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
)

// Room is the persisted metadata for one room.
type Room struct {
	ID        string    `json:"id" msgpack:"id"`
	Code      string    `json:"code" msgpack:"code"`
	CreatedAt time.Time `json:"createdAt" msgpack:"createdAt"`
	MaxPeers  int       `json:"maxPeers" msgpack:"maxPeers"`
}

// StoredSignal is one undelivered signaling message held for a
// participant.
type StoredSignal struct {
	From     string    `msgpack:"from"`
	Payload  []byte    `msgpack:"payload"`
	StoredAt time.Time `msgpack:"storedAt"`
}

// Store persists rooms and undelivered signals. Implementations:
// MemoryStore for single-instance deployments and tests, RedisStore for
// anything that must survive a restart.
type Store interface {
	// CreateRoom persists a room and its code mapping.
	CreateRoom(ctx context.Context, room Room) error

	// GetRoom resolves a room by ID or by join code.
	GetRoom(ctx context.Context, idOrCode string) (Room, error)

	// StoreSignal appends an undelivered signal for a recipient.
	StoreSignal(ctx context.Context, roomID, to string, sig StoredSignal) error

	// PendingSignals returns the stored signals for a recipient in
	// arrival order, without removing them.
	PendingSignals(ctx context.Context, roomID, to string) ([]StoredSignal, error)

	// ClearSignals removes stored signals for a recipient from one
	// sender.
	ClearSignals(ctx context.Context, roomID, to, from string) error

	Close() error
}

// roomCodeLength is the length of the human-enterable join code.
const roomCodeLength = 6

const sweepInterval = time.Minute

// MemoryStore keeps everything in process memory. A background sweep
// expires rooms and stale signals on the configured TTLs.
type MemoryStore struct {
	roomTTL   time.Duration
	signalTTL time.Duration

	mu      sync.Mutex
	rooms   map[string]Room           // by ID
	codes   map[string]string         // code → ID
	signals map[string][]StoredSignal // roomID/to → signals
	done    chan struct{}
	once    sync.Once
}

func NewMemoryStore(roomTTL, signalTTL time.Duration) *MemoryStore {
	s := &MemoryStore{
		roomTTL:   roomTTL,
		signalTTL: signalTTL,
		rooms:     make(map[string]Room),
		codes:     make(map[string]string),
		signals:   make(map[string][]StoredSignal),
		done:      make(chan struct{}),
	}
	go s.sweep()
	return s
}

func signalKey(roomID, to string) string {
	return roomID + "/" + to
}

func (s *MemoryStore) CreateRoom(_ context.Context, room Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[room.ID]; ok {
		return ErrRoomExists
	}
	s.rooms[room.ID] = room
	s.codes[room.Code] = room.ID
	return nil
}

func (s *MemoryStore) GetRoom(_ context.Context, idOrCode string) (Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := idOrCode
	if len(idOrCode) == roomCodeLength {
		if mapped, ok := s.codes[idOrCode]; ok {
			id = mapped
		}
	}
	room, ok := s.rooms[id]
	if !ok {
		return Room{}, ErrRoomNotFound
	}
	return room, nil
}

func (s *MemoryStore) StoreSignal(_ context.Context, roomID, to string, sig StoredSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := signalKey(roomID, to)
	s.signals[key] = append(s.signals[key], sig)
	return nil
}

func (s *MemoryStore) PendingSignals(_ context.Context, roomID, to string) ([]StoredSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.signals[signalKey(roomID, to)]
	out := make([]StoredSignal, len(stored))
	copy(out, stored)
	return out, nil
}

func (s *MemoryStore) ClearSignals(_ context.Context, roomID, to, from string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := signalKey(roomID, to)
	kept := s.signals[key][:0]
	for _, sig := range s.signals[key] {
		if sig.From != from {
			kept = append(kept, sig)
		}
	}
	if len(kept) == 0 {
		delete(s.signals, key)
	} else {
		s.signals[key] = kept
	}
	return nil
}

func (s *MemoryStore) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *MemoryStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case now := <-ticker.C:
			s.expire(now)
		}
	}
}

func (s *MemoryStore) expire(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, room := range s.rooms {
		if now.Sub(room.CreatedAt) > s.roomTTL {
			delete(s.rooms, id)
			delete(s.codes, room.Code)
		}
	}
	for key, sigs := range s.signals {
		kept := sigs[:0]
		for _, sig := range sigs {
			if now.Sub(sig.StoredAt) <= s.signalTTL {
				kept = append(kept, sig)
			}
		}
		if len(kept) == 0 {
			delete(s.signals, key)
		} else {
			s.signals[key] = kept
		}
	}
}
